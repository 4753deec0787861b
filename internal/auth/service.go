package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cybertrainer/internal/observability"
	"cybertrainer/internal/settings"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// LoginFailedError is returned for a wrong password on an existing, unlocked
// account. It matches ErrInvalidCredentials with errors.Is.
type LoginFailedError struct {
	AttemptsRemaining int
}

func (e LoginFailedError) Error() string {
	return fmt.Sprintf("invalid email or password, %d attempts remaining", e.AttemptsRemaining)
}

func (e LoginFailedError) Unwrap() error {
	return ErrInvalidCredentials
}

type ErrLoginLocked struct {
	Until            time.Time
	MinutesRemaining int
}

func (e ErrLoginLocked) Error() string {
	return "account temporarily locked"
}

type Service struct {
	store      CredentialStore
	hasher     PasswordHasher
	tokens     *TokenIssuer
	settings   SettingsReader
	logger     *observability.Logger
	lockWindow time.Duration
	now        func() time.Time
}

func NewService(store CredentialStore, hasher PasswordHasher, tokens *TokenIssuer, settingsReader SettingsReader, logger *observability.Logger) *Service {
	return &Service{
		store:      store,
		hasher:     hasher,
		tokens:     tokens,
		settings:   settingsReader,
		logger:     logger,
		lockWindow: DefaultLockWindow,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithLockWindow(lockWindow time.Duration) {
	if lockWindow > 0 {
		s.lockWindow = lockWindow
	}
}

// policy reads maxLoginAttempts for this attempt so changes apply without a restart.
func (s *Service) policy(ctx context.Context) LockoutPolicy {
	maxAttempts := DefaultMaxAttempts
	if s.settings != nil {
		maxAttempts = s.settings.Int(ctx, settings.KeyMaxLoginAttempts, DefaultMaxAttempts)
	}
	return NewLockoutPolicy(maxAttempts, s.lockWindow)
}

func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	policy := s.policy(ctx)

	account, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	now := s.now()
	if until, locked := policy.Locked(account.Lockout, now); locked {
		return LoginResult{}, ErrLoginLocked{Until: until, MinutesRemaining: MinutesRemaining(until, now)}
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		outcome, err := s.store.RecordFailure(ctx, account.ID, policy, now)
		if err != nil {
			return LoginResult{}, err
		}
		if outcome.Locked {
			s.logger.Warn("account_locked", map[string]any{
				"account_id":   account.ID,
				"locked_until": outcome.LockedUntil.Format(time.RFC3339),
			})
			return LoginResult{}, ErrLoginLocked{Until: outcome.LockedUntil, MinutesRemaining: MinutesRemaining(outcome.LockedUntil, now)}
		}
		s.logger.Info("login_failed", map[string]any{
			"account_id":         account.ID,
			"attempts_remaining": outcome.AttemptsRemaining,
		})
		return LoginResult{}, LoginFailedError{AttemptsRemaining: outcome.AttemptsRemaining}
	}

	if err := s.store.RecordSuccess(ctx, account.ID, now); err != nil {
		return LoginResult{}, err
	}

	token, expiresAt, err := s.tokens.Issue(ctx, account.ID, account.Role)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{
		User:      account.Summary(),
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) Register(ctx context.Context, email, name, password string) (AccountSummary, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return AccountSummary{}, err
	}

	account, err := s.store.CreateAccount(ctx, NewAccount{
		Email:        normalizeEmail(email),
		Name:         strings.TrimSpace(name),
		Role:         RoleUser,
		PasswordHash: hash,
	})
	if err != nil {
		return AccountSummary{}, err
	}
	return account.Summary(), nil
}

func (s *Service) BootstrapAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	password = strings.TrimSpace(password)

	if email == "" && password == "" {
		return nil
	}
	if email == "" || password == "" {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD are required together")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	return s.store.UpsertAdmin(ctx, email, hash)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
