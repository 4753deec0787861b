package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cybertrainer/internal/settings"
)

const DefaultSessionTimeoutDays = 7

var (
	ErrMissingSigningSecret = errors.New("session signing secret is not configured")
	ErrInvalidToken         = errors.New("invalid or expired token")
)

// SettingsReader is the runtime policy lookup. Implementations must return
// fallback instead of failing.
type SettingsReader interface {
	Int(ctx context.Context, key string, fallback int) int
}

type SessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and validates stateless HS256 session tokens.
type TokenIssuer struct {
	secret   []byte
	settings SettingsReader
	now      func() time.Time
}

func NewTokenIssuer(secret string, settingsReader SettingsReader) (*TokenIssuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrMissingSigningSecret
	}
	return &TokenIssuer{
		secret:   []byte(secret),
		settings: settingsReader,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Issue signs a token for accountID and role. The lifetime is read from the
// sessionTimeoutDays setting on every call.
func (i *TokenIssuer) Issue(ctx context.Context, accountID, role string) (string, time.Time, error) {
	days := DefaultSessionTimeoutDays
	if i.settings != nil {
		days = i.settings.Int(ctx, settings.KeySessionTimeoutDays, DefaultSessionTimeoutDays)
	}
	if days <= 0 {
		days = DefaultSessionTimeoutDays
	}

	now := i.now()
	expiresAt := now.Add(time.Duration(days) * 24 * time.Hour)
	claims := SessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}

	return encoded, expiresAt.Truncate(time.Second), nil
}

// Validate checks signature and expiry. Every failure collapses into
// ErrInvalidToken so callers cannot tell which check rejected the token.
func (i *TokenIssuer) Validate(tokenStr string) (Identity, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return Identity{}, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)

	claims := &SessionClaims{}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.Subject == "" || claims.Role == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{AccountID: claims.Subject, Role: claims.Role}, nil
}
