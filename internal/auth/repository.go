package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already registered")
)

// CredentialStore is the persistence boundary of the login flow. RecordFailure
// must apply the policy as one atomic read-modify-write on the account row.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
	RecordFailure(ctx context.Context, accountID string, policy LockoutPolicy, now time.Time) (FailureOutcome, error)
	RecordSuccess(ctx context.Context, accountID string, now time.Time) error
	CreateAccount(ctx context.Context, account NewAccount) (Account, error)
	UpsertAdmin(ctx context.Context, email, passwordHash string) error
}

type Repository struct {
	db *sql.DB
}

var _ CredentialStore = (*Repository)(nil)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const accountColumns = `id, email, name, role, password_hash, failed_attempts, last_failed_at, locked_until, last_login_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var account Account
	var lastFailedAt, lockedUntil, lastLoginAt sql.NullTime
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Name,
		&account.Role,
		&account.PasswordHash,
		&account.Lockout.FailedAttempts,
		&lastFailedAt,
		&lockedUntil,
		&lastLoginAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return Account{}, err
	}

	account.Lockout.LastFailedAt = nullTimePtr(lastFailedAt)
	account.Lockout.LockedUntil = nullTimePtr(lockedUntil)
	account.LastLoginAt = nullTimePtr(lastLoginAt)
	return account, nil
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, strings.ToLower(email))
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("query account by email: %w", err)
	}
	return account, nil
}

// RecordFailure locks the account row for the duration of the transaction so
// concurrent failures serialise and each one observes the previous increment.
func (r *Repository) RecordFailure(ctx context.Context, accountID string, policy LockoutPolicy, now time.Time) (FailureOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return FailureOutcome{}, fmt.Errorf("begin lockout tx: %w", err)
	}
	defer tx.Rollback()

	var state LockoutState
	var lastFailedAt, lockedUntil sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT failed_attempts, last_failed_at, locked_until
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID).Scan(&state.FailedAttempts, &lastFailedAt, &lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FailureOutcome{}, ErrAccountNotFound
		}
		return FailureOutcome{}, fmt.Errorf("lock account row: %w", err)
	}
	state.LastFailedAt = nullTimePtr(lastFailedAt)
	state.LockedUntil = nullTimePtr(lockedUntil)

	if until, locked := policy.Locked(state, now.UTC()); locked {
		if err := tx.Commit(); err != nil {
			return FailureOutcome{}, fmt.Errorf("commit existing lock tx: %w", err)
		}
		return FailureOutcome{Locked: true, LockedUntil: until}, nil
	}

	next, outcome := policy.Failure(state, now.UTC())

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts
		SET failed_attempts = $2, last_failed_at = $3, locked_until = $4, updated_at = $5
		WHERE id = $1
	`, accountID, next.FailedAttempts, timePtrValue(next.LastFailedAt), timePtrValue(next.LockedUntil), now.UTC())
	if err != nil {
		return FailureOutcome{}, fmt.Errorf("update lockout state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return FailureOutcome{}, fmt.Errorf("commit lockout tx: %w", err)
	}

	return outcome, nil
}

func (r *Repository) RecordSuccess(ctx context.Context, accountID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET failed_attempts = 0, last_failed_at = NULL, locked_until = NULL, last_login_at = $2, updated_at = $2
		WHERE id = $1
	`, accountID, now.UTC())
	if err != nil {
		return fmt.Errorf("reset lockout state: %w", err)
	}
	return nil
}

func (r *Repository) CreateAccount(ctx context.Context, input NewAccount) (Account, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Account{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO accounts (id, email, name, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (email) DO NOTHING
		RETURNING `+accountColumns,
		id.String(), strings.ToLower(input.Email), input.Name, input.Role, input.PasswordHash, time.Now().UTC())
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrEmailTaken
		}
		return Account{}, fmt.Errorf("insert account: %w", err)
	}
	return account, nil
}

// UpsertAdmin creates the bootstrap administrator or resets its password and role.
func (r *Repository) UpsertAdmin(ctx context.Context, email, passwordHash string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate uuid v7: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, name, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, 'Administrator', $3, $4, $5, $5)
		ON CONFLICT (email) DO UPDATE SET
			role = EXCLUDED.role,
			password_hash = EXCLUDED.password_hash,
			failed_attempts = 0,
			last_failed_at = NULL,
			locked_until = NULL,
			updated_at = EXCLUDED.updated_at
	`, id.String(), strings.ToLower(email), RoleAdmin, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert admin account: %w", err)
	}
	return nil
}

// ClearElapsedLocks resets lockout columns on accounts whose lock window has
// passed and whose last failure is older than retention. It returns the rows touched.
// ClearElapsedLocks zeroes the lockout columns of accounts whose lock has
// already run out. Login treats such rows as unlocked anyway.
func (r *Repository) ClearElapsedLocks(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH elapsed AS (
			SELECT id
			FROM accounts
			WHERE locked_until IS NOT NULL
			  AND locked_until <= $1
			ORDER BY locked_until ASC
			LIMIT $2
		)
		UPDATE accounts a
		SET failed_attempts = 0, last_failed_at = NULL, locked_until = NULL, updated_at = $1
		FROM elapsed
		WHERE a.id = elapsed.id
	`, now.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("clear elapsed locks: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("elapsed locks rows affected: %w", err)
	}
	return affected, nil
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}

func timePtrValue(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC()
}
