package auth

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Account struct {
	ID           string
	Email        string
	Name         string
	Role         string
	PasswordHash string
	Lockout      LockoutState
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LockoutState is the slice of the account record owned by the lockout policy.
type LockoutState struct {
	FailedAttempts int
	LastFailedAt   *time.Time
	LockedUntil    *time.Time
}

type AccountSummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func (a Account) Summary() AccountSummary {
	return AccountSummary{ID: a.ID, Email: a.Email, Name: a.Name, Role: a.Role}
}

type NewAccount struct {
	Email        string
	Name         string
	Role         string
	PasswordHash string
}

// Identity is what an authenticated request exposes to downstream handlers.
type Identity struct {
	AccountID string `json:"id"`
	Role      string `json:"role"`
}

type LoginResult struct {
	User      AccountSummary `json:"user"`
	Token     string         `json:"token"`
	TokenType string         `json:"tokenType"`
	ExpiresAt time.Time      `json:"expiresAt"`
}
