// Package csrf implements double-submit CSRF protection backed by a
// server-side store holding one live token per account.
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"time"
)

const (
	DefaultTTL           = 24 * time.Hour
	DefaultSweepInterval = time.Hour

	tokenBytes = 32
)

var ErrTokenInvalid = errors.New("csrf token invalid or expired")

// Store maps an account to its single live CSRF token. Issuing replaces any
// previous token for the account.
type Store interface {
	Issue(ctx context.Context, accountID string) (token string, expiresAt time.Time, err error)
	// Validate returns ErrTokenInvalid unless token is the account's live token.
	Validate(ctx context.Context, accountID, token string) error
	Revoke(ctx context.Context, accountID string) error
	// Sweep evicts expired entries and reports how many were removed.
	Sweep(ctx context.Context) (int, error)
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func tokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
