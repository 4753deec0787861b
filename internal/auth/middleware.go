package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type contextKey int

const authStateKey contextKey = iota

var errMissingToken = errors.New("access token required")

type authState struct {
	identity Identity
	err      error
}

// Identify resolves the bearer token, if any, and records the outcome on the
// request context. It never rejects; Require and RequireRole do.
func Identify(tokens *TokenIssuer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := authState{err: errMissingToken}

		if tokenStr, ok := bearerToken(r); ok {
			if tokens == nil {
				state.err = ErrMissingSigningSecret
			} else if identity, err := tokens.Validate(tokenStr); err != nil {
				state.err = ErrInvalidToken
			} else {
				state = authState{identity: identity}
			}
		}

		ctx := context.WithValue(r.Context(), authStateKey, state)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorize(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireRole(role string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorize(w, r) {
			return
		}
		identity, _ := IdentityFromContext(r.Context())
		if identity.Role != role {
			writeError(w, http.StatusForbidden, "insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func authorize(w http.ResponseWriter, r *http.Request) bool {
	state, ok := r.Context().Value(authStateKey).(authState)
	if !ok {
		state = authState{err: errMissingToken}
	}

	switch {
	case state.err == nil:
		return true
	case errors.Is(state.err, errMissingToken):
		writeError(w, http.StatusUnauthorized, "access token required")
	case errors.Is(state.err, ErrMissingSigningSecret):
		writeError(w, http.StatusInternalServerError, "authentication unavailable")
	default:
		writeError(w, http.StatusForbidden, "invalid or expired token")
	}
	return false
}

// IdentityFromContext returns the identity resolved by Identify, if the token was valid.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	state, ok := ctx.Value(authStateKey).(authState)
	if !ok || state.err != nil {
		return Identity{}, false
	}
	return state.identity, true
}

// WithIdentity attaches an already-authenticated identity to ctx.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, authStateKey, authState{identity: identity})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
