package csrf

import (
	"net/http"
	"time"

	"cybertrainer/internal/auth"
	"cybertrainer/internal/observability"
)

type Handler struct {
	store         Store
	ttl           time.Duration
	secureCookies bool
	logger        *observability.Logger
}

// NewHandler serves token issuance and logout. Cookies are always Secure when
// secureCookies is set, and otherwise only on HTTPS requests.
func NewHandler(store Store, ttl time.Duration, secureCookies bool, logger *observability.Logger) *Handler {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Handler{store: store, ttl: ttl, secureCookies: secureCookies, logger: logger}
}

func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "access token required"})
		return
	}

	token, expiresAt, err := h.store.Issue(r.Context(), identity.AccountID)
	if err != nil {
		h.logger.Error("csrf_issue_failed", map[string]any{"account_id": identity.AccountID, "error": err.Error()})
		observability.CaptureError(r, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to issue csrf token"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   h.secure(r),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(h.ttl.Seconds()),
	})

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]any{
		"csrfToken": token,
		"expiresAt": expiresAt.UTC(),
	})
}

// Logout revokes the caller's CSRF token. Session tokens are stateless and
// are dropped by the client.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "access token required"})
		return
	}

	if err := h.store.Revoke(r.Context(), identity.AccountID); err != nil {
		h.logger.Error("csrf_revoke_failed", map[string]any{"account_id": identity.AccountID, "error": err.Error()})
		observability.CaptureError(r, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to logout"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: false,
		Secure:   h.secure(r),
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})

	h.logger.Info("logout", map[string]any{"account_id": identity.AccountID})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) secure(r *http.Request) bool {
	return h.secureCookies || observability.RequestIsSecure(r)
}
