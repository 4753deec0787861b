package csrf

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	"cybertrainer/internal/auth"
	"cybertrainer/internal/observability"
)

const (
	HeaderName = "X-CSRF-Token"
	CookieName = "csrf-token"
)

type Reason string

const (
	ReasonMissingHeader Reason = "CSRF_MISSING_HEADER"
	ReasonMissingCookie Reason = "CSRF_MISSING_COOKIE"
	ReasonMismatch      Reason = "CSRF_MISMATCH"
	ReasonInvalid       Reason = "CSRF_INVALID"
	ReasonBadOrigin     Reason = "CSRF_BAD_ORIGIN"
)

var reasonMessages = map[Reason]string{
	ReasonMissingHeader: "CSRF token missing from header",
	ReasonMissingCookie: "CSRF token missing from cookie",
	ReasonMismatch:      "CSRF token mismatch",
	ReasonInvalid:       "CSRF token invalid or expired",
	ReasonBadOrigin:     "invalid origin",
}

// DefaultPublicPaths never require a CSRF token.
var DefaultPublicPaths = []string{"/health", "/auth/login", "/auth/register", "/settings/public"}

type GateConfig struct {
	Store          Store
	AllowedOrigins []string
	PublicPaths    []string
	Logger         *observability.Logger
}

// Gate rejects state-changing requests from authenticated callers unless the
// X-CSRF-Token header and csrf-token cookie agree with the stored token.
type Gate struct {
	store   Store
	origins map[string]struct{}
	public  map[string]struct{}
	logger  *observability.Logger
}

func NewGate(cfg GateConfig) *Gate {
	g := &Gate{
		store:   cfg.Store,
		origins: make(map[string]struct{}, len(cfg.AllowedOrigins)),
		public:  make(map[string]struct{}, len(cfg.PublicPaths)),
		logger:  cfg.Logger,
	}
	for _, origin := range cfg.AllowedOrigins {
		if normalized, ok := normalizeOrigin(origin); ok {
			g.origins[normalized] = struct{}{}
		}
	}
	for _, path := range cfg.PublicPaths {
		g.public[path] = struct{}{}
	}
	return g
}

func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := g.public[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		// unauthenticated requests are left for the auth layer to refuse
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		headerToken := strings.TrimSpace(r.Header.Get(HeaderName))
		if headerToken == "" {
			g.reject(w, r, identity.AccountID, ReasonMissingHeader)
			return
		}

		cookie, err := r.Cookie(CookieName)
		if err != nil || cookie.Value == "" {
			g.reject(w, r, identity.AccountID, ReasonMissingCookie)
			return
		}

		if !tokensEqual(headerToken, cookie.Value) {
			g.reject(w, r, identity.AccountID, ReasonMismatch)
			return
		}

		if err := g.store.Validate(r.Context(), identity.AccountID, headerToken); err != nil {
			if !errors.Is(err, ErrTokenInvalid) {
				g.logger.Error("csrf_store_failed", map[string]any{"error": err.Error()})
				observability.CaptureError(r, err)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
				return
			}
			g.reject(w, r, identity.AccountID, ReasonInvalid)
			return
		}

		if !g.originAllowed(r) {
			g.reject(w, r, identity.AccountID, ReasonBadOrigin)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// originAllowed tolerates requests carrying neither Origin nor Referer.
func (g *Gate) originAllowed(r *http.Request) bool {
	source := r.Header.Get("Origin")
	if source == "" {
		source = r.Header.Get("Referer")
	}
	if source == "" {
		return true
	}

	origin, ok := normalizeOrigin(source)
	if !ok {
		return false
	}
	_, allowed := g.origins[origin]
	return allowed
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, accountID string, reason Reason) {
	g.logger.Warn("csrf_rejected", map[string]any{
		"account_id": accountID,
		"method":     r.Method,
		"path":       r.URL.Path,
		"code":       string(reason),
	})
	writeJSON(w, http.StatusForbidden, map[string]string{
		"error": reasonMessages[reason],
		"code":  string(reason),
	})
}

// normalizeOrigin reduces a URL to scheme://host:port with the port made explicit.
func normalizeOrigin(raw string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return "", false
	}

	scheme := strings.ToLower(parsed.Scheme)
	port := parsed.Port()
	switch {
	case port != "":
	case scheme == "https":
		port = "443"
	case scheme == "http":
		port = "80"
	default:
		return "", false
	}
	return scheme + "://" + net.JoinHostPort(strings.ToLower(parsed.Hostname()), port), true
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
