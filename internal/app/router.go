package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"cybertrainer/internal/auth"
	"cybertrainer/internal/config"
	"cybertrainer/internal/csrf"
	"cybertrainer/internal/maintenance"
	"cybertrainer/internal/observability"
	"cybertrainer/internal/settings"
)

// Deps is everything the HTTP layer needs. Build fills it from real
// infrastructure; tests can fill it with in-memory stores.
type Deps struct {
	Config      config.Config
	Logger      *observability.Logger
	Auth        *auth.Service
	Tokens      *auth.TokenIssuer
	CSRFStore   csrf.Store
	Settings    settings.Store
	LockCleaner maintenance.LockCleaner
	Health      func(ctx context.Context) error
}

func NewHandler(deps Deps) http.Handler {
	cfg := deps.Config
	logger := deps.Logger

	authHandler := auth.NewHandler(deps.Auth, logger)
	csrfHandler := csrf.NewHandler(deps.CSRFStore, cfg.CSRFTokenTTL, !cfg.IsDevelopment(), logger)
	settingsHandler := settings.NewHandler(deps.Settings, logger)
	cleanupHandler := maintenance.NewCleanupHandler(deps.LockCleaner, deps.CSRFStore, logger, cfg.CronSecret, cfg.CleanupBatchSize)
	throttle := auth.NewLoginThrottle(cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler(deps.Health))
	mux.Handle("POST /auth/login", throttle.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /auth/register", authHandler.Register)
	mux.Handle("GET /auth/me", auth.Require(http.HandlerFunc(authHandler.Me)))
	mux.Handle("GET /auth/csrf-token", auth.Require(http.HandlerFunc(csrfHandler.IssueToken)))
	mux.Handle("POST /auth/logout", auth.Require(http.HandlerFunc(csrfHandler.Logout)))
	mux.HandleFunc("GET /settings/public", settingsHandler.GetPublic)
	mux.Handle("PUT /admin/settings/{key}", auth.RequireRole(auth.RoleAdmin, http.HandlerFunc(settingsHandler.Update)))
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)

	gate := csrf.NewGate(csrf.GateConfig{
		Store:          deps.CSRFStore,
		AllowedOrigins: cfg.AllowedOrigins,
		PublicPaths:    csrf.DefaultPublicPaths,
		Logger:         logger,
	})

	var handler http.Handler = mux
	handler = gate.Middleware(handler)
	handler = auth.Identify(deps.Tokens, handler)
	handler = observability.SecurityHeadersMiddleware(handler)
	handler = observability.RequestLoggingMiddleware(logger, handler)
	handler = observability.RecoverMiddleware(logger, handler)
	return handler
}

func healthHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if ping != nil {
			if err := ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
