package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"cybertrainer/internal/observability"
)

// LockCleaner clears lockouts whose window has already passed.
type LockCleaner interface {
	ClearElapsedLocks(ctx context.Context, now time.Time, batchSize int) (int64, error)
}

// TokenSweeper evicts expired CSRF tokens.
type TokenSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type Result struct {
	SweptCSRFTokens int   `json:"sweptCsrfTokens"`
	ClearedLocks    int64 `json:"clearedLocks"`
}

type CleanupHandler struct {
	locks      LockCleaner
	tokens     TokenSweeper
	logger     *observability.Logger
	cronSecret string
	batchSize  int
	now        func() time.Time
}

func NewCleanupHandler(locks LockCleaner, tokens TokenSweeper, logger *observability.Logger, cronSecret string, batchSize int) *CleanupHandler {
	return &CleanupHandler{
		locks:      locks,
		tokens:     tokens,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		batchSize:  batchSize,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Handle runs one cleanup pass. It answers 404 when no cron secret is configured.
func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, secret, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(secret) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var result Result

	swept, err := h.tokens.Sweep(r.Context())
	if err != nil {
		h.fail(w, r, "csrf_sweep_failed", err)
		return
	}
	result.SweptCSRFTokens = swept

	if h.locks != nil {
		cleared, err := h.locks.ClearElapsedLocks(r.Context(), h.now(), h.batchSize)
		if err != nil {
			h.fail(w, r, "lockout_cleanup_failed", err)
			return
		}
		result.ClearedLocks = cleared
	}

	h.logger.Info("maintenance_cleanup_completed", map[string]any{
		"swept_csrf_tokens": result.SweptCSRFTokens,
		"cleared_locks":     result.ClearedLocks,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

func (h *CleanupHandler) fail(w http.ResponseWriter, r *http.Request, event string, err error) {
	h.logger.Error(event, map[string]any{"error": err.Error()})
	observability.CaptureError(r, err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
