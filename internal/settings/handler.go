package settings

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"cybertrainer/internal/observability"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)

const (
	maxJSONBodyBytes = 1 << 16
	maxValueLength   = 1000
)

// integer settings and their inclusive upper bound
var intBounds = map[string]int{
	KeyMaxLoginAttempts:   100,
	KeySessionTimeoutDays: 365,
}

type Store interface {
	Public(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) (Setting, error)
}

type Handler struct {
	store  Store
	logger *observability.Logger
}

func NewHandler(store Store, logger *observability.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) GetPublic(w http.ResponseWriter, r *http.Request) {
	values, err := h.store.Public(r.Context())
	if err != nil {
		h.logger.Error("settings_public_failed", map[string]any{"error": err.Error()})
		observability.CaptureError(r, err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !keyPattern.MatchString(key) {
		writeError(w, http.StatusBadRequest, "key is invalid")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()

	var body struct {
		Value any `json:"value"`
	}
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	value, msg := normalizeValue(key, body.Value)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	setting, err := h.store.Set(r.Context(), key, value)
	if err != nil {
		h.logger.Error("settings_update_failed", map[string]any{"key": key, "error": err.Error()})
		observability.CaptureError(r, err)
		writeError(w, http.StatusInternalServerError, "failed to update setting")
		return
	}

	h.logger.Info("settings_updated", map[string]any{"key": key})
	writeJSON(w, http.StatusOK, setting)
}

func normalizeValue(key string, raw any) (string, string) {
	var value string
	switch v := raw.(type) {
	case string:
		value = strings.TrimSpace(v)
	case json.Number:
		value = v.String()
	case bool:
		value = strconv.FormatBool(v)
	default:
		return "", "value is required"
	}

	if value == "" || len(value) > maxValueLength {
		return "", "value is invalid"
	}

	if upper, ok := intBounds[key]; ok {
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > upper {
			return "", key + " must be an integer between 1 and " + strconv.Itoa(upper)
		}
		value = strconv.Itoa(n)
	}
	return value, ""
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
