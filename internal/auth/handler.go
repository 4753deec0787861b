package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cybertrainer/internal/observability"
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	maxJSONBodyBytes  = 1 << 20
	maxEmailLength    = 254
	maxNameLength     = 100
	maxPasswordLength = 200
	minNewPassword    = 8
	maxNewPassword    = 72
)

type Handler struct {
	service *Service
	logger  *observability.Logger
}

func NewHandler(service *Service, logger *observability.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.Email = strings.TrimSpace(body.Email)
	if msg := validateEmail(body.Email); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if body.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}
	if len(body.Password) > maxPasswordLength {
		writeError(w, http.StatusBadRequest, "password format is invalid")
		return
	}

	result, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		var lockedErr ErrLoginLocked
		var failedErr LoginFailedError
		switch {
		case errors.As(err, &lockedErr):
			retryAfter := int(lockedErr.Until.Sub(h.service.now()).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSON(w, http.StatusLocked, map[string]any{
				"error":            "account temporarily locked due to too many failed login attempts",
				"lockedUntil":      lockedErr.Until.UTC().Format(time.RFC3339),
				"minutesRemaining": lockedErr.MinutesRemaining,
			})
		case errors.As(err, &failedErr):
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error":             ErrInvalidCredentials.Error(),
				"attemptsRemaining": failedErr.AttemptsRemaining,
			})
		case errors.Is(err, ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
		default:
			h.logger.Error("login_failed_internal", map[string]any{"error": err.Error()})
			observability.CaptureError(r, err)
			writeError(w, http.StatusInternalServerError, "failed to login")
		}
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.Email = strings.TrimSpace(body.Email)
	body.Name = strings.TrimSpace(body.Name)
	if msg := validateEmail(body.Email); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if body.Name == "" || len(body.Name) > maxNameLength {
		writeError(w, http.StatusBadRequest, "name is invalid")
		return
	}
	if len(body.Password) < minNewPassword || len(body.Password) > maxNewPassword {
		writeError(w, http.StatusBadRequest, "password must be between 8 and 72 bytes")
		return
	}

	summary, err := h.service.Register(r.Context(), body.Email, body.Name, body.Password)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		h.logger.Error("register_failed", map[string]any{"error": err.Error()})
		observability.CaptureError(r, err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"user": summary})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "access token required")
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func validateEmail(email string) string {
	if email == "" {
		return "email is required"
	}
	if len(email) > maxEmailLength || !emailRegex.MatchString(email) {
		return "email format is invalid"
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
