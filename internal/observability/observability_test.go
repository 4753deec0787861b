package observability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf)

	logger.Warn("csrf_rejected", map[string]any{"reason": "CSRF_MISMATCH", "level": "ignored"})

	var payload map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &payload))
	assert.Equal(t, "warn", payload["level"])
	assert.Equal(t, "csrf_rejected", payload["message"])
	assert.Equal(t, "CSRF_MISMATCH", payload["reason"])
	assert.NotEmpty(t, payload["timestamp"])
}

func TestNilLoggerIsNoop(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() { logger.Info("anything", nil) })
}

func TestRecoverMiddlewareAnswers500(t *testing.T) {
	var buf bytes.Buffer
	handler := RecoverMiddleware(NewLoggerTo(&buf), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
	assert.True(t, strings.Contains(buf.String(), "panic_recovered"))
}

func TestRequestLoggingRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	handler := RequestLoggingMiddleware(NewLoggerTo(&buf), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &payload))
	assert.EqualValues(t, http.StatusTeapot, payload["status"])
	assert.Equal(t, "203.0.113.9", payload["ip"])
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestClientIPStripsPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:52311"
	assert.Equal(t, "198.51.100.7", ClientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.9 ,10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(req))
}
