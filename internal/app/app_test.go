package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"cybertrainer/internal/auth"
	"cybertrainer/internal/config"
	"cybertrainer/internal/csrf"
	"cybertrainer/internal/observability"
	"cybertrainer/internal/settings"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "admin password"
	allowedOrigin = "http://localhost:3000"
)

type memorySettings struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memorySettings) Lookup(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *memorySettings) Public(context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]string{settings.KeySiteName: m.values[settings.KeySiteName]}, nil
}

func (m *memorySettings) Set(_ context.Context, key, value string) (settings.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return settings.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}, nil
}

type testApp struct {
	handler http.Handler
}

func newTestApp(t *testing.T, health func(context.Context) error) testApp {
	t.Helper()

	logger := observability.Discard()
	store := &memorySettings{values: map[string]string{
		settings.KeyMaxLoginAttempts:   "5",
		settings.KeySessionTimeoutDays: "7",
		settings.KeySiteName:           "CyberTrainer",
	}}
	provider := settings.NewProvider(logger, store)

	tokens, err := auth.NewTokenIssuer("test-signing-secret", provider)
	require.NoError(t, err)

	service := auth.NewService(auth.NewMemoryStore(), auth.NewBcryptHasher(bcrypt.MinCost), tokens, provider, logger)
	require.NoError(t, service.BootstrapAdmin(context.Background(), adminEmail, adminPassword))

	handler := NewHandler(Deps{
		Config: config.Config{
			AppEnv:               "test",
			AllowedOrigins:       []string{allowedOrigin},
			CSRFTokenTTL:         csrf.DefaultTTL,
			LoginRateLimitMax:    100,
			LoginRateLimitWindow: time.Minute,
			CronSecret:           "cron-secret",
		},
		Logger:    logger,
		Auth:      service,
		Tokens:    tokens,
		CSRFStore: csrf.NewMemoryStore(csrf.DefaultTTL),
		Settings:  store,
		Health:    health,
	})

	return testApp{handler: handler}
}

type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCSRF(header, cookie string) requestOption {
	return func(r *http.Request) {
		r.Header.Set(csrf.HeaderName, header)
		r.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: cookie})
		r.Header.Set("Origin", allowedOrigin)
	}
}

func (a testApp) do(method, path, body string, options ...requestOption) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, option := range options {
		option(req)
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func (a testApp) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := a.do(http.MethodPost, "/auth/login", `{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	token, _ := decodeBody(t, rec)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func (a testApp) csrfToken(t *testing.T, bearer string) string {
	t.Helper()
	rec := a.do(http.MethodGet, "/auth/csrf-token", "", withBearer(bearer))
	require.Equal(t, http.StatusOK, rec.Code)

	token, _ := decodeBody(t, rec)["csrfToken"].(string)
	require.NotEmpty(t, token)

	var cookieValue string
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == csrf.CookieName {
			cookieValue = cookie.Value
		}
	}
	require.Equal(t, token, cookieValue)
	return token
}

func TestMutationWithMatchingCSRFPairReachesHandler(t *testing.T) {
	app := newTestApp(t, nil)
	bearer := app.login(t, adminEmail, adminPassword)
	token := app.csrfToken(t, bearer)

	rec := app.do(http.MethodPut, "/admin/settings/siteName", `{"value":"Range"}`, withBearer(bearer), withCSRF(token, token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Range", decodeBody(t, rec)["value"])

	altered := "A" + token[1:]
	if token[0] == 'A' {
		altered = "B" + token[1:]
	}
	rec = app.do(http.MethodPut, "/admin/settings/siteName", `{"value":"Other"}`, withBearer(bearer), withCSRF(altered, token))
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(csrf.ReasonMismatch), decodeBody(t, rec)["code"])

	rec = app.do(http.MethodGet, "/settings/public", "")
	assert.JSONEq(t, `{"siteName":"Range"}`, rec.Body.String())
}

func TestMutationWithoutCSRFTokenIsRejected(t *testing.T) {
	app := newTestApp(t, nil)
	bearer := app.login(t, adminEmail, adminPassword)

	rec := app.do(http.MethodPut, "/admin/settings/siteName", `{"value":"Range"}`, withBearer(bearer))
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(csrf.ReasonMissingHeader), decodeBody(t, rec)["code"])
}

func TestSettingsUpdateChangesLockoutThreshold(t *testing.T) {
	app := newTestApp(t, nil)
	bearer := app.login(t, adminEmail, adminPassword)
	token := app.csrfToken(t, bearer)

	rec := app.do(http.MethodPut, "/admin/settings/maxLoginAttempts", `{"value":2}`, withBearer(bearer), withCSRF(token, token))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(http.MethodPost, "/auth/register", `{"email":"trainee@example.com","name":"Trainee","password":"trainee password"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	wrong := `{"email":"trainee@example.com","password":"not it"}`
	rec = app.do(http.MethodPost, "/auth/login", wrong)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["attemptsRemaining"])

	rec = app.do(http.MethodPost, "/auth/login", wrong)
	require.Equal(t, http.StatusLocked, rec.Code)
	assert.NotEmpty(t, decodeBody(t, rec)["lockedUntil"])

	rec = app.do(http.MethodPost, "/auth/login", `{"email":"trainee@example.com","password":"trainee password"}`)
	assert.Equal(t, http.StatusLocked, rec.Code)
}

func TestAuthenticationStatuses(t *testing.T) {
	app := newTestApp(t, nil)

	rec := app.do(http.MethodGet, "/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "access token required", decodeBody(t, rec)["error"])

	rec = app.do(http.MethodGet, "/auth/me", "", withBearer("forged.token.value"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "invalid or expired token", decodeBody(t, rec)["error"])

	bearer := app.login(t, adminEmail, adminPassword)
	rec = app.do(http.MethodGet, "/auth/me", "", withBearer(bearer))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.RoleAdmin, decodeBody(t, rec)["role"])
}

func TestNonAdminCannotUpdateSettings(t *testing.T) {
	app := newTestApp(t, nil)

	rec := app.do(http.MethodPost, "/auth/register", `{"email":"trainee@example.com","name":"Trainee","password":"trainee password"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	bearer := app.login(t, "trainee@example.com", "trainee password")
	token := app.csrfToken(t, bearer)

	rec = app.do(http.MethodPut, "/admin/settings/maxLoginAttempts", `{"value":50}`, withBearer(bearer), withCSRF(token, token))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "insufficient permissions", decodeBody(t, rec)["error"])
}

func TestLogoutRevokesCSRFToken(t *testing.T) {
	app := newTestApp(t, nil)
	bearer := app.login(t, adminEmail, adminPassword)
	token := app.csrfToken(t, bearer)

	rec := app.do(http.MethodPost, "/auth/logout", "", withBearer(bearer), withCSRF(token, token))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = app.do(http.MethodPut, "/admin/settings/siteName", `{"value":"Range"}`, withBearer(bearer), withCSRF(token, token))
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(csrf.ReasonInvalid), decodeBody(t, rec)["code"])
}

func TestMaintenanceCleanupBypassesCSRF(t *testing.T) {
	app := newTestApp(t, nil)

	rec := app.do(http.MethodPost, "/internal/maintenance/cleanup", "", withBearer("cron-secret"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, nil)
	rec := app.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	down := newTestApp(t, func(context.Context) error { return errors.New("connection refused") })
	rec = down.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decodeBody(t, rec)["status"])
}
