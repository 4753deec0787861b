package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerFailsClosedWithoutConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		Handler(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"application bootstrap failed"}`, rec.Body.String())
	}
}
