package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookstore/internal/auth"
	"bookstore/internal/httpx"
	"bookstore/internal/testutil"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Run("generates an id when none supplied", func(t *testing.T) {
		var seen string
		h := httpx.RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = httpx.RequestIDFrom(r)
		}))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, w.Header().Get("X-Request-Id"))
	})

	t.Run("echoes the caller's id", func(t *testing.T) {
		h := httpx.RequestIDMiddleware(okHandler())

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-Id", "abc-123")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, "abc-123", w.Header().Get("X-Request-Id"))
	})
}

func TestAuthMiddleware(t *testing.T) {
	protected := func() http.Handler {
		return httpx.AuthMiddleware(testutil.TestSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFrom(r.Context())
			require.True(t, ok)
			w.Header().Set("X-Subject", id.Subject)
			w.WriteHeader(http.StatusOK)
		}))
	}

	t.Run("missing token rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		protected().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		resp := testutil.RecordHTTPResponse(w)
		assert.Equal(t, http.StatusUnauthorized, resp.Code)
		assert.Equal(t, "Unauthorized", resp.Body["title"])
	})

	t.Run("malformed token rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer not.a.token")
		w := httptest.NewRecorder()
		protected().ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		token := testutil.GenerateExpiredToken(testutil.TestSecret, "user-1", auth.RoleUser)
		w := httptest.NewRecorder()
		protected().ServeHTTP(w, testutil.NewRequestWithAuth(http.MethodGet, "/", nil, token))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("roleless token rejected", func(t *testing.T) {
		token := testutil.GenerateTestToken(testutil.TestSecret, "user-1")
		w := httptest.NewRecorder()
		protected().ServeHTTP(w, testutil.NewRequestWithAuth(http.MethodGet, "/", nil, token))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token attaches identity", func(t *testing.T) {
		token := testutil.GenerateTestToken(testutil.TestSecret, "user-1", auth.RoleUser)
		w := httptest.NewRecorder()
		protected().ServeHTTP(w, testutil.NewRequestWithAuth(http.MethodGet, "/", nil, token))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user-1", w.Header().Get("X-Subject"))
	})
}

func TestWriteProblem(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(httpx.ContextWithRequestID(r.Context(), "req-1"))
	w := httptest.NewRecorder()

	httpx.WriteProblem(r, w, http.StatusNotFound, "Book Not Found", "book not found")

	resp := testutil.RecordHTTPResponse(w)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, float64(404), resp.Body["status"])
	assert.Equal(t, "Book Not Found", resp.Body["title"])
	assert.Equal(t, "book not found", resp.Body["detail"])
	assert.Equal(t, "req-1", resp.Body["request_id"])
	assert.NotEmpty(t, resp.Body["timestamp"])
}

func TestWriteValidationProblem(t *testing.T) {
	w := httptest.NewRecorder()
	httpx.WriteValidationProblem(httptest.NewRequest(http.MethodPost, "/", nil), w, map[string]string{
		"title": "Title is required",
	})

	resp := testutil.RecordHTTPResponse(w)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "Validation Error", resp.Body["title"])
	errs := resp.Body["errors"].(map[string]any)
	assert.Equal(t, "Title is required", errs["title"])
}

func TestRequestSizeLimitMiddleware(t *testing.T) {
	h := httpx.RequestSizeLimitMiddleware(10)(okHandler())

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.ContentLength = 11
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	h := httpx.SecurityHeadersMiddleware(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}
