package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ftotnem/POINTS-LEDGER/shared/logger"
)

func TestRouterServesHealth(t *testing.T) {
	router := NewRouter(logger.Discard())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDMiddlewareKeepsInboundID(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/admin/adjustments", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, called)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestClientMapsStatusCodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			WriteNotFound(w, "team t-9 not found")
		case "/denied":
			WriteForbidden(w, "administrator capability required")
		case "/auth":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			_ = WriteJSON(w, http.StatusOK, map[string]string{"ok": "yes"})
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())

	err := client.Get(context.Background(), "/missing", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "team t-9 not found")

	err = client.Get(context.Background(), "/denied", nil)
	assert.True(t, errors.Is(err, ErrForbidden))

	var out map[string]string
	require.NoError(t, client.WithBearerToken("tok").Get(context.Background(), "/auth", &out))
	assert.Equal(t, "yes", out["ok"])
}
