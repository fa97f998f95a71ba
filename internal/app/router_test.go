package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/jobs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) httpx.Envelope {
	t.Helper()
	var env httpx.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestRouterHealthAndFallbacks(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger:     testLogger(),
		Config:     &Config{AppEnv: "development"},
		Metrics:    observability.NewMetrics(),
		JobHandler: jobs.NewHandler(nil, testLogger()),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	env := decode(t, rec)
	require.False(t, env.Success)
	require.Equal(t, "Route not found", env.Message)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "backoffice_http_requests_total")
}

func TestRouterReadiness(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger: testLogger(),
		Checks: map[string]Pinger{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "up", status["postgres"])
	require.Equal(t, "down", status["redis"])
}

type memoryKeys struct {
	seen map[string]bool
	err  error
}

func (m *memoryKeys) CheckAndInsert(_ context.Context, key, module string) error {
	if m.err != nil {
		return m.err
	}
	id := module + ":" + key
	if m.seen[id] {
		return shared.ErrIdempotencyConflict
	}
	m.seen[id] = true
	return nil
}

func TestIdempotentMiddleware(t *testing.T) {
	keys := &memoryKeys{seen: map[string]bool{}}
	calls := 0
	r := chi.NewRouter()
	r.Use(Idempotent(keys, "orders", testLogger()))
	r.Post("/", func(w http.ResponseWriter, r *http.Request) {
		calls++
		httpx.OK(w, http.StatusCreated, nil, "created")
	})
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		calls++
		httpx.OK(w, http.StatusOK, nil, "")
	})

	post := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if key != "" {
			req.Header.Set(IdempotencyHeader, key)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusCreated, post("abc").Code)
	replay := post("abc")
	require.Equal(t, http.StatusConflict, replay.Code)
	require.Equal(t, "Duplicate request", decode(t, replay).Message)
	require.Equal(t, http.StatusCreated, post("").Code)
	require.Equal(t, http.StatusCreated, post("").Code)

	get := httptest.NewRequest(http.MethodGet, "/", nil)
	get.Header.Set(IdempotencyHeader, "abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, get)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 4, calls)

	keys.err = errors.New("db down")
	require.Equal(t, http.StatusInternalServerError, post("xyz").Code)
}

func TestRouterCORSPreflight(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger: testLogger(),
		Config: &Config{FrontendURL: "https://admin.example.co.ke/"},
	})
	req := httptest.NewRequest(http.MethodOptions, "/api/products", nil)
	req.Header.Set("Origin", "https://admin.example.co.ke")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", IdempotencyHeader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, "https://admin.example.co.ke", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/products", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
