package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestScrapeIncludesZeroBatchSeries(t *testing.T) {
	body := scrape(t, NewMetrics())
	for _, result := range []string{BatchOK, BatchEmpty, BatchSkipped, BatchFailed} {
		require.Contains(t, body, `backoffice_purchase_batches_total{result="`+result+`"} 0`)
	}
	require.Contains(t, body, "go_goroutines")
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := NewMetrics()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/products/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/products/"+id, nil))
	}
	require.Equal(t, 3.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("/api/products/{id}", "404")))
	require.Equal(t, 1, testutil.CollectAndCount(m.requestDuration))

	rec := httptest.NewRecorder()
	plain := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) }))
	plain.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil).WithContext(context.Background()))
	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("unknown", "418")))
}

func TestDomainCounters(t *testing.T) {
	m := NewMetrics()
	m.ObserveBatch(BatchOK, 3)
	m.ObserveBatch(BatchSkipped, 0)
	m.ObservePurchaseOrder()
	m.ObserveEmail("purchase_order", errors.New("smtp down"))
	m.ObserveEmail("purchase_order", nil)
	m.ObserveGoodsReceipt()

	require.Equal(t, 1.0, testutil.ToFloat64(m.batches.WithLabelValues(BatchOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.batches.WithLabelValues(BatchSkipped)))
	require.Equal(t, 4.0, testutil.ToFloat64(m.posCreated))
	require.Equal(t, 1.0, testutil.ToFloat64(m.emails.WithLabelValues("purchase_order", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.emails.WithLabelValues("purchase_order", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.receipts))
}

func TestNilMetricsAreInert(t *testing.T) {
	var m *Metrics
	m.ObserveBatch(BatchFailed, 0)
	m.ObserveEmail("welcome", nil)
	m.ObservePurchaseOrder()
	m.ObserveGoodsReceipt()

	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	require.NotNil(t, m.Middleware(next))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
