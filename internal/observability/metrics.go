// Package observability exposes Prometheus metrics for the API and background work.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Batch outcomes recorded by ObserveBatch.
const (
	BatchOK      = "ok"
	BatchEmpty   = "empty"
	BatchSkipped = "skipped"
	BatchFailed  = "failed"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	batches         *prometheus.CounterVec
	posCreated      prometheus.Counter
	emails          *prometheus.CounterVec
	receipts        prometheus.Counter
}

// NewMetrics initialises the registry and every collector.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backoffice_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_purchase_batches_total",
		Help: "Order to purchase order batch runs by result.",
	}, []string{"result"})
	posCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backoffice_purchase_orders_created_total",
		Help: "Purchase orders created by batches and by hand.",
	})
	emails := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_emails_total",
		Help: "Transactional emails by template and result.",
	}, []string{"template", "result"})
	receipts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backoffice_goods_receipts_total",
		Help: "Goods received notes posted.",
	})
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		requests, duration, batches, posCreated, emails, receipts,
	)
	// pre-create series so dashboards and alerts see zeros
	for _, r := range []string{BatchOK, BatchEmpty, BatchSkipped, BatchFailed} {
		batches.WithLabelValues(r)
	}
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		requestsTotal:   requests,
		requestDuration: duration,
		batches:         batches,
		posCreated:      posCreated,
		emails:          emails,
		receipts:        receipts,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveBatch counts a batch run and the purchase orders it created.
func (m *Metrics) ObserveBatch(result string, created int) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(result).Inc()
	m.posCreated.Add(float64(created))
}

// ObservePurchaseOrder counts a manually created purchase order.
func (m *Metrics) ObservePurchaseOrder() {
	if m == nil {
		return
	}
	m.posCreated.Inc()
}

// ObserveEmail counts a delivery attempt.
func (m *Metrics) ObserveEmail(template string, err error) {
	if m == nil {
		return
	}
	m.emails.WithLabelValues(template, result(err)).Inc()
}

// ObserveGoodsReceipt counts a posted GRN.
func (m *Metrics) ObserveGoodsReceipt() {
	if m == nil {
		return
	}
	m.receipts.Inc()
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
