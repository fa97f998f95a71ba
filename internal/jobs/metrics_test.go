package jobmetrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestTrackerRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	fixed := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	metrics.now = func() time.Time { return fixed }

	for i := 0; i < 3; i++ {
		if err := metrics.Track("procurement:batch").End(nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	boom := errors.New("smtp down")
	if err := metrics.Track("mail:send").End(boom); !errors.Is(err, boom) {
		t.Fatal("expected error to propagate")
	}
	metrics.Track("procurement:batch").Skip()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got := counter(families, "backoffice_jobs_total", map[string]string{"job": "procurement:batch", "status": "success"}); got != 3 {
		t.Fatalf("expected 3 successes, got %v", got)
	}
	if got := counter(families, "backoffice_jobs_total", map[string]string{"job": "procurement:batch", "status": "skipped"}); got != 1 {
		t.Fatalf("expected 1 skip, got %v", got)
	}
	if got := counter(families, "backoffice_jobs_failures_total", map[string]string{"job": "mail:send"}); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
	if got := gauge(families, "backoffice_job_last_success_timestamp_seconds", map[string]string{"job": "procurement:batch"}); got != float64(fixed.Unix()) {
		t.Fatalf("expected last success %d, got %v", fixed.Unix(), got)
	}
	if got := gauge(families, "backoffice_job_last_success_timestamp_seconds", map[string]string{"job": "mail:send"}); got != 0 {
		t.Fatalf("failed job must not set last success, got %v", got)
	}
}

func TestUnregisteredMetricsStillCount(t *testing.T) {
	metrics := NewMetrics(nil)
	_ = metrics.Track("maintenance:idempotency_cleanup").End(nil)
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.runs)
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got := counter(families, "backoffice_jobs_total", map[string]string{"job": "maintenance:idempotency_cleanup", "status": "success"}); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics
	tracker := metrics.Track("mail:send")
	if err := tracker.End(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tracker.Skip()
}

func counter(families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			if matches(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matches(m *dto.Metric, labels map[string]string) bool {
	found := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok {
			if v != lp.GetValue() {
				return false
			}
			found++
		}
	}
	return found == len(labels)
}

func gauge(families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			if matches(m, labels) {
				return m.GetGauge().GetValue()
			}
		}
	}
	return 0
}
