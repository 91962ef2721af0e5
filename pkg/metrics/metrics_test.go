package metrics

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	job := "task-timeout"
	metrics.ObserveDuration(job, 250*time.Millisecond)
	metrics.IncSuccess(job)
	metrics.IncFailure(job)
	metrics.IncSkipped("cron-lock")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	assertCounter(t, mfs, "unitpay_cron_job_success_total", 1, "job", job)
	assertCounter(t, mfs, "unitpay_cron_job_failure_total", 1, "job", job)
	assertCounter(t, mfs, "unitpay_cron_run_skipped_total", 1, "lock", "cron-lock")

	if got, err := fetchHistogramSum(mfs, "unitpay_cron_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestTaskMetricsByTypeAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewTaskMetrics(reg)
	metrics.IncClaimed("payment_settlement")
	metrics.ObserveAttempt("payment_settlement", OutcomeRetried, time.Second)
	metrics.ObserveAttempt("payment_settlement", OutcomeCompleted, time.Second)
	metrics.IncOutcome("payment_settlement", OutcomeTimedOut)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	assertCounter(t, mfs, "unitpay_task_claimed_total", 1, "type", "payment_settlement")
	assertCounter(t, mfs, "unitpay_task_attempts_total", 1, "type", "payment_settlement", "outcome", OutcomeRetried)
	assertCounter(t, mfs, "unitpay_task_attempts_total", 1, "type", "payment_settlement", "outcome", OutcomeTimedOut)
	if got, err := fetchHistogramSum(mfs, "unitpay_task_attempt_duration_seconds", "type", "payment_settlement"); err != nil || got != 2 {
		t.Fatalf("expected duration sum 2, got %f (%v)", got, err)
	}
}

func TestHTTPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewHTTPMetrics(reg)
	metrics.Observe("/api/v1/oracle/verify", http.MethodPost, http.StatusOK, 10*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	assertCounter(t, mfs, "unitpay_http_requests_total", 1, "route", "/api/v1/oracle/verify", "status", "200")
}

func TestNilMetricsAreNoops(t *testing.T) {
	var cron *CronJobMetrics
	cron.IncSuccess("x")
	var tasks *TaskMetrics
	tasks.ObserveAttempt("x", OutcomeFailed, time.Second)
	NewTaskMetrics(nil).IncClaimed("x")
	NewHTTPMetrics(nil).Observe("/", http.MethodGet, 200, time.Millisecond)
}

func assertCounter(t *testing.T, mfs []*dto.MetricFamily, name string, want float64, labels ...string) {
	t.Helper()
	got, err := fetchCounterValue(mfs, name, labels...)
	if err != nil {
		t.Fatalf("fetch %s: %v", name, err)
	}
	if got != want {
		t.Fatalf("expected %s=%f, got %f", name, want, got)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels ...string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels...) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(labels []*dto.LabelPair, pairs ...string) bool {
	for i := 0; i+1 < len(pairs); i += 2 {
		found := false
		for _, label := range labels {
			if label.GetName() == pairs[i] && label.GetValue() == pairs[i+1] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
