package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Task outcomes recorded by TaskMetrics.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeRetried   = "retried"
	OutcomeTimedOut  = "timed_out"
)

// TaskMetrics tracks task processor throughput per task type.
type TaskMetrics struct {
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
	claimed  *prometheus.CounterVec
}

// NewTaskMetrics registers task metrics on reg. A nil registerer yields no-op metrics.
func NewTaskMetrics(reg prometheus.Registerer) *TaskMetrics {
	if reg == nil {
		return &TaskMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "task_attempts_total",
		Help:      "Task attempts by type and outcome.",
	}, []string{"type", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "task_attempt_duration_seconds",
		Help:      "Duration of a single task attempt.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
	}, []string{"type"})
	claimed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "task_claimed_total",
		Help:      "Tasks claimed by the processor.",
	}, []string{"type"})
	reg.MustRegister(attempts, duration, claimed)
	return &TaskMetrics{attempts: attempts, duration: duration, claimed: claimed}
}

// IncClaimed counts a task moved to processing.
func (m *TaskMetrics) IncClaimed(taskType string) {
	if m == nil || m.claimed == nil {
		return
	}
	m.claimed.WithLabelValues(normalizeLabel(taskType)).Inc()
}

// ObserveAttempt records the outcome and duration of one attempt.
func (m *TaskMetrics) ObserveAttempt(taskType, outcome string, elapsed time.Duration) {
	if m == nil || m.attempts == nil {
		return
	}
	taskType = normalizeLabel(taskType)
	m.attempts.WithLabelValues(taskType, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(taskType).Observe(elapsed.Seconds())
}

// IncOutcome records an outcome that did not come from a timed attempt, such as a sweep expiry.
func (m *TaskMetrics) IncOutcome(taskType, outcome string) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.WithLabelValues(normalizeLabel(taskType), normalizeLabel(outcome)).Inc()
}
