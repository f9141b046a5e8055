package executor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Attempt outcomes reported to Metrics
const (
	OutcomePassed   = "passed"
	OutcomeFailed   = "failed"
	OutcomeRetried  = "retried"
	OutcomeRequeued = "requeued"
	OutcomeError    = "error"
)

// Metrics exports executor counters to Prometheus.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	attempts       *prometheus.CounterVec
	retries        prometheus.Counter
	runnersActive  prometheus.Gauge
	runnerFailures *prometheus.CounterVec
	testDuration   *prometheus.HistogramVec
}

// NewMetrics creates and registers the executor metrics
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Test attempts by outcome",
			},
			[]string{"outcome"},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Retry tasks added to the queue",
			},
		),
		runnersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "runners_active",
				Help:      "Runners that completed setup and have not been torn down",
			},
		),
		runnerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runner_failures_total",
				Help:      "Runner failures by phase (setup, run, teardown)",
			},
			[]string{"phase"},
		),
		testDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "test_duration_seconds",
				Help:      "Duration of test attempts",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		m.attempts,
		m.retries,
		m.runnersActive,
		m.runnerFailures,
		m.testDuration,
	)

	return m
}

// RecordAttempt counts one attempt and observes its duration
func (m *Metrics) RecordAttempt(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
	if duration > 0 {
		m.testDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

// RecordRetry counts a retry task
func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// RecordRunnerFailure counts a dropped or failed runner
func (m *Metrics) RecordRunnerFailure(phase string) {
	if m == nil {
		return
	}
	m.runnerFailures.WithLabelValues(phase).Inc()
}

// SetRunnersActive sets the active runner gauge
func (m *Metrics) SetRunnersActive(n int) {
	if m == nil {
		return
	}
	m.runnersActive.Set(float64(n))
}
