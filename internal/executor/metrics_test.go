package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryankumar/shardrun/internal/util"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordAttempt(OutcomePassed, time.Second)
		m.RecordRetry()
		m.RecordRunnerFailure(phaseSetUp)
		m.SetRunnersActive(3)
	})
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.RecordAttempt(OutcomePassed, 2*time.Second)
	m.RecordAttempt(OutcomePassed, time.Second)
	m.RecordAttempt(OutcomeRequeued, 0)
	m.RecordRetry()
	m.RecordRunnerFailure(phaseTearDown)
	m.SetRunnersActive(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues(OutcomePassed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues(OutcomeRequeued)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runnerFailures.WithLabelValues(phaseTearDown)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.runnersActive))

	// Zero durations are not observed.
	assert.Equal(t, 1, testutil.CollectAndCount(m.testDuration))
}

func TestMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics("test", reg)

	assert.Panics(t, func() { NewMetrics("test", reg) })
}

func TestRun_RecordsMetrics(t *testing.T) {
	fleet := newFakeFleet()
	fleet.setUpErr["w3"] = util.ErrDeviceUnresponsive
	fleet.run = func(worker, item string, call int) (Result, *string, error) {
		if item == "flaky" && call == 1 {
			retry := item
			return failed(item), &retry, nil
		}
		return passed(item), nil, nil
	}

	reg := prometheus.NewRegistry()
	m := NewMetrics("shardrun", reg)

	exec := New(fleet.factory, []string{"w1", "w3"}, WithLogger(quietLogger), WithMetrics(m))
	_, err := exec.Run(context.Background(), []string{"flaky"})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues(OutcomeRetried)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues(OutcomePassed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runnerFailures.WithLabelValues(phaseSetUp)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.runnersActive), "gauge resets after teardown")
}

func TestRun_RecordsFatalAttempt(t *testing.T) {
	fleet := newFakeFleet()
	fleet.run = func(worker, item string, call int) (Result, *string, error) {
		return Result{}, nil, errors.New("boom")
	}

	reg := prometheus.NewRegistry()
	m := NewMetrics("shardrun", reg)

	exec := New(fleet.factory, []string{"w1"}, WithLogger(quietLogger), WithMetrics(m))
	_, err := exec.Run(context.Background(), []string{"a"})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues(OutcomeError)))
}
