package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRunRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("recurring").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("recurring").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("recurring", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("recurring", "failure")))
	require.Positive(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("recurring")))
	require.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestFailedRunLeavesLastSuccessUnset(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	_ = m.Track("integrity").End(errors.New("db down"))
	require.Zero(t, testutil.CollectAndCount(m.lastSuccess))
}

func TestAnomaliesIgnoreNonPositiveCounts(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.AddAnomalies(AnomalyStockDrift, 0)
	m.AddAnomalies(AnomalyStockDrift, 3)
	m.Skipped("reconcile")

	require.Equal(t, 3.0, testutil.ToFloat64(m.anomalies.WithLabelValues(AnomalyStockDrift)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.skipped.WithLabelValues("reconcile")))
}

func TestNilMetricsPassesErrorThrough(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("x").End(boom), boom)
	m.AddAnomalies(AnomalyUnbalancedEntry, 1)
	m.Skipped("x")
}
