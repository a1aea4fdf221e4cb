package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return New(prometheus.NewRegistry())
}

func TestActiveGaugesTrackSetValues(t *testing.T) {
	m := newTestMetrics(t)
	m.ActiveStreams.Set(3)
	m.ActiveClients.Set(7)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.ActiveStreams))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.ActiveClients))
}

func TestObserveDispatchIncrementsByLabel(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveDispatch("video")
	m.ObserveDispatch("video")
	m.ObserveDispatch("audio")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.FramesDispatched.WithLabelValues("video")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FramesDispatched.WithLabelValues("audio")))
}

func TestObserveDropIncrementsByReason(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveDrop("backpressure")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FramesDropped.WithLabelValues("backpressure")))
}

func TestObserveSourceLossIncrementsByOutcome(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveSourceLoss("grace")
	m.ObserveSourceLoss("grace")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SourceLossTotal.WithLabelValues("grace")))
}

func TestGCSweepsCounter(t *testing.T) {
	m := newTestMetrics(t)
	m.GCSweeps.Inc()
	m.GCSweeps.Inc()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.GCSweeps))
}
