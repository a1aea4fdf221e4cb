// Package metrics exposes the core's one observability surface: Prometheus
// counters/gauges for stream and client counts, dispatch outcomes, and GC
// hinting (spec §1: event/metrics sinks live outside the actor itself, but
// the actor and manager still need somewhere to record what happened).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every counter/gauge the core records, registered against
// one Registry so a test (or an embedding binary) can isolate its own set
// instead of fighting over the global default registry (the teacher's
// pack-mate ManuGH-xg2g registers package-level vars against the default
// registry directly; this package instead takes the registry as a
// constructor argument so internal/manager tests and cmd/streamcored's
// production wiring don't collide).
type Metrics struct {
	ActiveStreams   prometheus.Gauge
	ActiveClients   prometheus.Gauge
	FramesDispatched *prometheus.CounterVec
	FramesDropped   *prometheus.CounterVec
	GCSweeps        prometheus.Counter
	SourceLossTotal *prometheus.CounterVec
}

// New registers and returns a fresh Metrics bundle against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "streamcore_active_streams",
			Help: "Number of currently running stream actors.",
		}),
		ActiveClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "streamcore_active_clients",
			Help: "Number of currently subscribed clients across all streams.",
		}),
		FramesDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamcore_frames_dispatched_total",
			Help: "Frames successfully delivered to a client, by content type.",
		}, []string{"content"}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamcore_frames_dropped_total",
			Help: "Frames not delivered to a client, by reason.",
		}, []string{"reason"}),
		GCSweeps: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamcore_gc_hint_total",
			Help: "Advisory garbage-collection hints raised by stream actors.",
		}),
		SourceLossTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamcore_source_loss_total",
			Help: "Source-loss state machine transitions, by outcome.",
		}, []string{"outcome"}),
	}
}

// ObserveDispatch records one successful delivery of a frame with the given
// content-type label (e.g. "audio", "video", "metadata").
func (m *Metrics) ObserveDispatch(content string) {
	m.FramesDispatched.WithLabelValues(content).Inc()
}

// ObserveDrop records one undelivered frame with the given reason label
// (e.g. "backpressure", "paused_client", "filtered_track").
func (m *Metrics) ObserveDrop(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// ObserveSourceLoss records one source-loss state-machine transition with
// the given outcome label (e.g. "reconnected", "grace", "terminated").
func (m *Metrics) ObserveSourceLoss(outcome string) {
	m.SourceLossTotal.WithLabelValues(outcome).Inc()
}
