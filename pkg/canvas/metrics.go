package canvas

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the synchronization
// engine. All metrics live under the "excalidraw" namespace.
type Metrics struct {
	reg          prometheus.Registerer
	sessionsOnce sync.Once

	connectionsActive prometheus.Gauge
	messagesIn        *prometheus.CounterVec
	messagesOut       *prometheus.CounterVec
	messagesDropped   prometheus.Counter
	broadcastBytes    prometheus.Counter
	batchesStaged     prometheus.Counter
	exportsTotal      *prometheus.CounterVec
	conversionsTotal  *prometheus.CounterVec
}

// NewMetrics registers the canvas metrics with the given registerer.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in
// tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "excalidraw",
			Name:      "connections_active",
			Help:      "Live WebSocket connections.",
		}),
		messagesIn: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "excalidraw",
			Name:      "messages_received_total",
			Help:      "Inbound WebSocket messages by type.",
		}, []string{"type"}),
		messagesOut: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "excalidraw",
			Name:      "messages_sent_total",
			Help:      "Outbound WebSocket messages by type.",
		}, []string{"type"}),
		messagesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "excalidraw",
			Name:      "messages_dropped_total",
			Help:      "Inbound messages dropped as malformed or oversized.",
		}),
		broadcastBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "excalidraw",
			Name:      "broadcast_bytes_total",
			Help:      "Bytes fanned out to session peers.",
		}),
		batchesStaged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "excalidraw",
			Name:      "skeleton_batches_staged_total",
			Help:      "Skeleton batches staged for client expansion.",
		}),
		exportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "excalidraw",
			Name:      "exports_total",
			Help:      "Export exchanges by outcome.",
		}, []string{"outcome"}),
		conversionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "excalidraw",
			Name:      "conversions_total",
			Help:      "Diagram conversion exchanges by outcome.",
		}, []string{"outcome"}),
	}
}

// trackSessions registers the session gauge as a callback over the live
// store count, so evictions and deletions are reflected without the
// server having to observe them. Idempotent per Metrics instance.
func (m *Metrics) trackSessions(count func() int) {
	m.sessionsOnce.Do(func() {
		promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "excalidraw",
			Name:      "sessions_active",
			Help:      "Sessions registered in the store.",
		}, func() float64 { return float64(count()) })
	})
}
