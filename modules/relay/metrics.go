package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the relay's Prometheus collectors.
type Metrics struct {
	SessionsActive prometheus.Gauge
	Rooms          prometheus.Gauge
	Messages       *prometheus.CounterVec
	Deliveries     prometheus.Counter
	Dropped        prometheus.Counter
	Evicted        prometheus.Counter
	Rejected       *prometheus.CounterVec
}

// NewMetrics creates the relay collectors and registers them with reg.
// A nil reg yields working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_sessions_active",
			Help: "Number of connected sessions.",
		}),
		Rooms: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_rooms",
			Help: "Number of room entries held by the registry.",
		}),
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Messages fanned out, by kind (user or system).",
		}, []string{"kind"}),
		Deliveries: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Messages queued to a recipient session.",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_deliveries_dropped_total",
			Help: "Deliveries dropped because the recipient queue was full.",
		}),
		Evicted: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_sessions_evicted_total",
			Help: "Sessions disconnected for sustained backpressure.",
		}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_rejected_total",
			Help: "Inbound events rejected before dispatch, by reason.",
		}, []string{"reason"}),
	}
}
