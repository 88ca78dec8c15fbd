// Package observe exposes prometheus collectors for the bond engine. All
// record methods are nil-safe so metrics stay optional in tests.
package observe

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	activeBonds   prometheus.Gauge
	negotiations  *prometheus.CounterVec
	messages      prometheus.Counter
	droppedFrames prometheus.Counter
	tierChanges   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		activeBonds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bondmesh",
			Name:      "active_bonds",
			Help:      "Number of currently active bonds.",
		}),
		negotiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bondmesh",
			Name:      "negotiations_total",
			Help:      "Bond negotiation attempts by outcome.",
		}, []string{"outcome"}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bondmesh",
			Name:      "channel_messages_total",
			Help:      "Messages exchanged over bond channels.",
		}),
		droppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bondmesh",
			Name:      "dropped_frames_total",
			Help:      "Inbound frames dropped without a matching wait or bond.",
		}),
		tierChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bondmesh",
			Name:      "trust_tier_changes_total",
			Help:      "Trust tier transitions across all bonds.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.activeBonds, m.negotiations, m.messages, m.droppedFrames, m.tierChanges)
	}
	return m
}

func (m *Metrics) SetActiveBonds(n int) {
	if m == nil {
		return
	}
	m.activeBonds.Set(float64(n))
}

func (m *Metrics) NegotiationFinished(outcome string) {
	if m == nil {
		return
	}
	m.negotiations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) MessageExchanged() {
	if m == nil {
		return
	}
	m.messages.Inc()
}

func (m *Metrics) FrameDropped() {
	if m == nil {
		return
	}
	m.droppedFrames.Inc()
}

func (m *Metrics) TierChanged() {
	if m == nil {
		return
	}
	m.tierChanges.Inc()
}
