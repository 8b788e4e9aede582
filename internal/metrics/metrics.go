package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ringrelay"

// Metrics holds the collectors shared by the daemon and the transport. All
// methods are safe to call on a nil *Metrics.
type Metrics struct {
	recvByType     *prometheus.CounterVec
	sentByType     *prometheus.CounterVec
	dropByReason   *prometheus.CounterVec
	framesByType   *prometheus.CounterVec
	handoffEntries prometheus.Counter
	relayed        prometheus.Counter
	ringMembers    prometheus.Gauge
	mailboxEntries prometheus.Gauge
	currentConns   prometheus.Gauge
	currentStreams prometheus.Gauge
}

// New creates the collectors and registers them with reg when reg is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		recvByType: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "daemon",
			Name:      "received_messages_total",
			Help:      "Control messages received, by message type.",
		}, []string{"type"}),
		sentByType: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "daemon",
			Name:      "sent_messages_total",
			Help:      "Control messages sent, by message type.",
		}, []string{"type"}),
		dropByReason: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Messages dropped, by reason.",
		}, []string{"reason"}),
		framesByType: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "frames_total",
			Help:      "Transport frames, by direction and frame type.",
		}, []string{"direction", "type"}),
		handoffEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ring",
			Name:      "handoff_entries_total",
			Help:      "Mailbox entries handed off to other members.",
		}),
		relayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "relayed_total",
			Help:      "Flooded frames forwarded to neighbours.",
		}),
		ringMembers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ring",
			Name:      "members",
			Help:      "Members of the local ring view, including the local node.",
		}),
		mailboxEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ring",
			Name:      "mailbox_entries",
			Help:      "Pending messages held locally.",
		}),
		currentConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "connections",
			Help:      "Open peer connections.",
		}),
		currentStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "streams",
			Help:      "Inbound streams being read.",
		}),
	}
	if reg != nil {
		for _, c := range m.collectors() {
			reg.MustRegister(c)
		}
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.recvByType, m.sentByType, m.dropByReason, m.framesByType,
		m.handoffEntries, m.relayed, m.ringMembers, m.mailboxEntries,
		m.currentConns, m.currentStreams,
	}
}

func (m *Metrics) IncRecvByType(msgType string) {
	if m == nil {
		return
	}
	m.recvByType.WithLabelValues(msgType).Inc()
}

func (m *Metrics) IncSentByType(msgType string) {
	if m == nil {
		return
	}
	m.sentByType.WithLabelValues(msgType).Inc()
}

func (m *Metrics) IncDropByReason(reason string) {
	if m == nil {
		return
	}
	m.dropByReason.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncFrame(direction, frameType string) {
	if m == nil {
		return
	}
	m.framesByType.WithLabelValues(direction, frameType).Inc()
}

func (m *Metrics) AddHandoffEntries(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.handoffEntries.Add(float64(n))
}

func (m *Metrics) IncRelayed() {
	if m == nil {
		return
	}
	m.relayed.Inc()
}

func (m *Metrics) SetRingMembers(n int) {
	if m == nil {
		return
	}
	m.ringMembers.Set(float64(n))
}

func (m *Metrics) SetMailboxEntries(n int) {
	if m == nil {
		return
	}
	m.mailboxEntries.Set(float64(n))
}

func (m *Metrics) SetCurrentConns(n int) {
	if m == nil {
		return
	}
	m.currentConns.Set(float64(n))
}

func (m *Metrics) AddCurrentStreams(delta int) {
	if m == nil {
		return
	}
	m.currentStreams.Add(float64(delta))
}
