package tether

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors an Agent updates. Create one with
// NewMetrics, register it, and pass it to agents with WithMetrics. A single
// Metrics may be shared by several agents; series are labelled per agent.
type Metrics struct {
	published      *prometheus.CounterVec
	publishErrors  *prometheus.CounterVec
	received       *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	handlerPanics  *prometheus.CounterVec
	connectionLoss *prometheus.CounterVec
	connected      *prometheus.GaugeVec
}

// NewMetrics creates an unregistered set of collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tether_messages_published_total",
				Help: "Total number of messages published through output plugs",
			},
			[]string{"agent", "plug"},
		),
		publishErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tether_publish_errors_total",
				Help: "Total number of publish attempts that failed",
			},
			[]string{"agent", "plug"},
		),
		received: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tether_messages_received_total",
				Help: "Total number of deliveries dispatched to input plugs",
			},
			[]string{"agent", "plug"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tether_messages_dropped_total",
				Help: "Total number of deliveries that matched no input plug",
			},
			[]string{"agent"},
		),
		handlerPanics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tether_handler_panics_total",
				Help: "Total number of input handler panics recovered",
			},
			[]string{"agent", "plug"},
		),
		connectionLoss: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tether_connection_lost_total",
				Help: "Total number of transport-reported connection losses",
			},
			[]string{"agent"},
		),
		connected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tether_connected",
				Help: "1 while the agent holds a broker connection",
			},
			[]string{"agent"},
		),
	}
}

// Register adds all collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.published,
		m.publishErrors,
		m.received,
		m.dropped,
		m.handlerPanics,
		m.connectionLoss,
		m.connected,
	}
}

// The record helpers are nil-safe so the agent can call them unconditionally.

func (m *Metrics) recordPublish(agent, plug string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.publishErrors.WithLabelValues(agent, plug).Inc()
		return
	}
	m.published.WithLabelValues(agent, plug).Inc()
}

func (m *Metrics) recordReceived(agent, plug string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(agent, plug).Inc()
}

func (m *Metrics) recordDropped(agent string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(agent).Inc()
}

func (m *Metrics) recordPanic(agent, plug string) {
	if m == nil {
		return
	}
	m.handlerPanics.WithLabelValues(agent, plug).Inc()
}

func (m *Metrics) recordState(agent string, change StateChange) {
	if m == nil {
		return
	}
	if change.Lost() {
		m.connectionLoss.WithLabelValues(agent).Inc()
	}
	if change.To == StateConnected {
		m.connected.WithLabelValues(agent).Set(1)
	} else {
		m.connected.WithLabelValues(agent).Set(0)
	}
}
