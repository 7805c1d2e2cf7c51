package gossip

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	// MessagesPublished is the total number of messages published by the
	// local node.
	MessagesPublished prometheus.Counter

	// MessagesReceived is the total number of messages accepted from peers.
	MessagesReceived prometheus.Counter

	// MessagesDropped is the total number of rejected incoming messages,
	// labelled by reason ('duplicate', 'expired' or 'hops').
	MessagesDropped *prometheus.CounterVec

	// RelaysOutbound is the total number of message/peer pairs handed to
	// the sender.
	RelaysOutbound prometheus.Counter

	// RelayErrors is the total number of failed relay attempts.
	RelayErrors prometheus.Counter

	// Rounds is the total number of gossip rounds initiated.
	Rounds prometheus.Counter

	// Peers is the number of known peers.
	Peers prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "swarm",
				Subsystem: "gossip",
				Name:      "messages_published_total",
				Help:      "Total number of messages published by the local node",
			},
		),
		MessagesReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "swarm",
				Subsystem: "gossip",
				Name:      "messages_received_total",
				Help:      "Total number of messages accepted from peers",
			},
		),
		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "swarm",
				Subsystem: "gossip",
				Name:      "messages_dropped_total",
				Help:      "Total number of rejected incoming messages",
			},
			[]string{"reason"},
		),
		RelaysOutbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "swarm",
				Subsystem: "gossip",
				Name:      "relays_outbound_total",
				Help:      "Total number of message/peer pairs handed to the sender",
			},
		),
		RelayErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "swarm",
				Subsystem: "gossip",
				Name:      "relay_errors_total",
				Help:      "Total number of failed relay attempts",
			},
		),
		Rounds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "swarm",
				Subsystem: "gossip",
				Name:      "rounds_total",
				Help:      "Total number of gossip rounds initiated",
			},
		),
		Peers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "swarm",
				Subsystem: "gossip",
				Name:      "peers",
				Help:      "Number of known peers",
			},
		),
	}
}

func (m *Metrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.MessagesPublished,
		m.MessagesReceived,
		m.MessagesDropped,
		m.RelaysOutbound,
		m.RelayErrors,
		m.Rounds,
		m.Peers,
	)
}
