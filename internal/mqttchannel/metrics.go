package mqttchannel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for one MQTT Client Actor.
type Metrics struct {
	publishesAttempted *prometheus.CounterVec
	messagesRouted     *prometheus.CounterVec
	reconnects         prometheus.Counter
	connectedGauge     prometheus.Gauge
}

// NewMetrics registers a Metrics set labeled by client_id. Safe to call
// once per ClientActor; registering the same client_id twice against the
// default registry is a caller error, same as promauto elsewhere in this
// codebase.
func NewMetrics(clientID string) *Metrics {
	constLabels := prometheus.Labels{"client_id": clientID}
	return &Metrics{
		publishesAttempted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "mqttchannel_publishes_attempted_total",
				Help:        "Total publish requests submitted to the broker.",
				ConstLabels: constLabels,
			},
			[]string{"topic"},
		),
		messagesRouted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "mqttchannel_messages_routed_total",
				Help:        "Total inbound publishes routed to subscribers.",
				ConstLabels: constLabels,
			},
			[]string{"topic"},
		),
		reconnects: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "mqttchannel_reconnects_total",
				Help:        "Total reconnect attempts started after connection loss.",
				ConstLabels: constLabels,
			},
		),
		connectedGauge: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "mqttchannel_connected",
				Help:        "1 if the client is currently connected to its broker, else 0.",
				ConstLabels: constLabels,
			},
		),
	}
}

func (m *Metrics) PublishAttempted(topic string) {
	m.publishesAttempted.WithLabelValues(topic).Inc()
}

func (m *Metrics) MessageRouted(topic string) {
	m.messagesRouted.WithLabelValues(topic).Inc()
}

func (m *Metrics) ReconnectStarted() {
	m.reconnects.Inc()
	m.connectedGauge.Set(0)
}

func (m *Metrics) Connected() {
	m.connectedGauge.Set(1)
}
