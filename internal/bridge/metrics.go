package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for one bridge instance.
type Metrics struct {
	forwardsAcked  *prometheus.CounterVec
	forwardsFailed *prometheus.CounterVec
	droppedNoRule  *prometheus.CounterVec
	replayed       *prometheus.CounterVec
	healthStatus   prometheus.Gauge
}

// NewMetrics registers a Metrics set labeled by bridge name.
func NewMetrics(bridgeName string) *Metrics {
	constLabels := prometheus.Labels{"bridge": bridgeName}
	return &Metrics{
		forwardsAcked: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "bridge_forwards_acked_total",
				Help:        "Total forwarded messages acknowledged by the target broker.",
				ConstLabels: constLabels,
			},
			[]string{"direction"},
		),
		forwardsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "bridge_forwards_failed_total",
				Help:        "Total forwarded messages that were not acknowledged.",
				ConstLabels: constLabels,
			},
			[]string{"direction"},
		),
		droppedNoRule: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "bridge_dropped_no_rule_total",
				Help:        "Total inbound messages dropped for matching no forwarding rule.",
				ConstLabels: constLabels,
			},
			[]string{"direction"},
		),
		replayed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "bridge_replayed_total",
				Help:        "Total inflight messages re-sent from the persistence store after a reconnect.",
				ConstLabels: constLabels,
			},
			[]string{"direction"},
		),
		healthStatus: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "bridge_health_up",
				Help:        "1 if the bridge's aggregate health is up, else 0.",
				ConstLabels: constLabels,
			},
		),
	}
}

func (m *Metrics) ForwardAcked(direction string)  { m.forwardsAcked.WithLabelValues(direction).Inc() }
func (m *Metrics) ForwardFailed(direction string) { m.forwardsFailed.WithLabelValues(direction).Inc() }
func (m *Metrics) DroppedNoRule(direction string) { m.droppedNoRule.WithLabelValues(direction).Inc() }
func (m *Metrics) Replayed(direction string)      { m.replayed.WithLabelValues(direction).Inc() }

func (m *Metrics) SetHealth(up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	m.healthStatus.Set(v)
}
