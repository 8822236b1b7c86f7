// Package metrics holds the Prometheus collectors for the live relay and the
// stats pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "skiing"

type Metrics struct {
	Connections    prometheus.Gauge
	Sessions       prometheus.Gauge
	Messages       *prometheus.CounterVec
	Deliveries     *prometheus.CounterVec
	StatsMerges    *prometheus.CounterVec
	MergeDuration  prometheus.Histogram
	BridgeMessages *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Number of open WebSocket connections",
		}),
		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions",
			Help:      "Number of sessions with at least one subscribed connection",
		}),
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Inbound WebSocket messages by type",
		}, []string{"type"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_deliveries_total",
			Help:      "Per-recipient broadcast outcomes",
		}, []string{"outcome"}),
		StatsMerges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_merges_total",
			Help:      "Stats merges by result",
		}, []string{"result"}),
		MergeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stats_merge_duration_seconds",
			Help:      "Time spent in a serialized stats read-modify-write",
			Buckets:   prometheus.DefBuckets,
		}),
		BridgeMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_messages_total",
			Help:      "Cross-instance broadcast messages by direction",
		}, []string{"direction"}),
	}
}

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.Connections.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.Connections.Dec()
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.Sessions.Set(float64(n))
}

func (m *Metrics) Message(kind string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(kind).Inc()
}

func (m *Metrics) Delivery(outcome string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StatsMerge(result string, seconds float64) {
	if m == nil {
		return
	}
	m.StatsMerges.WithLabelValues(result).Inc()
	m.MergeDuration.Observe(seconds)
}

func (m *Metrics) Bridge(direction string) {
	if m == nil {
		return
	}
	m.BridgeMessages.WithLabelValues(direction).Inc()
}
