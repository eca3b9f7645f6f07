package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	InboundMessages *prometheus.CounterVec
	RepliesSent     *prometheus.CounterVec
	ProviderErrors  *prometheus.CounterVec
	DomainEvents    *prometheus.CounterVec
	RiskLevel       prometheus.Histogram
	ActiveSessions  prometheus.Gauge
	FeedSubscribers prometheus.Gauge

	stages *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		InboundMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound webhook messages by channel.",
		}, []string{"channel"}),
		RepliesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_sent_total",
			Help:      "Pipeline replies by branch.",
		}, []string{"branch"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Upstream provider errors by provider and code.",
		}, []string{"provider", "code"}),
		DomainEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domain_events_total",
			Help:      "Program metric events by type.",
		}, []string{"event"}),
		RiskLevel: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_level",
			Help:      "Model risk levels for general questions.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_ussd_sessions",
			Help:      "Number of live USSD sessions.",
		}),
		FeedSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alert_feed_subscribers",
			Help:      "Connected alert feed websocket clients.",
		}),
		stages: newStageWindow(256),
	}
}

// ObserveStage records one pipeline stage duration in the sliding window
// behind /ops/latency.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil || m.stages == nil {
		return
	}
	m.stages.Observe(stage, float64(d.Milliseconds()))
}

// ObserveIndicator counts a named degradation (fallback replies, parse
// retries) in the same window.
func (m *Metrics) ObserveIndicator(name string) {
	if m == nil || m.stages == nil {
		return
	}
	m.stages.ObserveIndicator(name)
}

// StageSnapshot renders the latency window for the ops endpoint.
func (m *Metrics) StageSnapshot() StageSnapshot {
	if m == nil || m.stages == nil {
		return StageSnapshot{}
	}
	return m.stages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
