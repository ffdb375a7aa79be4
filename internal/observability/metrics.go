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
	InboundMessages  *prometheus.CounterVec
	Directives       *prometheus.CounterVec
	ProviderErrors   *prometheus.CounterVec
	Alerts           *prometheus.CounterVec
	Digests          *prometheus.CounterVec
	SelectionEvents  *prometheus.CounterVec
	StoreErrors      *prometheus.CounterVec
	WSClients        prometheus.Gauge
	CompletionMillis prometheus.Histogram

	Latency *LatencyWindow
}

// NewMetrics registers the instruments on the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers the instruments on reg; tests pass a fresh registry.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		InboundMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound chat messages by route.",
		}, []string{"route"}),
		Directives: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directives_total",
			Help:      "Resolved directives by action.",
		}, []string{"action"}),
		ProviderErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Completion provider errors by provider.",
		}, []string{"provider"}),
		Alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Upcoming-task alerts by result.",
		}, []string{"result"}),
		Digests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "digests_total",
			Help:      "Daily digests by result.",
		}, []string{"result"}),
		SelectionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selection_events_total",
			Help:      "Selection session events by type.",
		}, []string{"event"}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Task store errors by operation.",
		}, []string{"op"}),
		WSClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected websocket chat clients.",
		}),
		CompletionMillis: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_latency_ms",
			Help:      "Completion provider latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		}),
		Latency: NewLatencyWindow(256),
	}
}

func (m *Metrics) ObserveCompletion(d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Milliseconds())
	m.CompletionMillis.Observe(ms)
	m.Latency.Observe("completion", ms)
}

func (m *Metrics) IncInbound(route string) {
	if m != nil {
		m.InboundMessages.WithLabelValues(route).Inc()
	}
}

func (m *Metrics) IncDirective(action string) {
	if m != nil {
		m.Directives.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) IncProviderError(provider string) {
	if m != nil {
		m.ProviderErrors.WithLabelValues(provider).Inc()
	}
}

func (m *Metrics) IncAlert(result string) {
	if m != nil {
		m.Alerts.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncDigest(result string) {
	if m != nil {
		m.Digests.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncSelection(event string) {
	if m != nil {
		m.SelectionEvents.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) IncStoreError(op string) {
	if m != nil {
		m.StoreErrors.WithLabelValues(op).Inc()
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// ObserveStage records the time since start in the latency window.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m != nil {
		m.Latency.ObserveSince(stage, start)
	}
}

// ObserveIndicator counts a named event in the latency window.
func (m *Metrics) ObserveIndicator(name string) {
	if m != nil {
		m.Latency.ObserveIndicator(name)
	}
}
