package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Backend call outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeRejected  = "rejected"
	OutcomeTransport = "transport_error"
)

// BackendMetrics tracks calls made to the digest backend.
type BackendMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewBackendMetrics creates and registers backend call metrics with the given registerer.
func NewBackendMetrics(registerer prometheus.Registerer) *BackendMetrics {
	m := &BackendMetrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "instwave_backend_requests_total",
				Help: "Total number of backend API calls",
			},
			[]string{"endpoint", "outcome"}, // outcome: success/rejected/transport_error
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "instwave_backend_request_duration_seconds",
				Help:    "Latency of backend API calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
	}

	registerer.MustRegister(m.Requests, m.Duration)

	return m
}

// Observe records a finished backend call.
func (m *BackendMetrics) Observe(endpoint, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(endpoint, outcome).Inc()
	m.Duration.WithLabelValues(endpoint).Observe(seconds)
}

// ToastMetrics tracks the notification manager.
type ToastMetrics struct {
	Actions      *prometheus.CounterVec
	ActiveStores prometheus.Gauge
	Streams      prometheus.Gauge
}

// NewToastMetrics creates and registers toast metrics with the given registerer.
func NewToastMetrics(registerer prometheus.Registerer) *ToastMetrics {
	m := &ToastMetrics{
		Actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "instwave_toast_actions_total",
				Help: "Total number of toast actions dispatched",
			},
			[]string{"action"},
		),
		ActiveStores: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "instwave_toast_active_stores",
			Help: "Number of per-session toast stores held in memory",
		}),
		Streams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "instwave_toast_streams",
			Help: "Number of open live toast streams",
		}),
	}

	registerer.MustRegister(m.Actions, m.ActiveStores, m.Streams)

	return m
}

// ActionDispatched counts a toast action.
func (m *ToastMetrics) ActionDispatched(kind string) {
	m.Actions.WithLabelValues(kind).Inc()
}

// StoresChanged records the current number of toast stores.
func (m *ToastMetrics) StoresChanged(n int) {
	m.ActiveStores.Set(float64(n))
}
