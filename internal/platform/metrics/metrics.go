package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the authorization flow.
type Metrics struct {
	FlowsStarted       prometheus.Counter
	FlowsCompleted     *prometheus.CounterVec
	FlowsFailed        *prometheus.CounterVec
	ConsentRendered    prometheus.Counter
	ConsentSkipped     prometheus.Counter
	SecurityViolations *prometheus.CounterVec
	ExchangeDuration   prometheus.Histogram
}

// New creates and registers all broker metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		FlowsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "authgate_flows_started_total",
			Help: "Authorization flows that reached the authorize endpoint",
		}),
		FlowsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_flows_completed_total",
			Help: "Authorization flows completed, by credential type",
		}, []string{"credential_type"}),
		FlowsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_flows_failed_total",
			Help: "Authorization flows aborted, by failing step",
		}, []string{"step"}),
		ConsentRendered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "authgate_consent_rendered_total",
			Help: "Consent dialogs rendered",
		}),
		ConsentSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "authgate_consent_skipped_total",
			Help: "Consent screens skipped via the approved-clients fast path",
		}),
		SecurityViolations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_security_violations_total",
			Help: "Requests rejected by anti-forgery checks, by kind",
		}, []string{"kind"}),
		ExchangeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "authgate_upstream_exchange_duration_seconds",
			Help:    "Latency of upstream token endpoint calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// ObserveExchange records one upstream token endpoint round-trip.
func (m *Metrics) ObserveExchange(d time.Duration) {
	m.ExchangeDuration.Observe(d.Seconds())
}
