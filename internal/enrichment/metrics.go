package enrichment

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the orchestrator's prometheus collectors.
type Metrics struct {
	events   *prometheus.CounterVec
	duration prometheus.Histogram
	tenants  prometheus.Histogram
}

// NewMetrics registers the enrichment collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrichment_events_total",
			Help: "Login events processed, by terminal state and failure reason.",
		}, []string{"state", "reason"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "enrichment_duration_seconds",
			Help:    "Time spent enriching one login event.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		tenants: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "enrichment_tenants_per_principal",
			Help:    "Tenant identifiers written per successful event.",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 25, 50},
		}),
	}
	reg.MustRegister(m.events, m.duration, m.tenants)
	return m
}

func (m *Metrics) observe(res Result) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(res.State), res.Reason).Inc()
	m.duration.Observe(res.Duration.Seconds())
	if res.State == StateDone {
		m.tenants.Observe(float64(len(res.Payload.TenantIDs())))
	}
}
