package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the HTTP surface and the
// consensus workflow.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	ProposalsOpened   prometheus.Counter
	ProposalsApproved prometheus.Counter
	ProposalsRejected prometheus.Counter
	Verifications     prometheus.Counter
	RateLimited       prometheus.Counter
}

// NewMetrics registers the collectors on the given registerer. Passing nil
// registers on the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chronicle_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chronicle_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		ProposalsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_proposals_opened_total",
			Help: "Edit proposals opened.",
		}),
		ProposalsApproved: factory.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_proposals_approved_total",
			Help: "Edit proposals that reached quorum and were applied.",
		}),
		ProposalsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_proposals_rejected_total",
			Help: "Edit proposals rejected before reaching quorum.",
		}),
		Verifications: factory.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_verifications_total",
			Help: "Verification votes accepted.",
		}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_rate_limited_total",
			Help: "Requests refused by the sliding-window rate limiter.",
		}),
	}
}
