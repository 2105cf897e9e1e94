// Package metrics exposes Prometheus instruments for the workflow engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	EventsAppended     *prometheus.CounterVec
	Advancements       *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	BusyRejections     *prometheus.CounterVec
	PublishFailures    prometheus.Counter
	AdvanceLatencySec  prometheus.Histogram
	PendingRows        *prometheus.GaugeVec
	OrdersPunched      prometheus.Counter

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	appended := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oilflow_events_appended_total",
		Help: "Workflow events appended to the history.",
	}, []string{"stage", "status"})
	advancements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oilflow_advancements_total",
		Help: "Committed stage advancements.",
	}, []string{"stage", "status"})
	invalid := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oilflow_validation_failures_total",
		Help: "Advancements rejected before any write.",
	}, []string{"stage", "code"})
	busy := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oilflow_busy_rejections_total",
		Help: "Advancements refused while another batch was in flight.",
	}, []string{"stage"})
	publishFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oilflow_publish_failures_total",
		Help: "Committed batches that a sink failed to receive.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "oilflow_advance_latency_seconds",
		Buckets: prometheus.DefBuckets,
	})
	pending := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "oilflow_pending_rows",
		Help: "Rows eligible at each stage as of the last resolution.",
	}, []string{"stage"})
	punched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oilflow_orders_punched_total",
	})
	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oilflow_http_requests_total",
		Help: "HTTP requests served, by route and status code.",
	}, []string{"method", "route", "status"})
	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oilflow_http_request_duration_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	r.MustRegister(appended, advancements, invalid, busy, publishFailures, latency, pending, punched, httpRequests, httpDuration)
	return &Registry{
		reg:                r,
		EventsAppended:     appended,
		Advancements:       advancements,
		ValidationFailures: invalid,
		BusyRejections:     busy,
		PublishFailures:    publishFailures,
		AdvanceLatencySec:  latency,
		PendingRows:        pending,
		OrdersPunched:      punched,
		HTTPRequests:       httpRequests,
		HTTPDuration:       httpDuration,
	}
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
