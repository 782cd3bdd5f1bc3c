// Package metrics defines the Prometheus metric collectors used across the
// pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for a pipeline stage process.
type Metrics struct {
	MessagesConsumed     *prometheus.CounterVec
	MessagesPublished    *prometheus.CounterVec
	MessagesAcked        *prometheus.CounterVec
	MessagesDeadLettered *prometheus.CounterVec
	HandlerDuration      *prometheus.HistogramVec
	HandlerRetries       *prometheus.CounterVec
	BrokerReconnects     prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	LeadsStored          *prometheus.CounterVec
	LeadScore            prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		MessagesConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_messages_consumed_total",
				Help: "Total messages delivered by the broker, by queue.",
			},
			[]string{"queue"},
		),
		MessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_messages_published_total",
				Help: "Total messages published downstream, by queue.",
			},
			[]string{"queue"},
		),
		MessagesAcked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_messages_acked_total",
				Help: "Total messages acknowledged after successful handling, by queue.",
			},
			[]string{"queue"},
		),
		MessagesDeadLettered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_messages_dead_lettered_total",
				Help: "Total messages routed to the dead-letter queue, by source queue and reason.",
			},
			[]string{"queue", "reason"},
		),
		HandlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_handler_duration_seconds",
				Help:    "Stage handler execution time in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"stage"},
		),
		HandlerRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_handler_retries_total",
				Help: "Total transient-failure retry attempts, by stage.",
			},
			[]string{"stage"},
		),
		BrokerReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_broker_reconnects_total",
				Help: "Total successful broker reconnections.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_enrich_cache_hits_total",
				Help: "Total enrichment lookup cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_enrich_cache_misses_total",
				Help: "Total enrichment lookup cache misses.",
			},
		),
		LeadsStored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_leads_stored_total",
				Help: "Total leads upserted into storage, by result (inserted, updated).",
			},
			[]string{"result"},
		),
		LeadScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_lead_score",
				Help:    "Distribution of computed lead scores.",
				Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			},
		),
	}

	prometheus.MustRegister(
		m.MessagesConsumed,
		m.MessagesPublished,
		m.MessagesAcked,
		m.MessagesDeadLettered,
		m.HandlerDuration,
		m.HandlerRetries,
		m.BrokerReconnects,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.LeadsStored,
		m.LeadScore,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
