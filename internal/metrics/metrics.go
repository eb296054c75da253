// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors the pipeline emits. A nil *Metrics is a
// valid no-op receiver so tests can skip instrumentation entirely.
type Metrics struct {
	registry *prometheus.Registry

	itemsIngested   *prometheus.CounterVec
	crawlErrors     *prometheus.CounterVec
	crawlRuns       *prometheus.CounterVec
	enrichProcessed *prometheus.CounterVec
	searchQueries   prometheus.Counter
}

// New registers the pipeline collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.itemsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aiscope_items_ingested_total",
		Help: "Items stored per source.",
	}, []string{"source"})
	m.crawlErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aiscope_crawl_errors_total",
		Help: "Source crawl failures after retries.",
	}, []string{"source"})
	m.crawlRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aiscope_crawl_runs_total",
		Help: "Lane crawl runs completed.",
	}, []string{"lane"})
	m.enrichProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aiscope_enrich_processed_total",
		Help: "Enrichment attempts by outcome.",
	}, []string{"status"})
	m.searchQueries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aiscope_search_queries_total",
		Help: "Search queries served.",
	})

	m.registry.MustRegister(
		m.itemsIngested, m.crawlErrors, m.crawlRuns,
		m.enrichProcessed, m.searchQueries,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ItemIngested(source string) {
	if m == nil {
		return
	}
	m.itemsIngested.WithLabelValues(source).Inc()
}

func (m *Metrics) CrawlError(source string) {
	if m == nil {
		return
	}
	m.crawlErrors.WithLabelValues(source).Inc()
}

func (m *Metrics) CrawlRun(lane string) {
	if m == nil {
		return
	}
	m.crawlRuns.WithLabelValues(lane).Inc()
}

func (m *Metrics) EnrichProcessed(status string) {
	if m == nil {
		return
	}
	m.enrichProcessed.WithLabelValues(status).Inc()
}

func (m *Metrics) SearchQuery() {
	if m == nil {
		return
	}
	m.searchQueries.Inc()
}
