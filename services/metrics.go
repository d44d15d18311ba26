package services

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process registry and the pipeline collectors.
type Metrics struct {
	Registry *prometheus.Registry

	Ingestions       *prometheus.CounterVec
	IngestDuration   prometheus.Histogram
	PagesSummarized  prometheus.Counter
	SummarizeRetries prometheus.Counter
	Queries          *prometheus.CounterVec
	QueryDuration    *prometheus.HistogramVec
}

// NewMetrics registers every collector on a private registry labelled with
// service.
func NewMetrics(service string) *Metrics {
	registry := prometheus.NewRegistry()
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": service}, registry)

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: registry,
		Ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdfchat_ingestions_total",
			Help: "Document ingestions by outcome.",
		}, []string{"outcome"}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pdfchat_ingest_duration_seconds",
			Help:    "Wall time of a full document ingestion.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		PagesSummarized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pdfchat_pages_summarized_total",
			Help: "Pages summarized successfully.",
		}),
		SummarizeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pdfchat_summarize_retries_total",
			Help: "Summarization retries after a failed attempt.",
		}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdfchat_queries_total",
			Help: "Answered queries by branch and outcome.",
		}, []string{"branch", "outcome"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pdfchat_query_duration_seconds",
			Help:    "Wall time of answering a query.",
			Buckets: prometheus.DefBuckets,
		}, []string{"branch"}),
	}
	reg.MustRegister(m.Ingestions, m.IngestDuration, m.PagesSummarized, m.SummarizeRetries, m.Queries, m.QueryDuration)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
