// Package metrics defines the Prometheus instruments for the ingest and
// query pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Modality label values.
const (
	ModalityText  = "text"
	ModalityImage = "image"
)

// Metrics holds the pipeline's instruments.
//
// All metrics are prefixed with "omniquery_":
//   - omniquery_ingests_total{status} - document ingests by outcome
//   - omniquery_queries_total{status} - questions by outcome
//   - omniquery_empty_results_total - questions that retrieved no text
//   - omniquery_skipped_images_total - images dropped during embedding
//   - omniquery_indexed_vectors{modality} - vectors held per index
//   - omniquery_stage_duration_seconds{stage} - embed, search, generate timings
type Metrics struct {
	IngestsTotal       *prometheus.CounterVec
	QueriesTotal       *prometheus.CounterVec
	EmptyResultsTotal  prometheus.Counter
	SkippedImagesTotal prometheus.Counter
	IndexedVectors     *prometheus.GaugeVec
	StageDuration      *prometheus.HistogramVec
}

// New creates the instruments and registers them with reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IngestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omniquery_ingests_total",
				Help: "Total number of document ingests",
			},
			[]string{"status"}, // "ok" or "error"
		),
		QueriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "omniquery_queries_total",
				Help: "Total number of questions answered",
			},
			[]string{"status"},
		),
		EmptyResultsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "omniquery_empty_results_total",
			Help: "Questions for which no relevant text was found",
		}),
		SkippedImagesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "omniquery_skipped_images_total",
			Help: "Images skipped because they could not be read or embedded",
		}),
		IndexedVectors: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "omniquery_indexed_vectors",
				Help: "Number of vectors in each index",
			},
			[]string{"modality"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "omniquery_stage_duration_seconds",
				Help:    "Duration of pipeline stages",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage"},
		),
	}
}

// Status maps an error to a status label.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
