// Package metrics holds the Prometheus collectors for the ask pipeline and ingestion.
package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "studyqa"

var (
	// StageDuration observes the duration of each ask pipeline stage.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "stage_duration_seconds",
			Help:      "Duration of ask pipeline stages",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"}, // classify, retrieve, boost, select, generate, reconcile
	)

	// AsksTotal counts answered questions by intent and final answer type.
	AsksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "asks_total",
			Help:      "Total number of answered questions",
		},
		[]string{"intent", "answer_type"},
	)

	// Reclassifications counts answers whose type was changed by validation.
	Reclassifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "reclassifications_total",
			Help:      "Answers reclassified during validation",
		},
		[]string{"from", "to"},
	)

	// IngestsTotal counts document ingestions by file type and outcome.
	IngestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "ingests_total",
			Help:      "Total number of document ingestions",
		},
		[]string{"file_type", "status"},
	)

	// IngestChunks observes the number of chunks produced per document.
	IngestChunks = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "chunks_per_document",
			Help:      "Number of chunks produced per ingested document",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// ProviderFailures counts failed provider attempts inside a fallback chain.
	ProviderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "provider_failures_total",
			Help:      "Failed provider attempts",
		},
		[]string{"role", "provider"}, // role: completion, embedding
	)
)

// ObserveStage records the time elapsed since start for a pipeline stage.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Status is the label value for an operation outcome.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RegisterDB exposes connection pool statistics of db.
func RegisterDB(db *sql.DB, name string) error {
	return prometheus.Register(collectors.NewDBStatsCollector(db, name))
}
