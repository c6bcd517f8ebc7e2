// Package metrics defines the Prometheus instruments for askd,
// exposed on /metrics via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles askd's Prometheus collectors.
type Metrics struct {
	DocumentsUploaded prometheus.Counter
	ChunksIndexed     prometheus.Counter
	EmbeddingFailures prometheus.Counter
	IndexingFailures  prometheus.Counter
	NotesCreated      prometheus.Counter
	QuestionsAsked    prometheus.Counter
	FallbackAnswers   prometheus.Counter
	RetrievalScore    prometheus.Histogram
	AnswerDuration    prometheus.Histogram
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer
// in production; tests use a fresh registry to avoid collisions.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DocumentsUploaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "askd_documents_uploaded_total",
			Help: "Documents accepted for ingestion.",
		}),
		ChunksIndexed: factory.NewCounter(prometheus.CounterOpts{
			Name: "askd_chunks_indexed_total",
			Help: "Chunks successfully embedded and upserted.",
		}),
		EmbeddingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "askd_embedding_failures_total",
			Help: "Chunk embeddings that failed or came back empty.",
		}),
		IndexingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "askd_indexing_failures_total",
			Help: "Background indexing runs that failed entirely.",
		}),
		NotesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "askd_notes_created_total",
			Help: "Curated Q&A notes stored.",
		}),
		QuestionsAsked: factory.NewCounter(prometheus.CounterOpts{
			Name: "askd_questions_asked_total",
			Help: "Questions received on the ask endpoint.",
		}),
		FallbackAnswers: factory.NewCounter(prometheus.CounterOpts{
			Name: "askd_fallback_answers_total",
			Help: "Questions answered with the low-confidence fallback.",
		}),
		RetrievalScore: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "askd_retrieval_best_score",
			Help:    "Best similarity score per question.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		AnswerDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "askd_answer_duration_seconds",
			Help:    "End-to-end latency of answered questions.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
