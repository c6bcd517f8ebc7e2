// Package vectorindex provides embedding index implementations for
// document chunks and curated notes.
//
// Two backends are supported: chromem-go (embedded, persistent gob
// files, zero external services) and Qdrant (external, gRPC). Both
// store precomputed embeddings; callers embed text before upserting.
package vectorindex

import (
	"context"
	"errors"
)

// Sentinel errors for vector index operations.
var (
	ErrInvalidConfig     = errors.New("invalid vector index configuration")
	ErrEmptyBatch        = errors.New("empty record batch")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrNotFound          = errors.New("record not found")
	ErrUnavailable       = errors.New("vector index unavailable")
)

// Record is a stored vector with its metadata.
type Record struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// Match is a query result, scored by cosine similarity in [0, 1].
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// Index stores and searches embedding vectors.
//
// Query returns at most topK matches ordered by descending score.
// Upsert returns the number of records written; re-upserting an
// existing ID replaces it.
type Index interface {
	Upsert(ctx context.Context, records []Record) (int, error)
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	GetByIDs(ctx context.Context, ids []string) ([]Record, error)
	Close() error
}
