package vectorindex

import (
	"context"
	"fmt"
	"os"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/askd/internal/config"
)

var chromemTracer = otel.Tracer("askd.vectorindex.chromem")

// ChromemIndex implements Index on chromem-go, an embeddable vector
// database with automatic persistence to gob files. Suitable for
// single-node deployments with no external services.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *zap.Logger

	// dim is the vector dimension, fixed by the first upserted record.
	mu  sync.Mutex
	dim int
}

var _ Index = (*ChromemIndex)(nil)

// NewChromemIndex opens (or creates) a persistent chromem database at
// cfg.Path and its collection.
func NewChromemIndex(cfg config.ChromemConfig, logger *zap.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: chromem path is required", ErrInvalidConfig)
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: chromem collection is required", ErrInvalidConfig)
	}

	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", cfg.Path, err)
	}

	db, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("opening chromem DB: %w", err)
	}

	// The embedding func is only invoked when documents arrive without
	// precomputed vectors, which never happens here. It fails loudly if
	// it does.
	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, rejectEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", cfg.Collection, err)
	}

	logger.Info("chromem index initialized",
		zap.String("path", cfg.Path),
		zap.Bool("compress", cfg.Compress),
		zap.String("collection", cfg.Collection),
	)

	return &ChromemIndex{db: db, collection: collection, logger: logger}, nil
}

func rejectEmbeddingFunc(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("records must carry precomputed embeddings")
}

// checkDim pins the index dimension on first use and rejects records
// that deviate afterwards.
func (s *ChromemIndex) checkDim(records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if len(r.Values) == 0 {
			return fmt.Errorf("%w: record %s has an empty vector", ErrDimensionMismatch, r.ID)
		}
		if s.dim == 0 {
			s.dim = len(r.Values)
			continue
		}
		if len(r.Values) != s.dim {
			return fmt.Errorf("%w: record %s has dimension %d, index has %d",
				ErrDimensionMismatch, r.ID, len(r.Values), s.dim)
		}
	}
	return nil
}

// Upsert writes records with their precomputed embeddings.
func (s *ChromemIndex) Upsert(ctx context.Context, records []Record) (int, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Upsert")
	defer span.End()

	span.SetAttributes(attribute.Int("record_count", len(records)))

	if len(records) == 0 {
		return 0, ErrEmptyBatch
	}
	if err := s.checkDim(records); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   metadataText(r.Metadata),
			Metadata:  metadataToString(r.Metadata),
			Embedding: r.Values,
		}
	}

	// Concurrency 1: embeddings are precomputed, nothing to parallelize.
	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("adding documents: %w", err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("upserted records to chromem", zap.Int("count", len(records)))
	return len(records), nil
}

// Query searches for the topK nearest records by cosine similarity.
func (s *ChromemIndex) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Query")
	defer span.End()

	span.SetAttributes(attribute.Int("top_k", topK))

	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", ErrDimensionMismatch)
	}

	// chromem requires nResults <= document count.
	count := s.collection.Count()
	if count == 0 {
		return []Match{}, nil
	}
	if topK > count {
		topK = count
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			ID:       r.ID,
			Score:    r.Similarity,
			Metadata: metadataFromString(r.Metadata),
		}
	}

	span.SetAttributes(attribute.Int("match_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// DeleteByIDs removes records, collecting per-ID failures.
func (s *ChromemIndex) DeleteByIDs(ctx context.Context, ids []string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.DeleteByIDs")
	defer span.End()

	span.SetAttributes(attribute.Int("id_count", len(ids)))

	if len(ids) == 0 {
		return nil
	}

	var failed []string
	for _, id := range ids {
		if err := s.collection.Delete(ctx, nil, nil, id); err != nil {
			span.RecordError(err)
			s.logger.Error("failed to delete record",
				zap.String("id", id),
				zap.Error(err),
			)
			failed = append(failed, id)
		}
	}
	if len(failed) > 0 {
		span.SetStatus(codes.Error, "partial deletion failure")
		return fmt.Errorf("failed to delete %d of %d records: %v", len(failed), len(ids), failed)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// GetByIDs fetches records by ID. Missing IDs are skipped, not errors.
func (s *ChromemIndex) GetByIDs(ctx context.Context, ids []string) ([]Record, error) {
	_, span := chromemTracer.Start(ctx, "ChromemIndex.GetByIDs")
	defer span.End()

	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		doc, err := s.collection.GetByID(ctx, id)
		if err != nil {
			continue
		}
		records = append(records, Record{
			ID:       doc.ID,
			Values:   doc.Embedding,
			Metadata: metadataFromString(doc.Metadata),
		})
	}

	span.SetAttributes(attribute.Int("record_count", len(records)))
	span.SetStatus(codes.Ok, "success")
	return records, nil
}

// Close is a no-op; chromem persists on every write.
func (s *ChromemIndex) Close() error {
	s.logger.Info("chromem index closed")
	return nil
}

// metadataText returns the indexed text for a record, used as chromem
// document content so inspection tools show something readable.
func metadataText(metadata map[string]any) string {
	if metadata == nil {
		return ""
	}
	if text, ok := metadata["text"].(string); ok {
		return text
	}
	return ""
}

// metadataToString converts metadata to chromem's string map.
func metadataToString(metadata map[string]any) map[string]string {
	if metadata == nil {
		return nil
	}
	result := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			result[k] = val
		case int:
			result[k] = fmt.Sprintf("%d", val)
		case int64:
			result[k] = fmt.Sprintf("%d", val)
		case float64:
			result[k] = fmt.Sprintf("%f", val)
		case bool:
			result[k] = fmt.Sprintf("%t", val)
		default:
			result[k] = fmt.Sprintf("%v", val)
		}
	}
	return result
}

// metadataFromString widens chromem's string map back to metadata.
func metadataFromString(metadata map[string]string) map[string]any {
	if metadata == nil {
		return nil
	}
	result := make(map[string]any, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}
	return result
}
