package vectorindex

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/askd/internal/config"
)

var qdrantTracer = otel.Tracer("askd.vectorindex.qdrant")

// QdrantIndex implements Index against an external Qdrant instance
// over gRPC. Transient failures are retried with exponential backoff.
//
// Qdrant point IDs must be UUIDs or integers, so record IDs are mapped
// to deterministic UUIDs (SHA-1 of the ID) and the original ID is kept
// in the payload under "id". The mapping makes Upsert idempotent.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	vectorSize int
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

var _ Index = (*QdrantIndex)(nil)

// NewQdrantIndex connects to Qdrant and ensures the collection exists
// with cosine distance and the configured vector size.
func NewQdrantIndex(ctx context.Context, cfg config.QdrantConfig, logger *zap.Logger) (*QdrantIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.VectorSize <= 0 {
		return nil, fmt.Errorf("%w: qdrant vector size must be positive", ErrInvalidConfig)
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: qdrant collection is required", ErrInvalidConfig)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	s := &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		vectorSize: cfg.VectorSize,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		logger:     logger,
	}

	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("qdrant index initialized",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("collection", cfg.Collection),
		zap.Int("vector_size", cfg.VectorSize),
	)

	return s, nil
}

func (s *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection: %v", ErrUnavailable, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.collection, err)
	}
	return nil
}

// pointID maps a record ID to its deterministic Qdrant point ID.
func pointID(id string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

// retry runs op, retrying transient gRPC failures with exponential
// backoff. Non-transient errors return immediately.
func (s *QdrantIndex) retry(ctx context.Context, name string, op func() error) error {
	backoff := s.backoff
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			s.logger.Warn("retrying qdrant operation",
				zap.String("operation", name),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		if err = op(); err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %s failed after %d attempts: %v", ErrUnavailable, name, s.maxRetries+1, err)
}

func isTransient(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
		return true
	}
	return false
}

// Upsert writes records, replacing any existing points with the same IDs.
func (s *QdrantIndex) Upsert(ctx context.Context, records []Record) (int, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Upsert")
	defer span.End()

	span.SetAttributes(attribute.Int("record_count", len(records)))

	if len(records) == 0 {
		return 0, ErrEmptyBatch
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		if len(r.Values) != s.vectorSize {
			err := fmt.Errorf("%w: record %s has dimension %d, index has %d",
				ErrDimensionMismatch, r.ID, len(r.Values), s.vectorSize)
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			return 0, err
		}

		points[i] = &qdrant.PointStruct{
			Id:      pointID(r.ID),
			Vectors: qdrant.NewVectors(r.Values...),
			Payload: metadataToPayload(r.ID, r.Metadata),
		}
	}

	err := s.retry(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return 0, fmt.Errorf("upserting points: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "success")
	s.logger.Debug("upserted records to qdrant", zap.Int("count", len(records)))
	return len(records), nil
}

// Query searches for the topK nearest records by cosine similarity.
func (s *QdrantIndex) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.Query")
	defer span.End()

	span.SetAttributes(attribute.Int("top_k", topK))

	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if len(vector) != s.vectorSize {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d",
			ErrDimensionMismatch, len(vector), s.vectorSize)
	}

	var scored []*qdrant.ScoredPoint
	err := s.retry(ctx, "query", func() error {
		var err error
		scored, err = s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(topK)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("querying points: %w", err)
	}

	matches := make([]Match, 0, len(scored))
	for _, p := range scored {
		metadata, id := payloadToMetadata(p.GetPayload())
		matches = append(matches, Match{
			ID:       id,
			Score:    p.GetScore(),
			Metadata: metadata,
		})
	}

	span.SetAttributes(attribute.Int("match_count", len(matches)))
	span.SetStatus(otelcodes.Ok, "success")
	return matches, nil
}

// DeleteByIDs removes records by their original IDs.
func (s *QdrantIndex) DeleteByIDs(ctx context.Context, ids []string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.DeleteByIDs")
	defer span.End()

	span.SetAttributes(attribute.Int("id_count", len(ids)))

	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}

	err := s.retry(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{Ids: pointIDs},
				},
			},
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return fmt.Errorf("deleting points: %w", err)
	}

	span.SetStatus(otelcodes.Ok, "success")
	return nil
}

// GetByIDs fetches records by their original IDs. Missing IDs are
// skipped, not errors.
func (s *QdrantIndex) GetByIDs(ctx context.Context, ids []string) ([]Record, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantIndex.GetByIDs")
	defer span.End()

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}

	var points []*qdrant.RetrievedPoint
	err := s.retry(ctx, "get", func() error {
		var err error
		points, err = s.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: s.collection,
			Ids:            pointIDs,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("getting points: %w", err)
	}

	records := make([]Record, 0, len(points))
	for _, p := range points {
		metadata, id := payloadToMetadata(p.GetPayload())
		var values []float32
		if v := p.GetVectors().GetVector(); v != nil {
			values = v.GetData()
		}
		records = append(records, Record{ID: id, Values: values, Metadata: metadata})
	}

	span.SetAttributes(attribute.Int("record_count", len(records)))
	span.SetStatus(otelcodes.Ok, "success")
	return records, nil
}

// Close closes the gRPC connection.
func (s *QdrantIndex) Close() error {
	return s.client.Close()
}

// metadataToPayload converts record metadata to a Qdrant payload,
// storing the original record ID under "id".
func metadataToPayload(id string, metadata map[string]any) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(metadata)+1)
	payload["id"] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: id}}
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
		case int:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
		case int64:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
		case float64:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
		case bool:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
		default:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
		}
	}
	return payload
}

// payloadToMetadata converts a Qdrant payload back to metadata,
// extracting the original record ID stored under "id".
func payloadToMetadata(payload map[string]*qdrant.Value) (map[string]any, string) {
	var id string
	metadata := make(map[string]any, len(payload))
	for k, v := range payload {
		val := valueToAny(v)
		if k == "id" {
			if str, ok := val.(string); ok {
				id = str
			}
			continue
		}
		metadata[k] = val
	}
	return metadata, id
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return v.String()
	}
}
