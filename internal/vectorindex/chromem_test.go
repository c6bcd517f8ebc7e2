package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/askd/internal/config"
)

func newTestIndex(t *testing.T) *ChromemIndex {
	t.Helper()
	idx, err := NewChromemIndex(config.ChromemConfig{
		Path:       t.TempDir(),
		Collection: "test",
	}, zap.NewNop())
	require.NoError(t, err)
	return idx
}

// unit3 returns a normalized 3-dimensional vector.
func unit3(x, y, z float32) []float32 {
	return []float32{x, y, z}
}

func TestChromemIndex_UpsertAndQuery(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	n, err := idx.Upsert(ctx, []Record{
		{ID: "a", Values: unit3(1, 0, 0), Metadata: map[string]any{"text": "alpha", "kind": "document"}},
		{ID: "b", Values: unit3(0, 1, 0), Metadata: map[string]any{"text": "beta", "kind": "document"}},
		{ID: "c", Values: unit3(0, 0, 1), Metadata: map[string]any{"text": "gamma", "kind": "note"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	matches, err := idx.Query(ctx, unit3(1, 0, 0), 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.InDelta(t, 1.0, float64(matches[0].Score), 1e-5)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
	assert.Equal(t, "alpha", matches[0].Metadata["text"])
}

func TestChromemIndex_QueryEmptyIndex(t *testing.T) {
	idx := newTestIndex(t)

	matches, err := idx.Query(context.Background(), unit3(1, 0, 0), 3)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestChromemIndex_TopKCappedAtCount(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Upsert(ctx, []Record{
		{ID: "a", Values: unit3(1, 0, 0), Metadata: map[string]any{"text": "alpha"}},
	})
	require.NoError(t, err)

	matches, err := idx.Query(ctx, unit3(1, 0, 0), 10)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestChromemIndex_EmptyBatch(t *testing.T) {
	idx := newTestIndex(t)

	_, err := idx.Upsert(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestChromemIndex_DimensionMismatch(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Upsert(ctx, []Record{{ID: "a", Values: unit3(1, 0, 0)}})
	require.NoError(t, err)

	_, err = idx.Upsert(ctx, []Record{{ID: "b", Values: []float32{1, 0}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = idx.Upsert(ctx, []Record{{ID: "c", Values: nil}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestChromemIndex_DeleteByIDs(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Upsert(ctx, []Record{
		{ID: "a", Values: unit3(1, 0, 0), Metadata: map[string]any{"text": "alpha"}},
		{ID: "b", Values: unit3(0, 1, 0), Metadata: map[string]any{"text": "beta"}},
	})
	require.NoError(t, err)

	require.NoError(t, idx.DeleteByIDs(ctx, []string{"a"}))

	matches, err := idx.Query(ctx, unit3(1, 0, 0), 2)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].ID)
}

func TestChromemIndex_GetByIDs(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Upsert(ctx, []Record{
		{ID: "a", Values: unit3(1, 0, 0), Metadata: map[string]any{"text": "alpha"}},
	})
	require.NoError(t, err)

	records, err := idx.GetByIDs(ctx, []string{"a", "missing"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, "alpha", records[0].Metadata["text"])
}

func TestChromemIndex_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := NewChromemIndex(config.ChromemConfig{Path: dir, Collection: "test"}, nil)
	require.NoError(t, err)
	_, err = idx.Upsert(ctx, []Record{
		{ID: "a", Values: unit3(1, 0, 0), Metadata: map[string]any{"text": "alpha"}},
	})
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	reopened, err := NewChromemIndex(config.ChromemConfig{Path: dir, Collection: "test"}, nil)
	require.NoError(t, err)
	matches, err := reopened.Query(ctx, unit3(1, 0, 0), 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].ID)
}

func TestFactory_UnknownProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.VectorIndex.Provider = "pinecone"

	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
