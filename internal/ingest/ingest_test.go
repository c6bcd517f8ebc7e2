package ingest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/askd/internal/blob"
	"github.com/fyrsmithlabs/askd/internal/chunker"
	"github.com/fyrsmithlabs/askd/internal/config"
	"github.com/fyrsmithlabs/askd/internal/extract"
	"github.com/fyrsmithlabs/askd/internal/metrics"
	"github.com/fyrsmithlabs/askd/internal/notes"
	"github.com/fyrsmithlabs/askd/internal/vectorindex"
)

// fakeEmbedder returns deterministic unit vectors derived from the
// text hash. Texts listed in fail produce an error.
type fakeEmbedder struct {
	fail map[string]bool
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.fail[text] {
		return nil, errors.New("embedding backend down")
	}
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()
	v := []float32{
		float32(seed%97) + 1,
		float32(seed%89) + 1,
		float32(seed%83) + 1,
	}
	var norm float32
	for _, x := range v {
		norm += x * x
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i := range v {
		v[i] /= norm
	}
	return v, nil
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// fakeIndex is an in-memory Index with optional forced failures.
type fakeIndex struct {
	records    map[string]vectorindex.Record
	failUpsert bool
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{records: make(map[string]vectorindex.Record)}
}

func (f *fakeIndex) Upsert(_ context.Context, records []vectorindex.Record) (int, error) {
	if f.failUpsert {
		return 0, errors.New("index unavailable")
	}
	if len(records) == 0 {
		return 0, vectorindex.ErrEmptyBatch
	}
	for _, r := range records {
		f.records[r.ID] = r
	}
	return len(records), nil
}

func (f *fakeIndex) Query(_ context.Context, vector []float32, topK int) ([]vectorindex.Match, error) {
	matches := make([]vectorindex.Match, 0, len(f.records))
	for _, r := range f.records {
		var dot float32
		for i := range vector {
			if i < len(r.Values) {
				dot += vector[i] * r.Values[i]
			}
		}
		matches = append(matches, vectorindex.Match{ID: r.ID, Score: dot, Metadata: r.Metadata})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (f *fakeIndex) DeleteByIDs(_ context.Context, ids []string) error {
	for _, id := range ids {
		delete(f.records, id)
	}
	return nil
}

func (f *fakeIndex) GetByIDs(_ context.Context, ids []string) ([]vectorindex.Record, error) {
	var out []vectorindex.Record
	for _, id := range ids {
		if r, ok := f.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeIndex) Close() error { return nil }

type testEnv struct {
	svc      *Service
	index    *fakeIndex
	embedder *fakeEmbedder
	notes    *notes.Store
	blobs    *blob.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	blobs, err := blob.NewStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	noteStore, err := notes.NewStore(filepath.Join(dir, "notes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { noteStore.Close() })

	index := newFakeIndex()
	embedder := &fakeEmbedder{fail: map[string]bool{}}

	cfg := config.IngestConfig{
		ChunkSize:    200,
		ChunkOverlap: 50,
		MaxFileSize:  1024,
		AllowedTypes: []string{"text/plain", "text/csv"},
	}

	svc := NewService(
		extract.NewTextExtractor(),
		chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder,
		index,
		blobs,
		noteStore,
		cfg,
		zap.NewNop(),
		metrics.New(prometheus.NewRegistry()),
	)
	return &testEnv{svc: svc, index: index, embedder: embedder, notes: noteStore, blobs: blobs}
}

func TestStoreDocument_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.svc.StoreDocument(ctx, Document{
		Filename:    "virus.exe",
		ContentType: "application/octet-stream",
		Data:        []byte("x"),
	}, "tester")
	assert.ErrorIs(t, err, ErrUnsupportedType)

	err = env.svc.StoreDocument(ctx, Document{
		Filename:    "big.txt",
		ContentType: "text/plain",
		Data:        make([]byte, 2048),
	}, "tester")
	assert.ErrorIs(t, err, ErrFileTooLarge)

	err = env.svc.StoreDocument(ctx, Document{
		ContentType: "text/plain",
		Data:        []byte("x"),
	}, "tester")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestIndexDocument_ChunkIDsPreserveOrder(t *testing.T) {
	env := newTestEnv(t)
	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 12)

	n, err := env.svc.IndexDocument(context.Background(), Document{
		Filename:    "fox.txt",
		ContentType: "text/plain",
		Data:        []byte(text),
	}, "tester")
	require.NoError(t, err)
	require.Greater(t, n, 1)

	ids := make([]string, 0, len(env.index.records))
	for id := range env.index.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for i, id := range ids {
		assert.True(t, strings.HasSuffix(id, fmt.Sprintf("-%06d", i)),
			"id %s should end with ordinal %06d", id, i)
		rec := env.index.records[id]
		assert.Equal(t, "fox.txt", rec.Metadata["filename"])
		assert.Equal(t, "document", rec.Metadata["kind"])
		assert.Equal(t, id, rec.Metadata["chunk_id"])
	}
}

func TestIndexDocument_SkipsFailedEmbeddings(t *testing.T) {
	env := newTestEnv(t)
	// 450 runes @ 200/50 → chunks at 0, 150, 300.
	text := strings.Repeat("a", 200) + strings.Repeat("b", 100) + strings.Repeat("c", 150)
	chunks := chunker.New(200, 50).Split(text)
	require.Len(t, chunks, 3)

	env.embedder.fail[chunks[1]] = true

	n, err := env.svc.IndexDocument(context.Background(), Document{
		Filename:    "partial.txt",
		ContentType: "text/plain",
		Data:        []byte(text),
	}, "tester")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, env.index.records, 2)
}

func TestIndexDocument_EmptyDocument(t *testing.T) {
	env := newTestEnv(t)

	n, err := env.svc.IndexDocument(context.Background(), Document{
		Filename:    "empty.txt",
		ContentType: "text/plain",
		Data:        nil,
	}, "tester")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, env.index.records)
}

func TestIngest_AsyncIndexing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.svc.Ingest(ctx, Document{
		Filename:    "async.txt",
		ContentType: "text/plain",
		Data:        []byte("some ingestible content"),
	}, "tester")
	require.NoError(t, err)

	// The upload is acknowledged before indexing completes.
	_, _, err = env.blobs.Get(ctx, "async.txt")
	require.NoError(t, err)

	env.svc.Wait()
	assert.Len(t, env.index.records, 1)
}

func TestReindex(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.StoreDocument(ctx, Document{
		Filename:    "stored.txt",
		ContentType: "text/plain",
		Data:        []byte("reindexable content"),
	}, "tester"))

	n, err := env.svc.Reindex(ctx, "stored.txt", "tester")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = env.svc.Reindex(ctx, "never-stored.txt", "tester")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAddQA(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	note, err := env.svc.AddQA(ctx, "What is the refund window?", "30 days.", "ada")
	require.NoError(t, err)
	require.NotNil(t, note)

	stored, err := env.notes.Get(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "What is the refund window?", stored.Question)

	rec, ok := env.index.records[note.ID]
	require.True(t, ok, "note vector should be indexed under the note id")
	assert.Equal(t, "note", rec.Metadata["kind"])
	assert.Equal(t, "Q: What is the refund window?\nA: 30 days.", rec.Metadata["text"])
}

func TestAddQA_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.AddQA(ctx, "   ", "answer", "ada")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.svc.AddQA(ctx, "question", "\n\t", "ada")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAddQA_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.AddQA(ctx, "Q", "A", "ada")
	require.NoError(t, err)

	_, err = env.svc.AddQA(ctx, "Q", "A", "grace")
	assert.ErrorIs(t, err, notes.ErrDuplicateNote)
}

func TestAddQA_RollbackOnIndexFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.index.failUpsert = true

	_, err := env.svc.AddQA(ctx, "Will this stick?", "No.", "ada")
	require.ErrorIs(t, err, ErrBackendUnavailable)

	// The note row must not survive a failed vector write.
	listed, err := env.notes.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)

	// Retrying after recovery succeeds; no duplicate conflict remains.
	env.index.failUpsert = false
	_, err = env.svc.AddQA(ctx, "Will this stick?", "No.", "ada")
	require.NoError(t, err)
}
