package blob

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndGet(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	uploaded := time.Now().UTC().Truncate(time.Second)
	err = store.Put(ctx, "report.txt", []byte("quarterly numbers"), Metadata{
		ContentType: "text/plain",
		Uploader:    "ada",
		UploadedAt:  uploaded,
	})
	require.NoError(t, err)

	data, meta, err := store.Get(ctx, "report.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("quarterly numbers"), data)
	assert.Equal(t, "text/plain", meta.ContentType)
	assert.Equal(t, "ada", meta.Uploader)
	assert.Equal(t, uploaded, meta.UploadedAt)
	assert.Equal(t, int64(len("quarterly numbers")), meta.Size)
}

func TestGet_NotFound(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.Get(context.Background(), "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStat(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "doc.txt", []byte("body"), Metadata{ContentType: "text/plain"}))

	meta, err := store.Stat(ctx, "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", meta.ContentType)

	_, err = store.Stat(ctx, "other.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPut_Overwrite(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "doc.txt", []byte("v1"), Metadata{Uploader: "a"}))
	require.NoError(t, store.Put(ctx, "doc.txt", []byte("v2"), Metadata{Uploader: "b"}))

	data, meta, err := store.Get(ctx, "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
	assert.Equal(t, "b", meta.Uploader)
}

func TestKeySanitization(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	// Traversal attempts are reduced to their base name.
	require.NoError(t, store.Put(ctx, "../../etc/passwd", []byte("nope"), Metadata{}))
	data, _, err := store.Get(ctx, "passwd")
	require.NoError(t, err)
	assert.Equal(t, []byte("nope"), data)

	// Keys that reduce to nothing are rejected.
	assert.Error(t, store.Put(ctx, "..", []byte("x"), Metadata{}))
	assert.Error(t, store.Put(ctx, "", []byte("x"), Metadata{}))

	// Sidecar names are reserved.
	assert.Error(t, store.Put(ctx, "doc.meta.json", []byte("x"), Metadata{}))
}
