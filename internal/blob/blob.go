// Package blob stores uploaded document bytes on the filesystem with
// JSON metadata sidecars.
package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound indicates the requested blob does not exist.
var ErrNotFound = errors.New("blob not found")

// Metadata describes a stored blob.
type Metadata struct {
	ContentType string    `json:"content_type"`
	Uploader    string    `json:"uploader"`
	UploadedAt  time.Time `json:"uploaded_at"`
	Size        int64     `json:"size"`
}

// Store persists blobs as files under a root directory. Each blob has
// a <key>.meta.json sidecar holding its Metadata.
type Store struct {
	root string
}

// NewStore creates the root directory if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	return &Store{root: root}, nil
}

// sanitizeKey reduces a key to a single safe path element so stored
// filenames can never escape the root.
func sanitizeKey(key string) (string, error) {
	key = filepath.Base(strings.TrimSpace(key))
	if key == "" || key == "." || key == ".." || key == string(filepath.Separator) {
		return "", fmt.Errorf("invalid blob key: %q", key)
	}
	if strings.HasSuffix(key, ".meta.json") {
		return "", fmt.Errorf("invalid blob key: %q collides with metadata sidecar", key)
	}
	return key, nil
}

// Put writes the blob and its metadata sidecar. An existing blob with
// the same key is overwritten.
func (s *Store) Put(_ context.Context, key string, data []byte, meta Metadata) error {
	key, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	meta.Size = int64(len(data))

	if err := os.WriteFile(filepath.Join(s.root, key), data, 0o644); err != nil {
		return fmt.Errorf("writing blob %s: %w", key, err)
	}

	sidecar, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metadata for %s: %w", key, err)
	}
	if err := os.WriteFile(filepath.Join(s.root, key+".meta.json"), sidecar, 0o644); err != nil {
		return fmt.Errorf("writing metadata for %s: %w", key, err)
	}
	return nil
}

// Get returns the blob bytes and metadata, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, *Metadata, error) {
	key, err := sanitizeKey(key)
	if err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.root, key))
	if os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading blob %s: %w", key, err)
	}

	meta, err := s.readMeta(key)
	if err != nil {
		return nil, nil, err
	}
	return data, meta, nil
}

// Stat returns the blob metadata without reading its bytes.
func (s *Store) Stat(ctx context.Context, key string) (*Metadata, error) {
	key, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(s.root, key)); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	} else if err != nil {
		return nil, fmt.Errorf("statting blob %s: %w", key, err)
	}
	return s.readMeta(key)
}

func (s *Store) readMeta(key string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(s.root, key+".meta.json"))
	if os.IsNotExist(err) {
		// Blob exists but sidecar is gone; report what we can.
		return &Metadata{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading metadata for %s: %w", key, err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decoding metadata for %s: %w", key, err)
	}
	return &meta, nil
}
