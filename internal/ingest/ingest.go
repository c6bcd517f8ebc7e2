// Package ingest runs the document and note ingestion pipelines:
// validate → store → extract → chunk → embed → index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/askd/internal/blob"
	"github.com/fyrsmithlabs/askd/internal/chunker"
	"github.com/fyrsmithlabs/askd/internal/config"
	"github.com/fyrsmithlabs/askd/internal/embedding"
	"github.com/fyrsmithlabs/askd/internal/extract"
	"github.com/fyrsmithlabs/askd/internal/metrics"
	"github.com/fyrsmithlabs/askd/internal/notes"
	"github.com/fyrsmithlabs/askd/internal/vectorindex"
)

// Sentinel errors for ingestion.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnsupportedType    = errors.New("unsupported content type")
	ErrFileTooLarge       = errors.New("file exceeds size limit")
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// chunkPreviewLen bounds the chunk_preview metadata field.
const chunkPreviewLen = 100

// Document is an upload handed to the pipeline.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Service wires the ingestion pipeline together.
type Service struct {
	extractor extract.Extractor
	chunker   *chunker.Chunker
	embedder  embedding.Embedder
	index     vectorindex.Index
	blobs     *blob.Store
	notes     *notes.Store
	cfg       config.IngestConfig
	logger    *zap.Logger
	metrics   *metrics.Metrics

	// wg tracks background indexing goroutines so tests and shutdown
	// can wait for them.
	wg sync.WaitGroup
}

// NewService constructs the ingestion service. logger may be nil.
func NewService(
	extractor extract.Extractor,
	ch *chunker.Chunker,
	embedder embedding.Embedder,
	index vectorindex.Index,
	blobs *blob.Store,
	noteStore *notes.Store,
	cfg config.IngestConfig,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		extractor: extractor,
		chunker:   ch,
		embedder:  embedder,
		index:     index,
		blobs:     blobs,
		notes:     noteStore,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
	}
}

// validate checks upload constraints before any work is done.
func (s *Service) validate(doc Document) error {
	if doc.Filename == "" {
		return fmt.Errorf("%w: filename is required", ErrInvalidInput)
	}
	if int64(len(doc.Data)) > s.cfg.MaxFileSize {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFileTooLarge, len(doc.Data), s.cfg.MaxFileSize)
	}
	for _, allowed := range s.cfg.AllowedTypes {
		if doc.ContentType == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedType, doc.ContentType)
}

// StoreDocument validates the upload and persists it to the blob
// store. This is the synchronous part of ingestion; the upload
// endpoint acknowledges once it returns.
func (s *Service) StoreDocument(ctx context.Context, doc Document, uploader string) error {
	if err := s.validate(doc); err != nil {
		return err
	}
	err := s.blobs.Put(ctx, doc.Filename, doc.Data, blob.Metadata{
		ContentType: doc.ContentType,
		Uploader:    uploader,
		UploadedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("%w: storing document: %v", ErrBackendUnavailable, err)
	}
	s.metrics.DocumentsUploaded.Inc()
	return nil
}

// IndexDocument extracts, chunks, embeds, and indexes a document.
// Chunks whose embedding fails or comes back empty are skipped and
// counted; the rest are indexed. Returns the number of chunks indexed.
func (s *Service) IndexDocument(ctx context.Context, doc Document, uploader string) (int, error) {
	text, err := s.extractor.Extract(ctx, doc.Filename, doc.ContentType, doc.Data)
	if err != nil {
		return 0, fmt.Errorf("extracting text from %s: %w", doc.Filename, err)
	}

	docID := uuid.New().String()
	uploadedAt := time.Now().UTC().Format(time.RFC3339)
	chunks := s.chunker.Split(text)

	records := make([]vectorindex.Record, 0, len(chunks))
	for i, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			continue
		}

		vector, err := s.embedder.EmbedQuery(ctx, chunk)
		if err != nil || len(vector) == 0 {
			s.metrics.EmbeddingFailures.Inc()
			s.logger.Warn("skipping chunk with failed embedding",
				zap.String("filename", doc.Filename),
				zap.Int("chunk", i),
				zap.Error(err),
			)
			continue
		}

		// Zero-padded chunk IDs sort in document order.
		chunkID := fmt.Sprintf("%s-%06d", docID, i)
		records = append(records, vectorindex.Record{
			ID:     chunkID,
			Values: vector,
			Metadata: map[string]any{
				"kind":          "document",
				"text":          chunk,
				"doc_id":        docID,
				"chunk_id":      chunkID,
				"chunk_preview": preview(chunk),
				"filename":      doc.Filename,
				"uploaded_at":   uploadedAt,
				"uploader":      uploader,
			},
		})
	}

	if len(records) == 0 {
		s.logger.Warn("document produced no indexable chunks",
			zap.String("filename", doc.Filename),
			zap.Int("chunks", len(chunks)),
		)
		return 0, nil
	}

	n, err := s.index.Upsert(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("%w: indexing %s: %v", ErrBackendUnavailable, doc.Filename, err)
	}

	s.metrics.ChunksIndexed.Add(float64(n))
	s.logger.Info("document indexed",
		zap.String("filename", doc.Filename),
		zap.String("doc_id", docID),
		zap.Int("chunks_total", len(chunks)),
		zap.Int("chunks_indexed", n),
	)
	return n, nil
}

// Ingest stores the document synchronously and indexes it in the
// background. The returned error reflects storage only; acknowledging
// an upload does not mean it is searchable yet.
func (s *Service) Ingest(ctx context.Context, doc Document, uploader string) error {
	if err := s.StoreDocument(ctx, doc, uploader); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Detached from the request context; indexing outlives the
		// upload response.
		if _, err := s.IndexDocument(context.Background(), doc, uploader); err != nil {
			s.metrics.IndexingFailures.Inc()
			s.logger.Error("background indexing failed",
				zap.String("filename", doc.Filename),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Wait blocks until all background indexing goroutines finish. Used
// during shutdown and by tests.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Notes exposes the note store for read endpoints.
func (s *Service) Notes() *notes.Store {
	return s.notes
}

// Reindex re-fetches a stored document from the blob store and runs
// indexing again.
func (s *Service) Reindex(ctx context.Context, filename, uploader string) (int, error) {
	data, meta, err := s.blobs.Get(ctx, filename)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return 0, fmt.Errorf("%w: document %s not stored", ErrInvalidInput, filename)
		}
		return 0, fmt.Errorf("%w: fetching %s: %v", ErrBackendUnavailable, filename, err)
	}
	return s.IndexDocument(ctx, Document{
		Filename:    filename,
		ContentType: meta.ContentType,
		Data:        data,
	}, uploader)
}

// AddQA stores a curated question/answer pair: note row first, then
// its embedding in the vector index. If the vector write fails the
// note is deleted again so the two stores cannot drift apart.
func (s *Service) AddQA(ctx context.Context, question, answer, uploader string) (*notes.Note, error) {
	question = strings.TrimSpace(question)
	answer = strings.TrimSpace(answer)
	if question == "" || answer == "" {
		return nil, fmt.Errorf("%w: question and answer are required", ErrInvalidInput)
	}

	vector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil || len(vector) == 0 {
		return nil, fmt.Errorf("%w: embedding question: %v", ErrBackendUnavailable, err)
	}

	// Advisory probe: surface what the index already answers for this
	// question. Logged only; never blocks the write.
	if matches, err := s.index.Query(ctx, vector, 3); err == nil && len(matches) > 0 {
		s.logger.Info("existing coverage for curated question",
			zap.String("question", question),
			zap.Float32("best_score", matches[0].Score),
			zap.Int("matches", len(matches)),
		)
	}

	note := notes.Note{
		ID:        uuid.New().String(),
		Question:  question,
		Answer:    answer,
		CreatedAt: time.Now().UTC(),
		Uploader:  uploader,
	}
	if err := s.notes.Insert(ctx, note); err != nil {
		if errors.Is(err, notes.ErrDuplicateNote) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: storing note: %v", ErrBackendUnavailable, err)
	}

	record := vectorindex.Record{
		ID:     note.ID,
		Values: vector,
		Metadata: map[string]any{
			"kind":        "note",
			"text":        fmt.Sprintf("Q: %s\nA: %s", question, answer),
			"question":    question,
			"answer":      answer,
			"uploaded_at": note.CreatedAt.Format(time.RFC3339),
			"uploader":    uploader,
		},
	}
	if _, err := s.index.Upsert(ctx, []vectorindex.Record{record}); err != nil {
		// Compensate: without its vector the note would be invisible
		// to retrieval but still block future inserts as a duplicate.
		if delErr := s.notes.Delete(ctx, note.ID); delErr != nil {
			s.logger.Error("rollback of orphaned note failed",
				zap.String("note_id", note.ID),
				zap.Error(delErr),
			)
		}
		return nil, fmt.Errorf("%w: indexing note: %v", ErrBackendUnavailable, err)
	}

	s.metrics.NotesCreated.Inc()
	s.logger.Info("curated note stored",
		zap.String("note_id", note.ID),
		zap.String("uploader", uploader),
	)
	return &note, nil
}

// preview returns the first chunkPreviewLen runes of text.
func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= chunkPreviewLen {
		return text
	}
	return string(runes[:chunkPreviewLen])
}
