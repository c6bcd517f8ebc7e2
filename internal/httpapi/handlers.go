package httpapi

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/askd/internal/answer"
	"github.com/fyrsmithlabs/askd/internal/blob"
	"github.com/fyrsmithlabs/askd/internal/ingest"
	"github.com/fyrsmithlabs/askd/internal/notes"
)

// Header names used by the API.
const (
	headerUploader      = "X-Uploader"
	headerUploadAuthKey = "X-Upload-Auth-Key"
	headerConfidence    = "X-Answer-Confidence"
	headerSource        = "X-Answer-Source"
)

// AskRequest is the body of POST /api/v1/ask.
type AskRequest struct {
	Question string `json:"question" form:"question"`
}

// NoteRequest is the body of POST /api/v1/notes.
type NoteRequest struct {
	Question string `json:"question" form:"question"`
	Answer   string `json:"answer" form:"answer"`
}

// NoteResponse mirrors a stored note.
type NoteResponse struct {
	ID        string `json:"id"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	CreatedAt string `json:"created_at"`
	Uploader  string `json:"uploader"`
}

// UploadResponse acknowledges a stored document.
type UploadResponse struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// SearchMatch is one entry of GET /api/v1/search.
type SearchMatch struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// uploader returns the request's uploader identity.
func uploader(c echo.Context) string {
	if v := c.Request().Header.Get(headerUploader); v != "" {
		return v
	}
	return "anonymous"
}

// handleAsk streams a grounded answer as text/plain. Confidence and
// citation ride in response headers, set before the body starts.
func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
	// Confidence and citation are only final once the stream ends, so
	// they travel as trailers on the chunked response.
	res.Header().Set("Trailer", headerConfidence+", "+headerSource)

	// The composer delivers deltas straight to the wire. Once the
	// first delta is written the status is committed, so backend
	// errors after that point can only truncate the body.
	started := false
	sink := func(delta string) error {
		if !started {
			res.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := io.WriteString(res, delta); err != nil {
			return err
		}
		res.Flush()
		return nil
	}

	result, err := s.answers.Ask(c.Request().Context(), req.Question, sink)
	if err != nil {
		if started {
			// Too late for a status change; log and cut the stream.
			s.logger.Error("answer stream aborted", zap.Error(err))
			return nil
		}
		switch {
		case errors.Is(err, answer.ErrEmptyQuestion):
			return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
		default:
			return echo.NewHTTPError(http.StatusServiceUnavailable, "answer backend unavailable")
		}
	}

	res.Header().Set(http.TrailerPrefix+headerConfidence, strconv.Itoa(result.Confidence))
	if result.Citation != nil {
		res.Header().Set(http.TrailerPrefix+headerSource, result.Citation.Source)
	}
	return nil
}

// handleUpload accepts a multipart document and acknowledges storage.
// Indexing continues in the background.
func (s *Server) handleUpload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}

	f, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}

	doc := ingest.Document{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	}

	if err := s.ingest.Ingest(c.Request().Context(), doc, uploader(c)); err != nil {
		switch {
		case errors.Is(err, ingest.ErrFileTooLarge):
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, ingest.ErrUnsupportedType), errors.Is(err, ingest.ErrInvalidInput):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusServiceUnavailable, "storage backend unavailable")
		}
	}

	return c.JSON(http.StatusAccepted, UploadResponse{
		Filename: doc.Filename,
		Status:   "stored",
	})
}

func (s *Server) handleAddNote(c echo.Context) error {
	var req NoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	note, err := s.ingest.AddQA(c.Request().Context(), req.Question, req.Answer, uploader(c))
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrInvalidInput):
			return echo.NewHTTPError(http.StatusBadRequest, "question and answer are required")
		case errors.Is(err, notes.ErrDuplicateNote):
			return echo.NewHTTPError(http.StatusConflict, "identical question and answer already stored")
		default:
			return echo.NewHTTPError(http.StatusServiceUnavailable, "note backend unavailable")
		}
	}

	return c.JSON(http.StatusCreated, noteResponse(*note))
}

func (s *Server) handleListNotes(c echo.Context) error {
	listed, err := s.ingest.Notes().List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "note backend unavailable")
	}
	out := make([]NoteResponse, len(listed))
	for i, n := range listed {
		out[i] = noteResponse(n)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleSearch(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q parameter is required")
	}
	topK := 0
	if k := c.QueryParam("k"); k != "" {
		parsed, err := strconv.Atoi(k)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "k must be a positive integer")
		}
		topK = parsed
	}

	matches, err := s.answers.Search(c.Request().Context(), query, topK)
	if err != nil {
		if errors.Is(err, answer.ErrEmptyQuestion) {
			return echo.NewHTTPError(http.StatusBadRequest, "q parameter is required")
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, "search backend unavailable")
	}

	out := make([]SearchMatch, len(matches))
	for i, m := range matches {
		out[i] = SearchMatch{ID: m.ID, Score: m.Score, Metadata: m.Metadata}
	}
	return c.JSON(http.StatusOK, out)
}

// handleGetFile serves stored document bytes, guarded by the shared
// upload auth key.
func (s *Server) handleGetFile(c echo.Context) error {
	key := s.cfg.UploadAuthKey.Value()
	provided := c.Request().Header.Get(headerUploadAuthKey)
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(provided)) != 1 {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid upload auth key")
	}

	data, meta, err := s.blobs.Get(c.Request().Context(), c.Param("filename"))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "file not found")
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage backend unavailable")
	}

	contentType := meta.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return c.Blob(http.StatusOK, contentType, data)
}

func noteResponse(n notes.Note) NoteResponse {
	return NoteResponse{
		ID:        n.ID,
		Question:  n.Question,
		Answer:    n.Answer,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
		Uploader:  n.Uploader,
	}
}
