// Package answer implements confidence-gated, grounded question
// answering over the vector index and the curated note store.
package answer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/askd/internal/config"
	"github.com/fyrsmithlabs/askd/internal/embedding"
	"github.com/fyrsmithlabs/askd/internal/llm"
	"github.com/fyrsmithlabs/askd/internal/metrics"
	"github.com/fyrsmithlabs/askd/internal/notes"
	"github.com/fyrsmithlabs/askd/internal/vectorindex"
)

// Sentinel errors for question answering.
var (
	ErrEmptyQuestion = errors.New("question is empty")
	ErrUnavailable   = errors.New("answer backend unavailable")
)

// FallbackMessage is streamed when retrieval confidence is below the
// threshold. The model is never invoked in that case.
const FallbackMessage = "I'm not confident enough in the available content to answer that. " +
	"Try uploading a relevant document or adding a curated note first."

// systemPrompt forbids answering from anything but supplied context.
const systemPrompt = "You are a careful assistant that answers strictly from the provided context. " +
	"Use only the reference notes and document context supplied in this conversation. " +
	"If the context does not contain the answer, say you are not sure instead of guessing. " +
	"Never invent facts, sources, or citations."

// Citation points at the best-matching source.
type Citation struct {
	Source  string `json:"source"`
	Snippet string `json:"snippet,omitempty"`
}

// Result is the side-channel metadata of an answered question.
type Result struct {
	Confidence int       `json:"confidence"`
	Citation   *Citation `json:"citation,omitempty"`
	Grounded   bool      `json:"grounded"`
}

// Engine answers questions using retrieval plus a streamed completion.
type Engine struct {
	embedder embedding.Embedder
	index    vectorindex.Index
	notes    *notes.Store
	client   llm.Client
	cfg      config.AnswerConfig
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewEngine constructs the answering engine. logger may be nil.
func NewEngine(
	embedder embedding.Embedder,
	index vectorindex.Index,
	noteStore *notes.Store,
	client llm.Client,
	cfg config.AnswerConfig,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		embedder: embedder,
		index:    index,
		notes:    noteStore,
		client:   client,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
	}
}

// Ask answers a question, streaming normalized deltas through sink.
//
// When the best retrieval score is below the confidence threshold the
// fixed fallback message is streamed instead and the model is never
// called. A score exactly at the threshold passes the gate.
func (e *Engine) Ask(ctx context.Context, question string, sink Sink) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	e.metrics.QuestionsAsked.Inc()
	start := time.Now()
	defer func() {
		e.metrics.AnswerDuration.Observe(time.Since(start).Seconds())
	}()

	vector, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil || len(vector) == 0 {
		return nil, fmt.Errorf("%w: embedding question: %v", ErrUnavailable, err)
	}

	matches, err := e.index.Query(ctx, vector, e.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("%w: querying index: %v", ErrUnavailable, err)
	}

	var bestScore float32
	if len(matches) > 0 {
		bestScore = matches[0].Score
	}
	e.metrics.RetrievalScore.Observe(float64(bestScore))
	confidence := int(math.Round(float64(bestScore) * 100))

	if float64(bestScore) < e.cfg.ConfidenceThreshold {
		e.metrics.FallbackAnswers.Inc()
		e.logger.Info("confidence below threshold, skipping model",
			zap.String("question", question),
			zap.Float32("best_score", bestScore),
			zap.Float64("threshold", e.cfg.ConfidenceThreshold),
		)
		composer := NewComposer(sink, e.cfg.LineBreak)
		if err := composer.Write(FallbackMessage); err != nil {
			return nil, err
		}
		if err := composer.Flush(); err != nil {
			return nil, err
		}
		if err := composer.WriteFooter(confidence, ""); err != nil {
			return nil, err
		}
		return &Result{Confidence: confidence, Grounded: false}, nil
	}

	citation := citationFor(matches[0])
	msgs := e.buildMessages(ctx, question, matches)

	composer := NewComposer(sink, e.cfg.LineBreak)
	err = e.client.StreamChat(ctx, msgs, e.cfg.MaxTokens, composer.Write)
	if err != nil {
		return nil, fmt.Errorf("%w: generating answer: %v", ErrUnavailable, err)
	}
	if err := composer.Flush(); err != nil {
		return nil, err
	}
	if err := composer.WriteFooter(confidence, citation.render()); err != nil {
		return nil, err
	}

	return &Result{Confidence: confidence, Citation: &citation, Grounded: true}, nil
}

// Search embeds a query and returns raw index matches, ungated.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]vectorindex.Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuestion
	}
	if topK <= 0 {
		topK = e.cfg.TopK
	}
	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil || len(vector) == 0 {
		return nil, fmt.Errorf("%w: embedding query: %v", ErrUnavailable, err)
	}
	matches, err := e.index.Query(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: querying index: %v", ErrUnavailable, err)
	}
	return matches, nil
}

// buildMessages assembles the fixed prompt sequence: system
// instruction, reference notes, document context, then the raw
// question. The question goes last so it anchors the response.
func (e *Engine) buildMessages(ctx context.Context, question string, matches []vectorindex.Match) []llm.Message {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}

	if refs := e.referenceNotes(ctx, question); refs != "" {
		msgs = append(msgs, llm.Message{
			Role:    llm.RoleUser,
			Content: "Reference notes from the curated library:\n" + refs,
		})
	}

	if docContext := documentContext(matches); docContext != "" {
		msgs = append(msgs, llm.Message{
			Role:    llm.RoleUser,
			Content: "Document context:\n" + docContext,
		})
	}

	return append(msgs, llm.Message{Role: llm.RoleUser, Content: question})
}

// referenceNotes fetches notes whose question contains the asked
// question, newest first. Lookup failures degrade to no notes.
func (e *Engine) referenceNotes(ctx context.Context, question string) string {
	found, err := e.notes.SearchQuestion(ctx, question, e.cfg.NoteLimit)
	if err != nil {
		e.logger.Warn("note lookup failed, answering without notes", zap.Error(err))
		return ""
	}
	parts := make([]string, 0, len(found))
	for _, n := range found {
		parts = append(parts, fmt.Sprintf("Q: %s\nA: %s", n.Question, n.Answer))
	}
	return strings.Join(parts, "\n---\n")
}

// documentContext concatenates match text in descending score order.
func documentContext(matches []vectorindex.Match) string {
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		if text, ok := m.Metadata["text"].(string); ok && text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n---\n")
}

// citationFor derives the citation from the best match: filename plus
// matched snippet when present, otherwise the raw record id.
func citationFor(match vectorindex.Match) Citation {
	c := Citation{Source: match.ID}
	if filename, ok := match.Metadata["filename"].(string); ok && filename != "" {
		c.Source = filename
	}
	if snippet, ok := match.Metadata["chunk_preview"].(string); ok && snippet != "" {
		c.Snippet = snippet
	}
	return c
}

func (c Citation) render() string {
	if c.Snippet != "" {
		return fmt.Sprintf("%s (%q)", c.Source, c.Snippet)
	}
	return c.Source
}
