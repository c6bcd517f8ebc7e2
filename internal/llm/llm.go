// Package llm streams chat completions via langchaingo.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/askd/internal/config"
)

// ErrNoMessages indicates StreamChat was called with no messages.
var ErrNoMessages = errors.New("no messages to send")

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is a single chat message.
type Message struct {
	Role    Role
	Content string
}

// Client streams chat completions. The callback receives each text
// delta as it arrives; returning an error from it aborts the stream.
type Client interface {
	StreamChat(ctx context.Context, msgs []Message, maxTokens int, fn func(delta string) error) error
}

// LangchainClient implements Client on a langchaingo model.
type LangchainClient struct {
	model llms.Model
}

var _ Client = (*LangchainClient)(nil)

// NewClient constructs the chat backend selected by cfg.Provider.
func NewClient(cfg config.LLMConfig) (*LangchainClient, error) {
	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case "anthropic", "":
		model, err = anthropic.New(
			anthropic.WithModel(cfg.Model),
			anthropic.WithToken(cfg.APIKey.Value()),
		)
	case "openai":
		opts := []openai.Option{
			openai.WithModel(cfg.Model),
			openai.WithToken(cfg.APIKey.Value()),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", cfg.Provider, err)
	}
	return &LangchainClient{model: model}, nil
}

// StreamChat sends msgs and streams the completion through fn.
func (c *LangchainClient) StreamChat(ctx context.Context, msgs []Message, maxTokens int, fn func(delta string) error) error {
	if len(msgs) == 0 {
		return ErrNoMessages
	}

	content := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		var role llms.ChatMessageType
		switch m.Role {
		case RoleSystem:
			role = llms.ChatMessageTypeSystem
		default:
			role = llms.ChatMessageTypeHuman
		}
		content = append(content, llms.TextParts(role, m.Content))
	}

	_, err := c.model.GenerateContent(ctx, content,
		llms.WithMaxTokens(maxTokens),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			return fn(string(chunk))
		}),
	)
	if err != nil {
		return fmt.Errorf("generating completion: %w", err)
	}
	return nil
}
