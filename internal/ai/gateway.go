// Package ai calls the chat completion provider behind the study helpers:
// summaries, explanations, quizzes, and tag suggestions.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"collalearn/internal/catalog"
)

// Temperatures per operation. Quiz generation runs hotter so repeated runs
// over the same material produce different questions.
const (
	defaultTemperature = 0.2
	quizTemperature    = 0.7
)

// Config holds provider settings for the gateway.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration
}

// Gateway issues single completion calls against an OpenAI style API. Each
// call is one attempt; the client's own retries are disabled so the caller
// sees rate limits and outages as they happen.
type Gateway struct {
	client openai.Client
	cfg    Config
}

// NewGateway builds a gateway from provider settings.
func NewGateway(cfg Config) *Gateway {
	if cfg.Model == "" {
		cfg.Model = "sonar"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Gateway{client: openai.NewClient(opts...), cfg: cfg}
}

// Summarize produces a bullet point summary of the text.
func (g *Gateway) Summarize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	system, user := summarizePrompt(text)
	return g.complete(ctx, system, user, g.cfg.Temperature)
}

// Explain answers a question against the text, or explains the text itself
// when no question is given. At least one of the two must be non-empty.
func (g *Gateway) Explain(ctx context.Context, text, question string) (string, error) {
	if strings.TrimSpace(text) == "" && strings.TrimSpace(question) == "" {
		return "", ErrEmptyText
	}
	system, user := explainPrompt(text, question)
	return g.complete(ctx, system, user, g.cfg.Temperature)
}

// Quiz generates count multiple choice questions from the text. Count is
// clamped to 1..10.
func (g *Gateway) Quiz(ctx context.Context, text string, count int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	system, user := quizPrompt(text, count)
	return g.complete(ctx, system, user, quizTemperature)
}

// SuggestTags asks the model for tags describing the content and returns
// them normalized. A reply with no usable tags yields an empty slice.
func (g *Gateway) SuggestTags(ctx context.Context, text, filename string) ([]string, error) {
	if strings.TrimSpace(text) == "" && strings.TrimSpace(filename) == "" {
		return nil, ErrEmptyText
	}
	system, user := suggestTagsPrompt(text, filename)
	reply, err := g.complete(ctx, system, user, g.cfg.Temperature)
	if err != nil {
		return nil, err
	}
	return parseTagReply(reply), nil
}

func (g *Gateway) complete(ctx context.Context, system, user string, temperature float64) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model:       g.cfg.Model,
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(g.cfg.MaxTokens),
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyReply
	}
	return content, nil
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == http.StatusUnauthorized || apierr.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: status %d", ErrAuth, apierr.StatusCode)
		case apierr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: status %d", ErrRateLimited, apierr.StatusCode)
		default:
			return fmt.Errorf("%w: status %d", ErrUpstream, apierr.StatusCode)
		}
	}
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}

// parseTagReply splits a comma separated reply and keeps tags that survive
// normalization. Multi word fragments are joined with hyphens first.
func parseTagReply(reply string) []string {
	parts := strings.Split(reply, ",")
	raw := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		part = strings.Trim(part, ".")
		part = strings.Join(strings.Fields(part), "-")
		if part != "" {
			raw = append(raw, part)
		}
	}
	return catalog.NormalizeTags(raw)
}
