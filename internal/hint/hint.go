// Package hint asks an OpenAI-compatible model to explain exam questions
// during result review.
package hint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/quizmaster/internal/model"
)

// ErrNotConfigured is returned when no API key was given.
var ErrNotConfigured = errors.New("AI explanations are not configured")

// ErrNotAllowed is returned for exams that do not allow explanations.
var ErrNotAllowed = errors.New("exam does not allow explanations")

// DefaultBackoff is the wait before each retry of a failed request.
var DefaultBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api      *openai.Client
	model    string
	language string
	backoff  []time.Duration
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLanguage sets the reply language by tag ("en", "vi").
func WithLanguage(tag string) Option {
	return func(c *Client) { c.language = LanguageName(tag) }
}

// WithBackoff replaces the retry schedule.
func WithBackoff(d []time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client. With an empty apiKey every call returns
// ErrNotConfigured.
func New(baseURL, apiKey, modelName string, opts ...Option) *Client {
	c := &Client{
		model:   modelName,
		backoff: DefaultBackoff,
		logger:  slog.Default(),
	}
	if apiKey != "" {
		config := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			config.BaseURL = baseURL
		}
		c.api = openai.NewClientWithConfig(config)
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Configured reports whether the client has an API key.
func (c *Client) Configured() bool { return c.api != nil }

// Explain returns an explanation of question q for a student who gave
// answer a. Failed requests are retried following the backoff schedule.
func (c *Client) Explain(ctx context.Context, q model.Question, a model.Answer) (string, error) {
	if c.api == nil {
		return "", ErrNotConfigured
	}
	system, err := SystemPrompt(c.language)
	if err != nil {
		return "", err
	}
	prompt, err := BuildPrompt(q, a)
	if err != nil {
		return "", err
	}
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.3,
	}

	for i := 0; ; i++ {
		text, err := c.complete(ctx, req)
		if err == nil {
			return text, nil
		}
		if i >= len(c.backoff) || ctx.Err() != nil {
			return "", fmt.Errorf("explain question %s: %w", q.ID, err)
		}
		c.logger.Warn("explanation request failed, retrying",
			"question_id", q.ID, "attempt", i+1, "wait", c.backoff[i], "error", err)
		t := time.NewTimer(c.backoff[i])
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("LLM returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("LLM returned an empty explanation")
	}
	c.logger.Debug("LLM response", "chars", len(text))
	return text, nil
}

// ExplainResult explains one question of a submitted result. The exam
// must allow hints or review.
func (c *Client) ExplainResult(ctx context.Context, exam model.ExamConfig, r model.StudentResult, id model.QuestionID) (string, error) {
	if !exam.AllowHints && !exam.AllowReview {
		return "", ErrNotAllowed
	}
	q, ok := exam.Question(id)
	if !ok {
		return "", fmt.Errorf("exam %s has no question %s", exam.ID, id)
	}
	return c.Explain(ctx, q, r.Answers[id])
}
