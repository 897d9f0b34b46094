// Package genai provides GenAI-enhanced operations using the OpenAI API.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default generation parameters. Responses are short follow-up questions, so
// the token budget is kept small for latency.
const (
	DefaultModel               = openai.ChatModelGPT4oMini
	DefaultTemperature         = 0.7
	DefaultMaxCompletionTokens = 100
	DefaultTimeout             = 30 * time.Second
)

// ErrNoChoicesReturned indicates the API returned an empty choice list.
var ErrNoChoicesReturned = errors.New("no choices returned")

// chatService defines the minimal interface for chat completions, allowing
// tests to substitute a mock for the OpenAI client.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// openaiChatService adapts the OpenAI SDK's completion service to chatService.
type openaiChatService struct {
	svc openai.ChatCompletionService
}

func (s openaiChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// ClientInterface defines the operations the rest of the application uses.
type ClientInterface interface {
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
}

// Client wraps the OpenAI ChatCompletion service for generating questions.
type Client struct {
	chat                chatService
	model               string
	temperature         float64
	maxCompletionTokens int64
	timeout             time.Duration
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey              string
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	Timeout             time.Duration
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding $OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat completion model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxCompletionTokens bounds the response length.
func WithMaxCompletionTokens(n int64) Option {
	return func(o *Opts) { o.MaxCompletionTokens = n }
}

// WithTimeout bounds each completion request.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// NewClient initializes a GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable when not set via options.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:               DefaultModel,
		Temperature:         DefaultTemperature,
		MaxCompletionTokens: DefaultMaxCompletionTokens,
		Timeout:             DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	cli := openai.NewClient(option.WithAPIKey(apiKey))
	slog.Debug("GenAI client initialized", "model", cfg.Model, "timeout", cfg.Timeout)
	return &Client{
		chat:                openaiChatService{svc: cli.Chat.Completions},
		model:               cfg.Model,
		temperature:         cfg.Temperature,
		maxCompletionTokens: cfg.MaxCompletionTokens,
		timeout:             cfg.Timeout,
	}, nil
}

// GenerateWithMessages generates a completion for the given message history.
// Each request carries the client's bounded timeout; callers decide retry
// policy on error.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            messages,
		Temperature:         openai.Float(c.temperature),
		MaxCompletionTokens: openai.Int(c.maxCompletionTokens),
	}
	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Error("GenAI completion failed", "error", err, "model", c.model)
		return "", err
	}
	if len(resp.Choices) == 0 {
		slog.Warn("GenAI completion returned no choices", "model", c.model)
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}
