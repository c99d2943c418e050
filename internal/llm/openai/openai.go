package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"stock-sentiment-predictor/internal/interfaces"
	"stock-sentiment-predictor/internal/trace"
)

// Config for any OpenAI-compatible chat endpoint. BaseURL can point at the
// Hugging Face router or a local server.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// chatClient is the slice of *openai.Client used here.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Completer struct {
	client chatClient
	cfg    Config
}

var _ interfaces.Completer = (*Completer)(nil)

func NewCompleter(cfg Config) (*Completer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY missing")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Completer{client: openai.NewClientWithConfig(oc), cfg: cfg}, nil
}

func (c *Completer) Complete(ctx context.Context, system, prompt string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "openai-api-call")
	defer span.End()

	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
