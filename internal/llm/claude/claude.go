package claude

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"stock-sentiment-predictor/internal/interfaces"
	"stock-sentiment-predictor/internal/trace"
)

const defaultModel = "claude-3-5-haiku-latest"

type Config struct {
	APIKey string
	// Proxy or gateway in front of the public API.
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
}

// Completer implements interfaces.Completer on the Anthropic Messages API.
type Completer struct {
	client anthropic.Client
	cfg    Config
}

var _ interfaces.Completer = (*Completer)(nil)

func NewCompleter(cfg Config) (*Completer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("CLAUDE_API_KEY missing")
	}
	if cfg.Model == "" || strings.HasPrefix(cfg.Model, "gpt-") {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Completer{client: anthropic.NewClient(opts...), cfg: cfg}, nil
}

func (c *Completer) Complete(ctx context.Context, system, prompt string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "claude-api-call")
	defer span.End()

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.cfg.Model),
		MaxTokens:   int64(c.cfg.MaxTokens),
		Temperature: anthropic.Float(float64(c.cfg.Temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
