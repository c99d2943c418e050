package noop

import (
	"context"

	"stock-sentiment-predictor/internal/interfaces"
	"stock-sentiment-predictor/internal/logger"
)

// Completer is the fallback when no LLM is configured. It answers with an
// empty string, so venue suggestion falls back to the configured defaults.
type Completer struct{}

var _ interfaces.Completer = Completer{}

func NewCompleter() Completer { return Completer{} }

func (Completer) Complete(ctx context.Context, system, prompt string) (string, error) {
	logger.Debug(ctx, "Noop completer called - returning empty answer")
	return "", nil
}
