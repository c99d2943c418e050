package llmobs

import (
	"context"
	"time"

	"stock-sentiment-predictor/internal/interfaces"
	"stock-sentiment-predictor/internal/logger"
	"stock-sentiment-predictor/internal/trace"
)

// observableCompleter wraps a Completer with observability (logging & tracing)
type observableCompleter struct {
	completer interfaces.Completer
	provider  string
}

// Compile-time interface check
var _ interfaces.Completer = (*observableCompleter)(nil)

// Wrap wraps a completer with observability middleware
func Wrap(provider string, completer interfaces.Completer) interfaces.Completer {
	return &observableCompleter{
		completer: completer,
		provider:  provider,
	}
}

func (oc *observableCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "llm.Complete")
	defer span.End()

	// Use DebugSkip(1) to report the actual caller, not this middleware wrapper
	logger.DebugSkip(ctx, 1, "Requesting completion",
		"provider", oc.provider,
		"prompt_chars", len(prompt),
	)

	start := time.Now()
	out, err := oc.completer.Complete(ctx, system, prompt)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Completion failed", err,
			"provider", oc.provider,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	logger.DebugSkip(ctx, 1, "Completion received",
		"provider", oc.provider,
		"answer_chars", len(out),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}
