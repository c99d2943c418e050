package marketobs

import (
	"context"
	"errors"
	"time"

	"stock-sentiment-predictor/internal/interfaces"
	"stock-sentiment-predictor/internal/logger"
	"stock-sentiment-predictor/internal/market"
	"stock-sentiment-predictor/internal/trace"
	"stock-sentiment-predictor/internal/types"
)

type observableFetcher struct {
	fetcher interfaces.MovementFetcher
	name    string
}

var _ interfaces.MovementFetcher = (*observableFetcher)(nil)

// Wrap adds a span and structured logs around every movement lookup.
func Wrap(name string, fetcher interfaces.MovementFetcher) interfaces.MovementFetcher {
	return &observableFetcher{fetcher: fetcher, name: name}
}

func (of *observableFetcher) FetchMovement(ctx context.Context, ticker string, target time.Time) (types.Movement, error) {
	ctx, span := trace.StartSpan(ctx, "market.FetchMovement")
	defer span.End()

	start := time.Now()
	mv, err := of.fetcher.FetchMovement(ctx, ticker, target)
	elapsed := time.Since(start).Milliseconds()

	switch {
	case err == nil:
		logger.DebugSkip(ctx, 1, "Movement fetched",
			"provider", of.name,
			"ticker", ticker,
			"target", target.Format(types.DateLayout),
			"base_date", mv.BaseDate.Format(types.DateLayout),
			"check_date", mv.CheckDate.Format(types.DateLayout),
			"percent_change", mv.PercentChange,
			"duration_ms", elapsed,
		)
	case errors.Is(err, market.ErrNotYetAvailable):
		logger.DebugSkip(ctx, 1, "Movement not yet available", "provider", of.name, "ticker", ticker)
	default:
		logger.ErrorWithErrSkip(ctx, 1, "Movement fetch failed", err,
			"provider", of.name,
			"ticker", ticker,
			"permanent", market.IsPermanent(err),
			"duration_ms", elapsed,
		)
	}
	return mv, err
}
