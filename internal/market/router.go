package market

import (
	"context"
	"strings"
	"time"

	"stock-sentiment-predictor/internal/interfaces"
	"stock-sentiment-predictor/internal/types"
)

// Router sends Indian listings (.NS/.BO) to one fetcher and everything else
// to the fallback.
type Router struct {
	india    interfaces.MovementFetcher
	fallback interfaces.MovementFetcher
}

var _ interfaces.MovementFetcher = (*Router)(nil)

func NewRouter(india, fallback interfaces.MovementFetcher) *Router {
	return &Router{india: india, fallback: fallback}
}

func (r *Router) FetchMovement(ctx context.Context, ticker string, target time.Time) (types.Movement, error) {
	t := strings.ToUpper(ticker)
	if r.india != nil && (strings.HasSuffix(t, ".NS") || strings.HasSuffix(t, ".BO")) {
		return r.india.FetchMovement(ctx, ticker, target)
	}
	return r.fallback.FetchMovement(ctx, ticker, target)
}
