package interfaces

import (
	"context"
	"time"

	"stock-sentiment-predictor/internal/types"
)

// MovementFetcher returns the move from the last close before target to the
// first close on or after it. Errors are market.ErrNotYetAvailable (retry
// later) or *market.FetchError (permanent or transient).
type MovementFetcher interface {
	FetchMovement(ctx context.Context, ticker string, target time.Time) (types.Movement, error)
}
