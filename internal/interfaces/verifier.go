package interfaces

import (
	"context"
	"time"

	"stock-sentiment-predictor/internal/types"
)

type Verifier interface {
	Run(ctx context.Context) (*types.VerifySummary, error)
}

type Predictor interface {
	Run(ctx context.Context, company string, dateFor time.Time) (*types.PipelineResult, error)
}
