package interfaces

import (
	"context"

	"stock-sentiment-predictor/internal/types"
)

type Collector interface {
	Collect(ctx context.Context, req types.CollectRequest) ([]types.Post, error)
}

// VenueSuggester proposes discussion venues (subreddit names) for a company.
type VenueSuggester interface {
	SuggestVenues(ctx context.Context, company string) ([]string, error)
}

// RelevanceFilter keeps only titles that are about the company.
type RelevanceFilter interface {
	FilterRelevant(ctx context.Context, company string, titles []string) ([]bool, error)
}
