package interfaces

import (
	"context"

	"stock-sentiment-predictor/internal/types"
)

// Classifier labels each text. Per-item failures come back as LabelFailed
// entries; an error is returned only when the caller's context ends.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, texts []string) ([]types.ClassifiedText, error)
}
