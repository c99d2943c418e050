package pipelineobs

import (
	"context"
	"time"

	"stock-sentiment-predictor/internal/interfaces"
	"stock-sentiment-predictor/internal/logger"
	"stock-sentiment-predictor/internal/types"
)

type observablePredictor struct {
	predictor interfaces.Predictor
}

var _ interfaces.Predictor = (*observablePredictor)(nil)

func Wrap(predictor interfaces.Predictor) interfaces.Predictor {
	return &observablePredictor{predictor: predictor}
}

func (op *observablePredictor) Run(ctx context.Context, company string, dateFor time.Time) (*types.PipelineResult, error) {
	timer := logger.StartOperation(ctx, "pipeline.Run", "company", company, "date_for", dateFor.Format(types.DateLayout))
	ctx = timer.GetContext()

	logger.InfoSkip(ctx, 1, "Prediction pipeline started", "company", company, "date_for", dateFor.Format(types.DateLayout))

	res, err := op.predictor.Run(ctx, company, dateFor)
	if err != nil {
		timer.EndWithError(err)
		logger.ErrorWithErrSkip(ctx, 1, "Prediction pipeline failed", err, "company", company)
		return nil, err
	}

	timer.End("texts", res.Texts, "direction", string(res.Direction))
	logger.InfoSkip(ctx, 1, "Prediction pipeline finished",
		"company", company,
		"venues", len(res.Venues),
		"posts", res.Posts,
		"texts", res.Texts,
		"direction", res.Direction,
	)
	return res, nil
}
