package verifierobs

import (
	"context"

	"stock-sentiment-predictor/internal/interfaces"
	"stock-sentiment-predictor/internal/logger"
	"stock-sentiment-predictor/internal/types"
)

// observableVerifier wraps a Verifier with observability (logging & tracing)
type observableVerifier struct {
	verifier interfaces.Verifier
}

// Compile-time interface check
var _ interfaces.Verifier = (*observableVerifier)(nil)

// Wrap wraps a verifier with observability middleware
func Wrap(verifier interfaces.Verifier) interfaces.Verifier {
	return &observableVerifier{verifier: verifier}
}

func (ov *observableVerifier) Run(ctx context.Context) (*types.VerifySummary, error) {
	op := logger.StartOperation(ctx, "verifier.Run")
	ctx = op.GetContext()

	logger.InfoSkip(ctx, 1, "Verification cycle started")

	summary, err := ov.verifier.Run(ctx)
	switch {
	case err != nil && summary != nil:
		// Cancelled mid-run: resolved records were committed, the rest wait.
		op.EndWithError(err)
		logger.WarnSkip(ctx, 1, "Verification cycle interrupted",
			"error", err,
			"checked", summary.Checked,
			"errored", summary.Errored,
		)
		return summary, err
	case err != nil:
		op.EndWithError(err)
		logger.ErrorWithErrSkip(ctx, 1, "Verification cycle aborted", err)
		return nil, err
	}

	op.End("checked", summary.Checked, "errored", summary.Errored)
	logger.InfoSkip(ctx, 1, "Verification cycle finished",
		"checked", summary.Checked,
		"skipped", summary.Skipped,
		"deferred", summary.Deferred,
		"errored", summary.Errored,
		"total_predictions", summary.Global.TotalPredictions,
		"reliability", summary.Global.Reliability(),
	)
	return summary, nil
}
