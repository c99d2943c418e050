package sentiment

import (
	"stock-sentiment-predictor/internal/types"
)

// Policy turns a tally into a direction. Rise needs a stronger signal than
// fall because the collected text skews negative.
type Policy struct {
	RiseThreshold float64 `yaml:"rise_threshold"`
	FallThreshold float64 `yaml:"fall_threshold"`
	// A tentative fall is downgraded to neutral unless negative-positive reaches this.
	MinFallMargin int `yaml:"min_fall_margin"`
}

func DefaultPolicy() Policy {
	return Policy{
		RiseThreshold: 0.15,
		FallThreshold: -0.05,
		MinFallMargin: 2,
	}
}

// Score returns (positive-negative)/directional and false when there is nothing to score.
func (p Policy) Score(t types.SentimentTally) (float64, bool) {
	total := t.Directional()
	if total == 0 {
		return 0, false
	}
	return float64(t.Positive-t.Negative) / float64(total), true
}

func (p Policy) Predict(t types.SentimentTally) types.Direction {
	score, ok := p.Score(t)
	if !ok {
		return types.DirectionNeutral
	}

	switch {
	case score > p.RiseThreshold:
		return types.DirectionRise
	case score < p.FallThreshold:
		if t.Negative-t.Positive < p.MinFallMargin {
			return types.DirectionNeutral
		}
		return types.DirectionFall
	default:
		return types.DirectionNeutral
	}
}
