// Package scoring grades a directional call against the realised move.
package scoring

import (
	"math"

	"stock-sentiment-predictor/internal/types"
)

const (
	DefaultMaxThreshold      = 5.0
	DefaultCorrectnessMargin = 0.5
)

// Config holds the two grading knobs. MaxThreshold is the percent move that
// earns a full (or zero) score; CorrectnessMargin is the band treated as flat.
type Config struct {
	MaxThreshold      float64 `yaml:"max_threshold_percent" validate:"gt=0"`
	CorrectnessMargin float64 `yaml:"correctness_margin_percent" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		MaxThreshold:      DefaultMaxThreshold,
		CorrectnessMargin: DefaultCorrectnessMargin,
	}
}

// Score maps a call and a percent move onto [0,1]. Unknown directions score 0.
func (c Config) Score(d types.Direction, pct float64) float64 {
	m := c.MaxThreshold
	if m <= 0 {
		m = DefaultMaxThreshold
	}

	switch d {
	case types.DirectionRise:
		return clamp((pct + m) / (2 * m))
	case types.DirectionFall:
		return clamp(1 - (pct+m)/(2*m))
	case types.DirectionNeutral:
		return clamp(1 - math.Abs(pct)/m)
	default:
		return 0
	}
}

// IsCorrect is the binary verdict, independent from Score.
func (c Config) IsCorrect(d types.Direction, pct float64) bool {
	margin := c.CorrectnessMargin
	switch d {
	case types.DirectionRise:
		return pct > margin
	case types.DirectionFall:
		return pct < -margin
	case types.DirectionNeutral:
		return math.Abs(pct) <= margin
	default:
		return false
	}
}

func Score(d types.Direction, pct float64) float64 {
	return DefaultConfig().Score(d, pct)
}

func IsCorrect(d types.Direction, pct float64) bool {
	return DefaultConfig().IsCorrect(d, pct)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
