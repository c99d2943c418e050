package sentiment

import (
	"strings"

	"stock-sentiment-predictor/internal/types"
)

var labelAliases = map[string]types.Label{
	"positive": types.LabelPositive,
	"pos":      types.LabelPositive,
	"bullish":  types.LabelPositive,
	"negative": types.LabelNegative,
	"neg":      types.LabelNegative,
	"bearish":  types.LabelNegative,
	"neutral":  types.LabelNeutral,
	"neu":      types.LabelNeutral,
	"failed":   types.LabelFailed,
}

// NormalizeLabel maps a raw classifier label onto the canonical set.
// Anything unrecognised becomes LabelOther.
func NormalizeLabel(raw string) types.Label {
	if l, ok := labelAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return l
	}
	return types.LabelOther
}

// Tally counts labels over a batch. The sum of all fields always equals len(results).
func Tally(results []types.ClassifiedText) types.SentimentTally {
	var t types.SentimentTally
	for _, r := range results {
		switch NormalizeLabel(string(r.Label)) {
		case types.LabelPositive:
			t.Positive++
		case types.LabelNegative:
			t.Negative++
		case types.LabelNeutral:
			t.Neutral++
		case types.LabelFailed:
			t.Failed++
		default:
			t.Other++
		}
	}
	return t
}
