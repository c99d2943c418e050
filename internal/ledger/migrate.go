package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"stock-sentiment-predictor/internal/types"
)

// Decode parses any known ledger schema and returns it in the current one,
// along with the version it was read as.
func Decode(raw []byte) (*Ledger, int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return New(), CurrentVersion, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc == nil {
		return nil, 0, fmt.Errorf("%w: not a JSON object", ErrCorrupt)
	}
	return Migrate(doc)
}

// DetectVersion guesses the schema of a decoded ledger document.
func DetectVersion(doc map[string]any) int {
	if v, ok := number(doc, "schema_version"); ok {
		return int(v)
	}
	if _, ok := doc["global"]; ok {
		return 2
	}
	if _, ok := doc["total_predictions"]; ok {
		return 1
	}
	if _, ok := doc["total_score_points"]; ok {
		return 1
	}
	if _, ok := doc["correct_predictions"]; ok {
		return 0
	}
	if _, ok := doc["incorrect_predictions"]; ok {
		return 0
	}
	return CurrentVersion
}

// Migrate is the pure step from any older document shape to the current
// Ledger. It never touches storage.
func Migrate(doc map[string]any) (*Ledger, int, error) {
	from := DetectVersion(doc)
	l := New()

	switch from {
	case 0, 1:
		l.Global = flatStats(doc)
	case 2:
		g, err := statsFrom(doc["global"])
		if err != nil {
			return nil, from, fmt.Errorf("%w: global: %v", ErrCorrupt, err)
		}
		l.Global = g
		if comps, ok := doc["companies"].(map[string]any); ok {
			for name, v := range comps {
				s, err := statsFrom(v)
				if err != nil {
					return nil, from, fmt.Errorf("%w: companies.%s: %v", ErrCorrupt, name, err)
				}
				// Keys differing only in case are one entity.
				key := normalizeEntity(name)
				prev := l.Companies[key]
				l.Companies[key] = types.Stats{
					TotalPredictions: prev.TotalPredictions + s.TotalPredictions,
					TotalScorePoints: prev.TotalScorePoints + s.TotalScorePoints,
				}
			}
		}
	default:
		return nil, from, fmt.Errorf("%w: unsupported schema_version %d", ErrCorrupt, from)
	}
	return l, from, nil
}

// flatStats folds a v0/v1 document into one bucket. v0 counted whole correct
// calls, so each counts as one score point.
func flatStats(doc map[string]any) types.Stats {
	correct, _ := number(doc, "correct_predictions")
	incorrect, _ := number(doc, "incorrect_predictions")

	total, ok := number(doc, "total_predictions")
	if !ok {
		total = correct + incorrect
	}
	points, ok := number(doc, "total_score_points")
	if !ok {
		points = correct
	}
	return types.Stats{TotalPredictions: int(math.Round(total)), TotalScorePoints: points}
}

func statsFrom(v any) (types.Stats, error) {
	if v == nil {
		return types.Stats{}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return types.Stats{}, fmt.Errorf("expected object, got %T", v)
	}
	total, _ := number(m, "total_predictions")
	points, _ := number(m, "total_score_points")
	return types.Stats{TotalPredictions: int(math.Round(total)), TotalScorePoints: points}, nil
}

func number(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
