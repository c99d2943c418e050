// Package ledger keeps the cumulative reliability statistics, globally and
// per entity.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"stock-sentiment-predictor/internal/types"
)

// CurrentVersion is the schema written by Save.
//
//	0: {correct_predictions, incorrect_predictions}
//	1: {total_predictions, total_score_points}
//	2: {schema_version, global, companies}
const CurrentVersion = 2

var (
	ErrCorrupt         = errors.New("reliability ledger is unreadable")
	ErrScoreOutOfRange = errors.New("score outside [0,1]")
)

type Ledger struct {
	Version   int                    `json:"schema_version"`
	Global    types.Stats            `json:"global"`
	Companies map[string]types.Stats `json:"companies"`
}

func New() *Ledger {
	return &Ledger{
		Version:   CurrentVersion,
		Companies: make(map[string]types.Stats),
	}
}

func normalizeEntity(entity string) string {
	return strings.ToLower(strings.TrimSpace(entity))
}

// Record adds one scored prediction to the global and entity buckets.
func (l *Ledger) Record(entity string, score float64) error {
	if math.IsNaN(score) || score < 0 || score > 1 {
		return fmt.Errorf("%w: %v", ErrScoreOutOfRange, score)
	}
	key := normalizeEntity(entity)
	if key == "" {
		return errors.New("empty entity")
	}
	if l.Companies == nil {
		l.Companies = make(map[string]types.Stats)
	}

	l.Global.TotalPredictions++
	l.Global.TotalScorePoints += score

	c := l.Companies[key]
	c.TotalPredictions++
	c.TotalScorePoints += score
	l.Companies[key] = c
	return nil
}

func (l *Ledger) Company(entity string) types.Stats {
	return l.Companies[normalizeEntity(entity)]
}

// Entities returns the tracked entity names in sorted order.
func (l *Ledger) Entities() []string {
	out := make([]string, 0, len(l.Companies))
	for k := range l.Companies {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (l *Ledger) Clone() *Ledger {
	c := &Ledger{Version: l.Version, Global: l.Global, Companies: make(map[string]types.Stats, len(l.Companies))}
	for k, v := range l.Companies {
		c.Companies[k] = v
	}
	return c
}

// Check verifies points never exceed predictions in any bucket.
func (l *Ledger) Check() error {
	const eps = 1e-9
	if l.Global.TotalScorePoints > float64(l.Global.TotalPredictions)+eps {
		return fmt.Errorf("global: %.4f points for %d predictions", l.Global.TotalScorePoints, l.Global.TotalPredictions)
	}
	for k, v := range l.Companies {
		if v.TotalScorePoints > float64(v.TotalPredictions)+eps {
			return fmt.Errorf("%s: %.4f points for %d predictions", k, v.TotalScorePoints, v.TotalPredictions)
		}
	}
	return nil
}
