package types

import (
	"encoding/json"
	"time"
)

// Prediction is one entry of the prediction log. Dates stay strings so that
// malformed records survive a load/save cycle and can be marked as errors.
type Prediction struct {
	ID        string          `json:"id,omitempty"`
	Entity    string          `json:"entity"`
	Direction Direction       `json:"direction"`
	DateFor   string          `json:"date_for"`
	Status    Status          `json:"status"`
	Method    string          `json:"method,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
	Tally     *SentimentTally `json:"tally,omitempty"`

	DateChecked           string   `json:"date_checked,omitempty"`
	BaseDate              string   `json:"base_date,omitempty"`
	ActualMovementPercent *float64 `json:"actual_movement_percent,omitempty"`
	Score                 *float64 `json:"score,omitempty"`
	Correct               *bool    `json:"correct,omitempty"`
	ErrorMessage          string   `json:"error_message,omitempty"`
}

// UnmarshalJSON also reads records written by the older Flask/CLI tooling,
// which used company/prediction/date_saved/prediction_score.
func (p *Prediction) UnmarshalJSON(b []byte) error {
	type plain Prediction
	var aux struct {
		plain
		Company         string   `json:"company"`
		Prediction      string   `json:"prediction"`
		DateSaved       string   `json:"date_saved"`
		PredictionScore *float64 `json:"prediction_score"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*p = Prediction(aux.plain)
	if p.Entity == "" {
		p.Entity = aux.Company
	}
	if p.Direction == "" {
		p.Direction = Direction(aux.Prediction)
	}
	if p.DateFor == "" {
		p.DateFor = aux.DateSaved
	}
	if p.Score == nil {
		p.Score = aux.PredictionScore
	}
	return nil
}

// TargetDate parses DateFor as a calendar date in loc.
func (p Prediction) TargetDate(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, p.DateFor, loc)
}

func (p Prediction) Pending() bool {
	return p.Status == StatusPending
}
