package types

// Outcome of one pending record in one verification run.
type Outcome string

const (
	OutcomeChecked  Outcome = "checked"
	OutcomeSkipped  Outcome = "skipped"  // not due yet, or market data not settled
	OutcomeDeferred Outcome = "deferred" // transient fetch failure, retried next run
	OutcomeErrored  Outcome = "error"
)

type RecordResult struct {
	ID                    string    `json:"id,omitempty"`
	Entity                string    `json:"entity"`
	DateFor               string    `json:"date_for"`
	Direction             Direction `json:"direction,omitempty"`
	Outcome               Outcome   `json:"outcome"`
	Message               string    `json:"message"`
	ActualMovementPercent *float64  `json:"actual_movement_percent,omitempty"`
	Score                 *float64  `json:"score,omitempty"`
	Correct               *bool     `json:"correct,omitempty"`
}

// VerifySummary is what a verification run reports back to its trigger.
type VerifySummary struct {
	Checked  int            `json:"checked"`
	Skipped  int            `json:"skipped"`
	Deferred int            `json:"deferred"`
	Errored  int            `json:"errored"`
	Results  []RecordResult `json:"results"`
	Global   Stats          `json:"global"`
	Updated  bool           `json:"updated"`
}

func (s *VerifySummary) Add(r RecordResult) {
	switch r.Outcome {
	case OutcomeChecked:
		s.Checked++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeDeferred:
		s.Deferred++
	case OutcomeErrored:
		s.Errored++
	}
	s.Results = append(s.Results, r)
}

// Messages returns per-record lines for the given outcome.
func (s *VerifySummary) Messages(o Outcome) []string {
	var out []string
	for _, r := range s.Results {
		if r.Outcome == o {
			out = append(out, r.Entity+" ("+r.DateFor+"): "+r.Message)
		}
	}
	return out
}
