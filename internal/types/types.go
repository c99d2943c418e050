package types

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used in every persisted record.
const DateLayout = "2006-01-02"

type Label string

const (
	LabelPositive Label = "positive"
	LabelNegative Label = "negative"
	LabelNeutral  Label = "neutral"
	LabelOther    Label = "other"
	LabelFailed   Label = "failed"
)

type Direction string

const (
	DirectionRise    Direction = "rise"
	DirectionFall    Direction = "fall"
	DirectionNeutral Direction = "neutral"
)

// ParseDirection accepts any casing and surrounding whitespace.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case DirectionRise, DirectionFall, DirectionNeutral:
		return d, nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}

type Status string

const (
	StatusPending Status = "pending"
	StatusChecked Status = "checked"
	StatusError   Status = "error"
)

type ClassifiedText struct {
	Text       string  `json:"text"`
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
	Venue      string  `json:"venue,omitempty"`
	Error      string  `json:"error,omitempty"`
}

type SentimentTally struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
	Other    int `json:"other"`
	Failed   int `json:"failed"`
}

// Directional is the count used for prediction; other and failed are excluded.
func (t SentimentTally) Directional() int {
	return t.Positive + t.Negative + t.Neutral
}

func (t SentimentTally) Total() int {
	return t.Directional() + t.Other + t.Failed
}

// Candle is one daily bar. Only Close is used for movement.
type Candle struct {
	Date                        time.Time
	Open, High, Low, Close, Vol float64
}

type Movement struct {
	PercentChange float64   `json:"percent_change"`
	BaseDate      time.Time `json:"base_date"`
	CheckDate     time.Time `json:"check_date"`
	BasePrice     float64   `json:"base_price"`
	CheckPrice    float64   `json:"check_price"`
}

// Stats is one ledger bucket, global or per entity.
type Stats struct {
	TotalPredictions int     `json:"total_predictions"`
	TotalScorePoints float64 `json:"total_score_points"`
}

// Reliability is points per prediction, 0 when nothing has been scored.
func (s Stats) Reliability() float64 {
	if s.TotalPredictions == 0 {
		return 0
	}
	return s.TotalScorePoints / float64(s.TotalPredictions)
}
