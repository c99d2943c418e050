// Package market resolves a target date into a base/check close pair and the
// percent move between them.
package market

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"stock-sentiment-predictor/internal/types"
)

// ErrNotYetAvailable means the check day has not traded yet. Retry later.
var ErrNotYetAvailable = errors.New("market data not yet available")

// FetchError is a failed lookup. Permanent errors will not succeed on retry
// (unknown symbol, no history before the target date).
type FetchError struct {
	Ticker    string
	Permanent bool
	Err       error
}

func (e *FetchError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("%s fetch error for %s: %v", kind, e.Ticker, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func permanent(ticker string, err error) error {
	return &FetchError{Ticker: ticker, Permanent: true, Err: err}
}

func transient(ticker string, err error) error {
	return &FetchError{Ticker: ticker, Err: err}
}

// IsPermanent reports whether err is a FetchError that should not be retried.
func IsPermanent(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Permanent
}

var errNoBaseData = errors.New("no trading data before target date")

// ComputeMovement picks the last close strictly before target and the first
// close on or after it. Dates are compared as calendar days in each bar's own
// location; callers pass bars already converted to the exchange timezone.
func ComputeMovement(ticker string, bars []types.Candle, target time.Time) (types.Movement, error) {
	sorted := make([]types.Candle, 0, len(bars))
	for _, b := range bars {
		if b.Close > 0 {
			sorted = append(sorted, b)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	targetDay := target.Format(types.DateLayout)
	var base, check *types.Candle
	for i := range sorted {
		day := sorted[i].Date.Format(types.DateLayout)
		if day < targetDay {
			base = &sorted[i]
			continue
		}
		check = &sorted[i]
		break
	}

	if base == nil {
		return types.Movement{}, permanent(ticker, errNoBaseData)
	}
	if check == nil {
		return types.Movement{}, ErrNotYetAvailable
	}
	if base.Date.Format(types.DateLayout) == check.Date.Format(types.DateLayout) {
		return types.Movement{}, ErrNotYetAvailable
	}

	return types.Movement{
		PercentChange: (check.Close - base.Close) / base.Close * 100,
		BaseDate:      base.Date,
		CheckDate:     check.Date,
		BasePrice:     base.Close,
		CheckPrice:    check.Close,
	}, nil
}

// SettledBars drops bars dated on or after now's calendar day in the bar's
// own location. A bar for the current session carries a live price, not a close.
func SettledBars(bars []types.Candle, now time.Time) []types.Candle {
	settled := make([]types.Candle, 0, len(bars))
	for _, b := range bars {
		if b.Date.Format(types.DateLayout) < now.In(b.Date.Location()).Format(types.DateLayout) {
			settled = append(settled, b)
		}
	}
	return settled
}
