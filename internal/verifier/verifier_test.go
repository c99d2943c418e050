package verifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-sentiment-predictor/internal/ledger"
	"stock-sentiment-predictor/internal/market"
	"stock-sentiment-predictor/internal/predlog"
	"stock-sentiment-predictor/internal/scoring"
	"stock-sentiment-predictor/internal/types"
)

var testTickers = map[string]string{
	"reliance": "RELIANCE.NS",
	"apple":    "AAPL",
	"tesla":    "TSLA",
}

type fixture struct {
	log     *predlog.Store
	ledger  *ledger.Store
	fetcher *market.StaticFetcher
	v       *Verifier
}

// Clock is fixed at 2024-06-12 10:00 UTC.
func newFixture(t *testing.T, policy string) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		log:     predlog.NewStore(filepath.Join(dir, "all_predictions.json")),
		ledger:  ledger.NewStore(filepath.Join(dir, "reliability_score.json")),
		fetcher: market.NewStaticFetcher(),
	}
	f.fetcher.AddClose("AAPL", "2024-06-07", 100)
	f.fetcher.AddClose("AAPL", "2024-06-10", 103)
	f.fetcher.AddClose("TSLA", "2024-06-07", 200)
	f.fetcher.AddClose("TSLA", "2024-06-10", 190)
	f.fetcher.AddClose("RELIANCE.NS", "2024-06-07", 2900)

	f.v = New(Config{
		Tickers:         testTickers,
		Scoring:         scoring.DefaultConfig(),
		TransientPolicy: policy,
		FetchTimeout:    time.Second,
		Location:        time.UTC,
	}, f.fetcher, f.log, f.ledger, WithClock(func() time.Time {
		return time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)
	}))
	return f
}

func (f *fixture) add(t *testing.T, entity string, dir types.Direction, dateFor string) {
	t.Helper()
	_, err := f.log.Append(context.Background(), types.Prediction{Entity: entity, Direction: dir, DateFor: dateFor})
	require.NoError(t, err)
}

func TestRunChecksSettledPredictions(t *testing.T) {
	f := newFixture(t, TransientRetry)
	f.add(t, "apple", types.DirectionRise, "2024-06-10")
	f.add(t, "tesla", types.DirectionFall, "2024-06-10")

	sum, err := f.v.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Checked)
	assert.True(t, sum.Updated)

	records, err := f.log.Load()
	require.NoError(t, err)
	apple := records[0]
	assert.Equal(t, types.StatusChecked, apple.Status)
	assert.Equal(t, "2024-06-10", apple.DateChecked)
	assert.Equal(t, "2024-06-07", apple.BaseDate)
	assert.InDelta(t, 3.0, *apple.ActualMovementPercent, 1e-9)
	assert.InDelta(t, 0.8, *apple.Score, 1e-9)
	assert.True(t, *apple.Correct)

	tesla := records[1]
	assert.InDelta(t, -5.0, *tesla.ActualMovementPercent, 1e-9)
	assert.InDelta(t, 1.0, *tesla.Score, 1e-9)

	l, err := f.ledger.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, l.Global.TotalPredictions)
	assert.InDelta(t, 1.8, l.Global.TotalScorePoints, 1e-9)
	assert.Equal(t, 1, l.Company("apple").TotalPredictions)
	assert.NoError(t, l.Check())
	assert.Equal(t, l.Global, sum.Global)
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t, TransientRetry)
	f.add(t, "apple", types.DirectionRise, "2024-06-10")
	f.add(t, "reliance", types.DirectionNeutral, "2024-06-10") // no check bar yet

	_, err := f.v.Run(context.Background())
	require.NoError(t, err)
	logBefore, _ := os.ReadFile(f.log.Path())
	ledgerBefore, _ := os.ReadFile(f.ledger.Path())

	sum, err := f.v.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Checked)
	assert.Equal(t, 1, sum.Skipped)
	assert.False(t, sum.Updated)

	logAfter, _ := os.ReadFile(f.log.Path())
	ledgerAfter, _ := os.ReadFile(f.ledger.Path())
	assert.Equal(t, string(logBefore), string(logAfter))
	assert.Equal(t, string(ledgerBefore), string(ledgerAfter))
}

func TestRunLeavesTodayAndFuturePending(t *testing.T) {
	f := newFixture(t, TransientRetry)
	f.add(t, "apple", types.DirectionRise, "2024-06-12")
	f.add(t, "apple", types.DirectionRise, "2024-06-20")

	sum, err := f.v.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Skipped)

	records, _ := f.log.Load()
	for _, r := range records {
		assert.Equal(t, types.StatusPending, r.Status)
	}
}

func TestRunMarksBadRecordsWithoutStopping(t *testing.T) {
	f := newFixture(t, TransientRetry)
	f.add(t, "nvidia", types.DirectionRise, "2024-06-10")
	f.add(t, "apple", types.DirectionRise, "10/06/2024")
	f.add(t, "apple", types.Direction("moon"), "2024-06-10")
	f.add(t, "", types.DirectionRise, "2024-06-10")
	f.add(t, "apple", types.DirectionRise, "2024-06-10")

	sum, err := f.v.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Errored)
	assert.Equal(t, 1, sum.Checked)
	assert.Len(t, sum.Messages(types.OutcomeErrored), 4)

	records, _ := f.log.Load()
	assert.Equal(t, types.StatusError, records[0].Status)
	assert.Contains(t, records[0].ErrorMessage, "not mapped")
	assert.Contains(t, records[1].ErrorMessage, "invalid date_for")
	assert.Equal(t, types.StatusChecked, records[4].Status)

	l, _ := f.ledger.Load(context.Background())
	assert.Equal(t, 1, l.Global.TotalPredictions)
}

func TestTransientFetchPolicy(t *testing.T) {
	timeout := &market.FetchError{Ticker: "AAPL", Err: errors.New("connection reset")}

	f := newFixture(t, TransientRetry)
	f.fetcher.FailWith("AAPL", timeout)
	f.add(t, "apple", types.DirectionRise, "2024-06-10")
	sum, err := f.v.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Deferred)
	records, _ := f.log.Load()
	assert.Equal(t, types.StatusPending, records[0].Status)

	f = newFixture(t, TransientError)
	f.fetcher.FailWith("AAPL", timeout)
	f.add(t, "apple", types.DirectionRise, "2024-06-10")
	sum, err = f.v.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Errored)
	records, _ = f.log.Load()
	assert.Equal(t, types.StatusError, records[0].Status)
}

func TestPermanentFetchErrorMarksError(t *testing.T) {
	f := newFixture(t, TransientRetry)
	f.add(t, "apple", types.DirectionRise, "2024-06-07") // no AAPL bar before this date

	sum, err := f.v.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Errored)
}

func TestCorruptLedgerAbortsWithoutWriting(t *testing.T) {
	f := newFixture(t, TransientRetry)
	f.add(t, "apple", types.DirectionRise, "2024-06-10")
	require.NoError(t, os.WriteFile(f.ledger.Path(), []byte("{broken"), 0o644))
	logBefore, _ := os.ReadFile(f.log.Path())

	_, err := f.v.Run(context.Background())
	assert.ErrorIs(t, err, ledger.ErrCorrupt)

	logAfter, _ := os.ReadFile(f.log.Path())
	assert.Equal(t, string(logBefore), string(logAfter))
}

func TestLegacyLedgerIsMigratedAndExtended(t *testing.T) {
	f := newFixture(t, TransientRetry)
	require.NoError(t, os.WriteFile(f.ledger.Path(), []byte(`{"total_predictions": 3, "total_score_points": 1.5}`), 0o644))
	f.add(t, "apple", types.DirectionRise, "2024-06-10")

	sum, err := f.v.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Global.TotalPredictions)
	assert.InDelta(t, 2.3, sum.Global.TotalScorePoints, 1e-9)

	l, _ := f.ledger.Load(context.Background())
	assert.Equal(t, types.Stats{TotalPredictions: 1, TotalScorePoints: 0.8}, l.Company("apple"))
}

func TestTickerLookupIsCaseInsensitive(t *testing.T) {
	f := newFixture(t, TransientRetry)
	ticker, ok := f.v.Ticker("  Apple ")
	assert.True(t, ok)
	assert.Equal(t, "AAPL", ticker)
	_, ok = f.v.Ticker("nvidia")
	assert.False(t, ok)
}

// cancelAfterFetch ends the run's context once the first movement is served.
type cancelAfterFetch struct {
	inner  *market.StaticFetcher
	cancel context.CancelFunc
}

func (c *cancelAfterFetch) FetchMovement(ctx context.Context, ticker string, target time.Time) (types.Movement, error) {
	defer c.cancel()
	return c.inner.FetchMovement(ctx, ticker, target)
}

func TestCancelledRunLeavesRecordsPending(t *testing.T) {
	f := newFixture(t, TransientError)
	f.add(t, "apple", types.DirectionRise, "2024-06-10")
	f.add(t, "tesla", types.DirectionFall, "2024-06-10")
	logBefore, _ := os.ReadFile(f.log.Path())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := f.v.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, sum.Errored)
	assert.False(t, sum.Updated)

	logAfter, _ := os.ReadFile(f.log.Path())
	assert.Equal(t, string(logBefore), string(logAfter))
	_, statErr := os.Stat(f.ledger.Path())
	assert.True(t, os.IsNotExist(statErr), "ledger must not be written")
}

func TestRunCancelledMidwayCommitsResolvedRecords(t *testing.T) {
	f := newFixture(t, TransientError)
	f.add(t, "apple", types.DirectionRise, "2024-06-10")
	f.add(t, "tesla", types.DirectionFall, "2024-06-10")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.v.fetcher = &cancelAfterFetch{inner: f.fetcher, cancel: cancel}

	sum, err := f.v.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sum.Checked)
	assert.Equal(t, 0, sum.Errored)

	records, err := f.log.Load()
	require.NoError(t, err)
	assert.Equal(t, types.StatusChecked, records[0].Status)
	assert.Equal(t, types.StatusPending, records[1].Status)
	assert.Empty(t, records[1].ErrorMessage)

	l, err := f.ledger.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, l.Global.TotalPredictions)
}

func TestFetchFailureCausedByCancellationIsNotAnError(t *testing.T) {
	f := newFixture(t, TransientError)
	f.add(t, "apple", types.DirectionRise, "2024-06-10")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	v := New(Config{
		Tickers:         testTickers,
		TransientPolicy: TransientError,
		Location:        time.UTC,
	}, fetchFunc(func(ctx context.Context, ticker string, _ time.Time) (types.Movement, error) {
		cancel()
		return types.Movement{}, &market.FetchError{Ticker: ticker, Err: ctx.Err()}
	}), f.log, f.ledger, WithClock(func() time.Time {
		return time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)
	}))

	sum, err := v.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sum.Deferred)
	assert.Equal(t, 0, sum.Errored)

	records, _ := f.log.Load()
	assert.Equal(t, types.StatusPending, records[0].Status)
}

type fetchFunc func(ctx context.Context, ticker string, target time.Time) (types.Movement, error)

func (fn fetchFunc) FetchMovement(ctx context.Context, ticker string, target time.Time) (types.Movement, error) {
	return fn(ctx, ticker, target)
}
