package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-sentiment-predictor/internal/types"
)

func day(s string) time.Time {
	d, err := time.Parse(types.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func bar(s string, c float64) types.Candle {
	return types.Candle{Date: day(s), Close: c}
}

func TestComputeMovementSuccess(t *testing.T) {
	bars := []types.Candle{
		bar("2024-06-05", 90),
		bar("2024-06-07", 100), // Friday, last close before Monday target
		bar("2024-06-10", 103),
		bar("2024-06-11", 110),
	}
	m, err := ComputeMovement("AAPL", bars, day("2024-06-10"))
	require.NoError(t, err)
	assert.InDelta(t, 3.0, m.PercentChange, 1e-9)
	assert.Equal(t, "2024-06-07", m.BaseDate.Format(types.DateLayout))
	assert.Equal(t, "2024-06-10", m.CheckDate.Format(types.DateLayout))
}

func TestComputeMovementTargetOnHoliday(t *testing.T) {
	bars := []types.Candle{bar("2024-06-07", 100), bar("2024-06-10", 95)}
	m, err := ComputeMovement("AAPL", bars, day("2024-06-08"))
	require.NoError(t, err)
	assert.InDelta(t, -5.0, m.PercentChange, 1e-9)
	assert.Equal(t, "2024-06-10", m.CheckDate.Format(types.DateLayout))
}

func TestComputeMovementUnsortedInput(t *testing.T) {
	bars := []types.Candle{bar("2024-06-11", 110), bar("2024-06-07", 100), bar("2024-06-10", 120)}
	m, err := ComputeMovement("AAPL", bars, day("2024-06-10"))
	require.NoError(t, err)
	assert.InDelta(t, 20.0, m.PercentChange, 1e-9)
}

func TestComputeMovementNoBaseIsPermanent(t *testing.T) {
	_, err := ComputeMovement("AAPL", []types.Candle{bar("2024-06-10", 100)}, day("2024-06-10"))
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.False(t, errors.Is(err, ErrNotYetAvailable))
}

func TestComputeMovementNoCheckYet(t *testing.T) {
	_, err := ComputeMovement("AAPL", []types.Candle{bar("2024-06-07", 100)}, day("2024-06-10"))
	assert.ErrorIs(t, err, ErrNotYetAvailable)
	assert.False(t, IsPermanent(err))
}

func TestComputeMovementSkipsEmptyCloses(t *testing.T) {
	bars := []types.Candle{bar("2024-06-07", 100), bar("2024-06-10", 0)}
	_, err := ComputeMovement("AAPL", bars, day("2024-06-10"))
	assert.ErrorIs(t, err, ErrNotYetAvailable)
}

func TestStaticFetcher(t *testing.T) {
	f := NewStaticFetcher()
	f.AddClose("msft", "2024-06-07", 400)
	f.AddClose("msft", "2024-06-10", 404)

	m, err := f.FetchMovement(context.Background(), "MSFT", day("2024-06-10"))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, m.PercentChange, 1e-9)

	_, err = f.FetchMovement(context.Background(), "NOPE", day("2024-06-10"))
	assert.True(t, IsPermanent(err))

	f.FailWith("msft", &FetchError{Ticker: "MSFT", Err: errors.New("timeout")})
	_, err = f.FetchMovement(context.Background(), "MSFT", day("2024-06-10"))
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestRouter(t *testing.T) {
	india := NewStaticFetcher()
	india.AddClose("RELIANCE.NS", "2024-06-07", 100)
	india.AddClose("RELIANCE.NS", "2024-06-10", 101)
	global := NewStaticFetcher()
	global.AddClose("AAPL", "2024-06-07", 200)
	global.AddClose("AAPL", "2024-06-10", 190)

	r := NewRouter(india, global)
	m, err := r.FetchMovement(context.Background(), "RELIANCE.NS", day("2024-06-10"))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, m.PercentChange, 1e-9)

	m, err = r.FetchMovement(context.Background(), "AAPL", day("2024-06-10"))
	require.NoError(t, err)
	assert.InDelta(t, -5.0, m.PercentChange, 1e-9)
}

func TestSettledBars(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	bars := []types.Candle{
		{Date: time.Date(2024, 6, 10, 9, 30, 0, 0, ny), Close: 100},
		{Date: time.Date(2024, 6, 11, 9, 30, 0, 0, ny), Close: 101},
	}

	// 02:00 UTC on the 11th is still the 10th in New York.
	got := SettledBars(bars, time.Date(2024, 6, 11, 2, 0, 0, 0, time.UTC))
	assert.Empty(t, got)

	got = SettledBars(bars, time.Date(2024, 6, 11, 18, 0, 0, 0, time.UTC))
	require.Len(t, got, 1)
	assert.Equal(t, 100.0, got[0].Close)

	assert.Len(t, SettledBars(bars, time.Date(2024, 6, 12, 4, 0, 0, 0, time.UTC)), 2)
}
