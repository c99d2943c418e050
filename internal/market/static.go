package market

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"stock-sentiment-predictor/internal/types"
)

// StaticFetcher serves movements from bars held in memory. Used for dry runs
// and tests.
type StaticFetcher struct {
	mu   sync.RWMutex
	bars map[string][]types.Candle
	errs map[string]error
}

func NewStaticFetcher() *StaticFetcher {
	return &StaticFetcher{
		bars: make(map[string][]types.Candle),
		errs: make(map[string]error),
	}
}

// SetBars replaces the history for ticker.
func (s *StaticFetcher) SetBars(ticker string, bars ...types.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars[strings.ToUpper(ticker)] = append([]types.Candle(nil), bars...)
}

// AddClose appends one daily close for ticker.
func (s *StaticFetcher) AddClose(ticker, day string, price float64) {
	d, err := time.Parse(types.DateLayout, day)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToUpper(ticker)
	s.bars[key] = append(s.bars[key], types.Candle{Date: d, Close: price})
}

// FailWith makes every fetch for ticker return err.
func (s *StaticFetcher) FailWith(ticker string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[strings.ToUpper(ticker)] = err
}

func (s *StaticFetcher) FetchMovement(ctx context.Context, ticker string, target time.Time) (types.Movement, error) {
	if err := ctx.Err(); err != nil {
		return types.Movement{}, transient(ticker, err)
	}
	s.mu.RLock()
	key := strings.ToUpper(ticker)
	bars, ok := s.bars[key]
	ferr := s.errs[key]
	s.mu.RUnlock()

	if ferr != nil {
		return types.Movement{}, ferr
	}
	if !ok {
		return types.Movement{}, permanent(ticker, errors.New("unknown symbol"))
	}
	return ComputeMovement(ticker, bars, target)
}
