package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"stock-sentiment-predictor/internal/logger"
	"stock-sentiment-predictor/internal/types"
)

// kiteAPI is the part of the Kite Connect client used here.
type kiteAPI interface {
	GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error)
	GetHistoricalData(instrumentToken int, interval string, fromDate time.Time, toDate time.Time, continuous bool, OI bool) ([]kiteconnect.HistoricalData, error)
}

type KiteConfig struct {
	APIKey        string
	AccessToken   string
	LookbackDays  int
	LookaheadDays int
}

// KiteFetcher reads NSE/BSE daily candles through Zerodha Kite Connect.
// Tickers use the Yahoo-style suffix: RELIANCE.NS, TATAMOTORS.BO.
type KiteFetcher struct {
	kc     kiteAPI
	mapper *instrumentMapper
	cfg    KiteConfig
	ist    *time.Location
	now    func() time.Time
}

func NewKiteFetcher(cfg KiteConfig) *KiteFetcher {
	kc := kiteconnect.New(cfg.APIKey)
	kc.SetAccessToken(cfg.AccessToken)
	return newKiteFetcher(kc, cfg)
}

func newKiteFetcher(kc kiteAPI, cfg KiteConfig) *KiteFetcher {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 10
	}
	if cfg.LookaheadDays <= 0 {
		cfg.LookaheadDays = 10
	}
	return &KiteFetcher{
		kc:     kc,
		mapper: newInstrumentMapper(),
		cfg:    cfg,
		ist:    time.FixedZone("IST", 19800),
		now:    time.Now,
	}
}

func (k *KiteFetcher) FetchMovement(ctx context.Context, ticker string, target time.Time) (types.Movement, error) {
	exchange, symbol, err := splitTicker(ticker)
	if err != nil {
		return types.Movement{}, permanent(ticker, err)
	}

	token, err := k.resolve(ctx, exchange, symbol)
	if err != nil {
		return types.Movement{}, err
	}

	from := target.AddDate(0, 0, -k.cfg.LookbackDays)
	to := target.AddDate(0, 0, k.cfg.LookaheadDays)
	if now := k.now(); to.After(now) {
		to = now
	}
	if err := ctx.Err(); err != nil {
		return types.Movement{}, transient(ticker, err)
	}

	candles, err := k.kc.GetHistoricalData(token, "day", from, to, false, false)
	if err != nil {
		return types.Movement{}, transient(ticker, fmt.Errorf("historical data: %w", err))
	}

	bars := make([]types.Candle, 0, len(candles))
	for _, c := range candles {
		bars = append(bars, types.Candle{
			Date:  c.Date.Time.In(k.ist),
			Open:  c.Open,
			High:  c.High,
			Low:   c.Low,
			Close: c.Close,
			Vol:   float64(c.Volume),
		})
	}
	logger.Debug(ctx, "Fetched Kite candles", "ticker", ticker, "token", token, "bars", len(bars))
	return ComputeMovement(ticker, SettledBars(bars, k.now()), target)
}

// resolve loads the exchange instrument dump once, then answers from memory.
func (k *KiteFetcher) resolve(ctx context.Context, exchange, symbol string) (int, error) {
	if token, ok := k.mapper.getToken(exchange, symbol); ok {
		return token, nil
	}
	if !k.mapper.loaded(exchange) {
		instruments, err := k.kc.GetInstrumentsByExchange(exchange)
		if err != nil {
			return 0, transient(symbol, fmt.Errorf("instrument list for %s: %w", exchange, err))
		}
		for _, in := range instruments {
			k.mapper.addMapping(exchange, in.Tradingsymbol, in.InstrumentToken)
		}
		k.mapper.markLoaded(exchange)
		logger.Info(ctx, "Loaded Kite instruments", "exchange", exchange, "count", len(instruments))
	}
	if token, ok := k.mapper.getToken(exchange, symbol); ok {
		return token, nil
	}
	return 0, permanent(symbol, fmt.Errorf("symbol %s not listed on %s", symbol, exchange))
}

func splitTicker(ticker string) (exchange, symbol string, err error) {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	switch {
	case strings.HasSuffix(t, ".NS"):
		return "NSE", strings.TrimSuffix(t, ".NS"), nil
	case strings.HasSuffix(t, ".BO"):
		return "BSE", strings.TrimSuffix(t, ".BO"), nil
	case strings.Contains(t, ":"):
		parts := strings.SplitN(t, ":", 2)
		return parts[0], parts[1], nil
	default:
		return "", "", errors.New("ticker has no Indian exchange suffix")
	}
}

// instrumentMapper maps exchange:symbol to Kite instrument tokens.
type instrumentMapper struct {
	symbolToToken map[string]int
	exchanges     map[string]bool
	mu            sync.RWMutex
}

func newInstrumentMapper() *instrumentMapper {
	return &instrumentMapper{
		symbolToToken: make(map[string]int),
		exchanges:     make(map[string]bool),
	}
}

func (im *instrumentMapper) addMapping(exchange, symbol string, token int) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.symbolToToken[exchange+":"+symbol] = token
}

func (im *instrumentMapper) getToken(exchange, symbol string) (int, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()
	token, ok := im.symbolToToken[exchange+":"+symbol]
	return token, ok
}

func (im *instrumentMapper) markLoaded(exchange string) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.exchanges[exchange] = true
}

func (im *instrumentMapper) loaded(exchange string) bool {
	im.mu.RLock()
	defer im.mu.RUnlock()
	return im.exchanges[exchange]
}
