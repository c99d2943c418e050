package market

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stock-sentiment-predictor/internal/api"
	"stock-sentiment-predictor/internal/logger"
	"stock-sentiment-predictor/internal/types"
)

const defaultYahooBaseURL = "https://query2.finance.yahoo.com"

type YahooConfig struct {
	BaseURL      string
	Timeout      time.Duration
	RateLimit    float64
	LookbackDays int
	// How far past the target date to request; covers long holiday closures.
	LookaheadDays int
}

// YahooFetcher reads daily closes from the Yahoo Finance chart endpoint.
type YahooFetcher struct {
	client *api.Client
	cfg    YahooConfig
	now    func() time.Time
}

func NewYahooFetcher(cfg YahooConfig) *YahooFetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultYahooBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 10
	}
	if cfg.LookaheadDays <= 0 {
		cfg.LookaheadDays = 10
	}
	return &YahooFetcher{
		client: api.NewClient(
			api.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")),
			api.WithTimeout(cfg.Timeout),
			api.WithHeaders(api.YahooFinanceHeaders()),
			api.WithRateLimit(cfg.RateLimit, 1),
			api.WithLogging(true),
		),
		cfg: cfg,
		now: time.Now,
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol               string `json:"symbol"`
				ExchangeTimezoneName string `json:"exchangeTimezoneName"`
				GMTOffset            int    `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (y *YahooFetcher) FetchMovement(ctx context.Context, ticker string, target time.Time) (types.Movement, error) {
	bars, err := y.dailyBars(ctx, ticker, target)
	if err != nil {
		return types.Movement{}, err
	}
	return ComputeMovement(ticker, SettledBars(bars, y.now()), target)
}

func (y *YahooFetcher) dailyBars(ctx context.Context, ticker string, target time.Time) ([]types.Candle, error) {
	from := target.AddDate(0, 0, -y.cfg.LookbackDays)
	to := target.AddDate(0, 0, y.cfg.LookaheadDays)
	if now := y.now(); to.After(now) {
		to = now.Add(24 * time.Hour)
	}

	q := url.Values{}
	q.Set("period1", fmt.Sprint(from.Unix()))
	q.Set("period2", fmt.Sprint(to.Unix()))
	q.Set("interval", "1d")
	q.Set("events", "history")
	path := "/v8/finance/chart/" + url.PathEscape(ticker) + "?" + q.Encode()

	resp, err := y.client.DoWithRetry(api.NewRequest(http.MethodGet, path).WithContext(ctx), nil)
	if err != nil {
		if code := api.StatusCode(err); code == http.StatusNotFound || code == http.StatusBadRequest {
			return nil, permanent(ticker, err)
		}
		return nil, transient(ticker, err)
	}

	var cr chartResponse
	if err := resp.ParseJSON(&cr); err != nil {
		return nil, transient(ticker, err)
	}
	if cr.Chart.Error != nil {
		return nil, permanent(ticker, fmt.Errorf("%s: %s", cr.Chart.Error.Code, cr.Chart.Error.Description))
	}
	if len(cr.Chart.Result) == 0 {
		return nil, permanent(ticker, errors.New("empty chart result"))
	}

	res := cr.Chart.Result[0]
	loc := exchangeLocation(res.Meta.ExchangeTimezoneName, res.Meta.GMTOffset)
	if len(res.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := res.Indicators.Quote[0]

	bars := make([]types.Candle, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		bars = append(bars, types.Candle{
			Date:  time.Unix(ts, 0).In(loc),
			Open:  deref(quote.Open, i),
			High:  deref(quote.High, i),
			Low:   deref(quote.Low, i),
			Close: *quote.Close[i],
			Vol:   deref(quote.Volume, i),
		})
	}
	logger.Debug(ctx, "Fetched daily bars", "ticker", ticker, "bars", len(bars), "timezone", loc.String())

	return bars, nil
}

func exchangeLocation(name string, gmtOffset int) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.FixedZone("exchange", gmtOffset)
}

func deref(xs []*float64, i int) float64 {
	if i < len(xs) && xs[i] != nil {
		return *xs[i]
	}
	return 0
}
