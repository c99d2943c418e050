// Package verifier grades pending predictions against realised market moves
// and folds the scores into the reliability ledger.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"stock-sentiment-predictor/internal/interfaces"
	"stock-sentiment-predictor/internal/ledger"
	"stock-sentiment-predictor/internal/logger"
	"stock-sentiment-predictor/internal/market"
	"stock-sentiment-predictor/internal/predlog"
	"stock-sentiment-predictor/internal/scoring"
	"stock-sentiment-predictor/internal/types"
)

// What to do with a record whose market fetch failed for a transient reason.
const (
	TransientRetry = "RETRY" // stay pending, counted as deferred
	TransientError = "ERROR" // mark the record as error
)

type Config struct {
	// Entity (lower-case) to ticker. Copied at construction; never mutated.
	Tickers         map[string]string
	Scoring         scoring.Config
	TransientPolicy string
	FetchTimeout    time.Duration
	// Calendar used to decide what "today" is.
	Location *time.Location
}

// Verifier runs verification cycles. Runs are serialised; it is the only
// writer of the ledger.
type Verifier struct {
	cfg     Config
	tickers map[string]string
	fetcher interfaces.MovementFetcher
	log     *predlog.Store
	ledger  *ledger.Store
	now     func() time.Time
	mu      sync.Mutex
}

var _ interfaces.Verifier = (*Verifier)(nil)

type Option func(*Verifier)

// WithClock overrides time.Now, for tests and backfills.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

func New(cfg Config, fetcher interfaces.MovementFetcher, log *predlog.Store, ledgerStore *ledger.Store, opts ...Option) *Verifier {
	if cfg.Scoring.MaxThreshold <= 0 {
		cfg.Scoring = scoring.DefaultConfig()
	}
	if cfg.TransientPolicy == "" {
		cfg.TransientPolicy = TransientRetry
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	tickers := make(map[string]string, len(cfg.Tickers))
	for k, v := range cfg.Tickers {
		tickers[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}

	v := &Verifier{
		cfg:     cfg,
		tickers: tickers,
		fetcher: fetcher,
		log:     log,
		ledger:  ledgerStore,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Ticker resolves an entity name, case-insensitively.
func (v *Verifier) Ticker(entity string) (string, bool) {
	t, ok := v.tickers[strings.ToLower(strings.TrimSpace(entity))]
	return t, ok && t != ""
}

// Run processes every pending record once. A bad record never stops the run;
// an unreadable ledger or log aborts it before anything is written. When ctx
// ends mid-run, the records resolved so far are committed, the rest stay
// pending, and the partial summary is returned with ctx's error.
func (v *Verifier) Run(ctx context.Context) (*types.VerifySummary, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	current, err := v.ledger.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	working := current.Clone()
	today := v.now().In(v.cfg.Location).Format(types.DateLayout)

	summary := &types.VerifySummary{}
	var interrupted error
	update := func(records []types.Prediction) (bool, error) {
		changed := false
		for i := range records {
			if !records[i].Pending() {
				continue
			}
			if err := ctx.Err(); err != nil {
				interrupted = err
				break
			}
			res, mutated := v.resolve(ctx, &records[i], working, today)
			summary.Add(res)
			changed = changed || mutated
		}
		return changed, nil
	}
	commit := func() error {
		if summary.Checked == 0 {
			return nil
		}
		if err := v.ledger.Save(working); err != nil {
			return fmt.Errorf("save ledger: %w", err)
		}
		return nil
	}

	if err := v.log.UpdateThen(update, commit); err != nil {
		return nil, err
	}

	summary.Updated = summary.Checked > 0 || summary.Errored > 0
	summary.Global = working.Global
	if interrupted == nil {
		interrupted = ctx.Err()
	}
	if interrupted != nil {
		return summary, fmt.Errorf("verification interrupted: %w", interrupted)
	}
	return summary, nil
}

// resolve moves one pending record forward. It reports whether the record changed.
func (v *Verifier) resolve(ctx context.Context, p *types.Prediction, l *ledger.Ledger, today string) (types.RecordResult, bool) {
	res := types.RecordResult{ID: p.ID, Entity: p.Entity, DateFor: p.DateFor, Direction: p.Direction}
	if res.Entity == "" {
		res.Entity = "unknown"
	}

	fail := func(msg string) (types.RecordResult, bool) {
		p.Status = types.StatusError
		p.ErrorMessage = msg
		res.Outcome, res.Message = types.OutcomeErrored, msg
		logger.Verification(ctx, res.Entity, string(res.Outcome), "date_for", p.DateFor, "reason", msg)
		return res, true
	}
	keep := func(o types.Outcome, msg string) (types.RecordResult, bool) {
		res.Outcome, res.Message = o, msg
		logger.Verification(ctx, res.Entity, string(o), "date_for", p.DateFor, "reason", msg)
		return res, false
	}

	if strings.TrimSpace(p.Entity) == "" || p.Direction == "" || p.DateFor == "" {
		return fail("missing entity, direction or date_for")
	}
	dir, err := types.ParseDirection(string(p.Direction))
	if err != nil {
		return fail(err.Error())
	}
	target, err := p.TargetDate(v.cfg.Location)
	if err != nil {
		return fail(fmt.Sprintf("invalid date_for %q", p.DateFor))
	}
	if target.Format(types.DateLayout) >= today {
		return keep(types.OutcomeSkipped, "target date not reached, check after "+p.DateFor)
	}

	ticker, ok := v.Ticker(p.Entity)
	if !ok {
		return fail(fmt.Sprintf("entity %q not mapped to a ticker", p.Entity))
	}

	fetchCtx, cancel := context.WithTimeout(ctx, v.cfg.FetchTimeout)
	mv, err := v.fetcher.FetchMovement(fetchCtx, ticker, target)
	cancel()
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return keep(types.OutcomeDeferred, "verification cancelled before market data arrived")
	case errors.Is(err, market.ErrNotYetAvailable):
		return keep(types.OutcomeSkipped, "market data not settled yet for "+ticker)
	case market.IsPermanent(err):
		return fail(err.Error())
	case v.cfg.TransientPolicy == TransientError:
		return fail(err.Error())
	default:
		return keep(types.OutcomeDeferred, "market data fetch failed, will retry: "+err.Error())
	}

	score := v.cfg.Scoring.Score(dir, mv.PercentChange)
	correct := v.cfg.Scoring.IsCorrect(dir, mv.PercentChange)
	if err := l.Record(p.Entity, score); err != nil {
		return fail(err.Error())
	}

	pct := round(mv.PercentChange, 2)
	rounded := round(score, 4)
	p.Direction = dir
	p.Status = types.StatusChecked
	p.DateChecked = mv.CheckDate.Format(types.DateLayout)
	p.BaseDate = mv.BaseDate.Format(types.DateLayout)
	p.ActualMovementPercent = &pct
	p.Score = &rounded
	p.Correct = &correct
	p.ErrorMessage = ""

	res.Direction = dir
	res.Outcome = types.OutcomeChecked
	res.ActualMovementPercent, res.Score, res.Correct = &pct, &rounded, &correct
	res.Message = fmt.Sprintf("%s %s->%s %+.2f%%, score %.2f, %s",
		ticker, p.BaseDate, p.DateChecked, mv.PercentChange, score, verdict(correct))

	logger.Verification(ctx, p.Entity, string(res.Outcome),
		"ticker", ticker,
		"direction", string(dir),
		"date_for", p.DateFor,
		"movement_pct", pct,
		"score", rounded,
		"correct", correct,
	)
	return res, true
}

func verdict(correct bool) string {
	if correct {
		return "correct"
	}
	return "incorrect"
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
