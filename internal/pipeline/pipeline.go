// Package pipeline runs one prediction: suggest venues, collect text,
// classify it, tally, decide a direction and append it to the log.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"stock-sentiment-predictor/internal/atomicfile"
	"stock-sentiment-predictor/internal/interfaces"
	"stock-sentiment-predictor/internal/logger"
	"stock-sentiment-predictor/internal/predlog"
	"stock-sentiment-predictor/internal/sentiment"
	"stock-sentiment-predictor/internal/types"
)

type Config struct {
	WindowDays         int
	MaxPostsPerVenue   int
	MaxCommentsPerPost int
	// Where <company>_analyzed.json goes; empty skips the artifact.
	ArtifactsDir string
	// Used as given, zero value included. store.Default carries the tuned one.
	Policy sentiment.Policy
}

type Pipeline struct {
	cfg        Config
	suggester  interfaces.VenueSuggester
	collector  interfaces.Collector
	classifier interfaces.Classifier
	log        *predlog.Store
}

var _ interfaces.Predictor = (*Pipeline)(nil)

func New(cfg Config, suggester interfaces.VenueSuggester, collector interfaces.Collector, classifier interfaces.Classifier, log *predlog.Store) *Pipeline {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 7
	}
	return &Pipeline{
		cfg:        cfg,
		suggester:  suggester,
		collector:  collector,
		classifier: classifier,
		log:        log,
	}
}

// Artifact is the analysed-text dump written next to each prediction.
type Artifact struct {
	Company     string                 `json:"company"`
	DateFor     string                 `json:"date_for"`
	WindowStart string                 `json:"window_start"`
	WindowEnd   string                 `json:"window_end"`
	Venues      []string               `json:"venues"`
	Classifier  string                 `json:"classifier"`
	Tally       types.SentimentTally   `json:"tally"`
	Direction   types.Direction        `json:"direction"`
	Results     []types.ClassifiedText `json:"results"`
}

func (p *Pipeline) Run(ctx context.Context, company string, dateFor time.Time) (*types.PipelineResult, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return nil, errors.New("company name is required")
	}
	dateStr := dateFor.Format(types.DateLayout)
	start, end := Window(dateFor, p.cfg.WindowDays)

	venues, err := p.suggester.SuggestVenues(ctx, company)
	if err != nil {
		return nil, fmt.Errorf("suggest venues: %w", err)
	}

	posts, err := p.collector.Collect(ctx, types.CollectRequest{
		Company:            company,
		Keywords:           Keywords(company),
		Venues:             venues,
		Start:              start,
		End:                end,
		MaxPostsPerVenue:   p.cfg.MaxPostsPerVenue,
		MaxCommentsPerPost: p.cfg.MaxCommentsPerPost,
	})
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}

	var texts []string
	var textVenues []string
	for _, post := range posts {
		for _, t := range post.Texts() {
			texts = append(texts, t)
			textVenues = append(textVenues, post.Venue)
		}
	}

	var results []types.ClassifiedText
	if len(texts) > 0 {
		results, err = p.classifier.Classify(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("classify: %w", err)
		}
		for i := range results {
			if i < len(textVenues) {
				results[i].Venue = textVenues[i]
			}
		}
	} else {
		logger.Warn(ctx, "No text collected, prediction falls back to neutral",
			"company", company, "date_for", dateStr, "venues", venues)
	}

	tally := sentiment.Tally(results)
	direction := p.cfg.Policy.Predict(tally)
	score, _ := p.cfg.Policy.Score(tally)
	logger.Info(ctx, "Sentiment tallied",
		"company", company,
		"posts", len(posts),
		"texts", len(texts),
		"positive", tally.Positive,
		"negative", tally.Negative,
		"neutral", tally.Neutral,
		"other", tally.Other,
		"failed", tally.Failed,
		"sentiment_score", score,
		"direction", direction,
	)

	res := &types.PipelineResult{
		Company:   company,
		DateFor:   dateStr,
		Venues:    venues,
		Posts:     len(posts),
		Texts:     len(texts),
		Tally:     tally,
		Direction: direction,
	}

	if p.cfg.ArtifactsDir != "" {
		path := filepath.Join(p.cfg.ArtifactsDir, SafeFileName(company)+"_analyzed.json")
		if results == nil {
			results = []types.ClassifiedText{}
		}
		err := atomicfile.WriteJSON(path, Artifact{
			Company:     company,
			DateFor:     dateStr,
			WindowStart: start.Format(types.DateLayout),
			WindowEnd:   end.AddDate(0, 0, -1).Format(types.DateLayout),
			Venues:      venues,
			Classifier:  p.classifier.Name(),
			Tally:       tally,
			Direction:   direction,
			Results:     results,
		})
		if err != nil {
			return nil, fmt.Errorf("write artifact: %w", err)
		}
		res.ArtifactPath = path
	}

	t := tally
	pred, err := p.log.Append(ctx, types.Prediction{
		Entity:    company,
		Direction: direction,
		DateFor:   dateStr,
		Method:    predlog.MethodLocalModel,
		Tally:     &t,
	})
	if err != nil {
		return nil, fmt.Errorf("append prediction: %w", err)
	}
	res.Prediction = &pred
	return res, nil
}

// Window is the collection range for a target date: the days
// [dateFor-days, dateFor-1] in UTC, returned as a half-open [start, end).
func Window(dateFor time.Time, days int) (start, end time.Time) {
	y, m, d := dateFor.Date()
	end = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return end.AddDate(0, 0, -days), end
}

// Keywords are the lower-cased name, its cashtag, and the first four letters
// when the name is longer than three and starts with four letters.
func Keywords(company string) []string {
	name := strings.ToLower(strings.TrimSpace(company))
	if name == "" {
		return nil
	}
	out := []string{name, "$" + name}
	if r := []rune(name); len(r) > 3 && isAlpha(r[:4]) && string(r[:4]) != name {
		out = append(out, string(r[:4]))
	}
	return out
}

func isAlpha(rs []rune) bool {
	for _, r := range rs {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

var unsafeFileChars = regexp.MustCompile(`[^\w.-]`)

func SafeFileName(company string) string {
	name := strings.ToLower(strings.TrimSpace(company))
	return unsafeFileChars.ReplaceAllString(strings.ReplaceAll(name, " ", "_"), "")
}
