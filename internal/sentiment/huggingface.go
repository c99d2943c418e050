package sentiment

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"stock-sentiment-predictor/internal/api"
	"stock-sentiment-predictor/internal/logger"
	"stock-sentiment-predictor/internal/types"
)

const (
	defaultHFBaseURL = "https://router.huggingface.co/hf-inference/models/"
	defaultHFModel   = "lxyuan/distilbert-base-multilingual-cased-sentiments-student"
	// Classifier input limit; longer comments are truncated.
	maxInputChars = 2000
)

// HuggingFaceClassifier runs a hosted text-classification model in batches.
// A failed batch marks that batch and everything after it as failed, the
// same fallback as running out of accelerator memory locally.
type HuggingFaceClassifier struct {
	client    *api.Client
	model     string
	batchSize int
	retry     *api.RetryConfig
}

type HFConfig struct {
	Token     string
	Model     string
	BaseURL   string
	BatchSize int
	Timeout   time.Duration
}

func NewHuggingFaceClassifier(cfg HFConfig) *HuggingFaceClassifier {
	if cfg.Model == "" {
		cfg.Model = defaultHFModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultHFBaseURL
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	opts := []api.ClientOption{
		api.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/") + "/"),
		api.WithTimeout(cfg.Timeout),
		api.WithLogging(true),
	}
	if cfg.Token != "" {
		opts = append(opts, api.WithHeader("Authorization", "Bearer "+cfg.Token))
	}

	return &HuggingFaceClassifier{
		client:    api.NewClient(opts...),
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
		retry:     api.DefaultRetryConfig(),
	}
}

func (h *HuggingFaceClassifier) Name() string { return "huggingface:" + h.model }

type hfScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (h *HuggingFaceClassifier) Classify(ctx context.Context, texts []string) ([]types.ClassifiedText, error) {
	out := make([]types.ClassifiedText, 0, len(texts))

	for start := 0; start < len(texts); start += h.batchSize {
		end := min(start+h.batchSize, len(texts))
		batch := texts[start:end]
		logger.Debug(ctx, "Classifying batch", "from", start+1, "to", end, "total", len(texts))

		results, err := h.classifyBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			logger.ErrorWithErr(ctx, "Classifier batch failed, marking remaining texts as failed", err,
				"model", h.model,
				"remaining", len(texts)-start,
			)
			for _, t := range texts[start:] {
				out = append(out, types.ClassifiedText{Text: t, Label: types.LabelFailed, Error: err.Error()})
			}
			return out, nil
		}

		for i, t := range batch {
			best := topScore(results[i])
			label := NormalizeLabel(best.Label)
			if label == types.LabelOther {
				logger.Warn(ctx, "Unexpected classifier label", "label", best.Label)
			}
			out = append(out, types.ClassifiedText{Text: t, Label: label, Confidence: best.Score})
		}
	}
	return out, nil
}

// truncateRunes cuts s to at most n characters without splitting one.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	seen := 0
	for i := range s {
		if seen == n {
			return s[:i]
		}
		seen++
	}
	return s
}

func (h *HuggingFaceClassifier) classifyBatch(ctx context.Context, batch []string) ([][]hfScore, error) {
	inputs := make([]string, len(batch))
	for i, t := range batch {
		inputs[i] = truncateRunes(t, maxInputChars)
	}

	req := api.NewRequest("POST", h.model).
		WithContext(ctx).
		WithBody(map[string]any{"inputs": inputs, "options": map[string]any{"wait_for_model": true}})
	resp, err := h.client.DoWithRetry(req, h.retry)
	if err != nil {
		return nil, err
	}

	var nested [][]hfScore
	if err := resp.ParseJSON(&nested); err != nil {
		// single-input requests may come back flat
		var flat []hfScore
		if ferr := resp.ParseJSON(&flat); ferr != nil || len(batch) != 1 {
			return nil, err
		}
		nested = [][]hfScore{flat}
	}
	if len(nested) != len(batch) {
		return nil, fmt.Errorf("classifier returned %d results for %d inputs", len(nested), len(batch))
	}
	return nested, nil
}

func topScore(scores []hfScore) hfScore {
	best := hfScore{Label: "unknown"}
	for i, s := range scores {
		if i == 0 || s.Score > best.Score {
			best = s
		}
	}
	return best
}
