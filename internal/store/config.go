package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"stock-sentiment-predictor/internal/scoring"
	"stock-sentiment-predictor/internal/sentiment"
)

type Config struct {
	Policy  sentiment.Policy  `yaml:"policy"`
	Scoring scoring.Config    `yaml:"scoring"`
	Tickers map[string]string `yaml:"tickers" validate:"required,dive,keys,required,endkeys,required"`

	Storage struct {
		PredictionsFile string `yaml:"predictions_file" validate:"required"`
		LedgerFile      string `yaml:"ledger_file" validate:"required"`
		ArtifactsDir    string `yaml:"artifacts_dir" validate:"required"`
	} `yaml:"storage"`

	Market struct {
		Provider      string        `yaml:"provider" validate:"oneof=YAHOO KITE AUTO"`
		BaseURL       string        `yaml:"base_url" validate:"omitempty,url"`
		Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
		RateLimit     float64       `yaml:"rate_limit" validate:"gte=0"`
		LookbackDays  int           `yaml:"lookback_days" validate:"gte=1"`
		LookaheadDays int           `yaml:"lookahead_days" validate:"gte=1"`
	} `yaml:"market"`

	Verify struct {
		TransientFetchPolicy string        `yaml:"transient_fetch_policy" validate:"oneof=RETRY ERROR"`
		Timezone             string        `yaml:"timezone"`
		FetchTimeout         time.Duration `yaml:"fetch_timeout" validate:"gt=0"`
		// Cron expression for the server's periodic check; empty disables it.
		Schedule string `yaml:"schedule"`
	} `yaml:"verify"`

	Pipeline struct {
		WindowDays         int `yaml:"window_days" validate:"gte=1"`
		MaxPostsPerVenue   int `yaml:"max_posts_per_venue" validate:"gte=1"`
		MaxCommentsPerPost int `yaml:"max_comments_per_post" validate:"gte=0"`
		FilterBatchSize    int `yaml:"filter_batch_size" validate:"gte=1"`
	} `yaml:"pipeline"`

	LLM struct {
		Provider      string   `yaml:"provider" validate:"oneof=OPENAI CLAUDE NOOP"`
		Model         string   `yaml:"model"`
		BaseURL       string   `yaml:"base_url" validate:"omitempty,url"`
		MaxTokens     int      `yaml:"max_tokens" validate:"gte=1"`
		Temperature   float32  `yaml:"temperature" validate:"gte=0,lte=2"`
		DefaultVenues []string `yaml:"default_venues" validate:"min=1,dive,required"`
	} `yaml:"llm"`

	Collector struct {
		Provider  string  `yaml:"provider" validate:"oneof=REDDIT_API REDDIT_WEB"`
		BaseURL   string  `yaml:"base_url" validate:"omitempty,url"`
		RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
	} `yaml:"collector"`

	Classifier struct {
		Provider       string  `yaml:"provider" validate:"oneof=VADER HUGGINGFACE"`
		Model          string  `yaml:"model"`
		BaseURL        string  `yaml:"base_url" validate:"omitempty,url"`
		BatchSize      int     `yaml:"batch_size" validate:"gte=1"`
		VaderThreshold float64 `yaml:"vader_threshold" validate:"gte=0,lte=1"`
	} `yaml:"classifier"`

	Server struct {
		Addr         string        `yaml:"addr" validate:"required"`
		ReadTimeout  time.Duration `yaml:"read_timeout" validate:"gt=0"`
		WriteTimeout time.Duration `yaml:"write_timeout" validate:"gt=0"`
	} `yaml:"server"`

	// Never read from YAML.
	Secrets Secrets `yaml:"-"`
}

// Secrets come from the environment (or .env) only.
type Secrets struct {
	OpenAIKey          string
	ClaudeKey          string
	HuggingFaceToken   string
	RedditClientID     string
	RedditClientSecret string
	RedditUsername     string
	RedditPassword     string
	RedditUserAgent    string
	KiteAPIKey         string
	KiteAccessToken    string
}

// DefaultTickers is the built-in entity to ticker table.
func DefaultTickers() map[string]string {
	return map[string]string{
		"reliance":  "RELIANCE.NS",
		"apple":     "AAPL",
		"google":    "GOOGL",
		"microsoft": "MSFT",
		"tesla":     "TSLA",
		"tata":      "TATAMOTORS.NS",
	}
}

// Default returns a complete configuration that passes Validate.
func Default() *Config {
	c := &Config{
		Policy:  sentiment.DefaultPolicy(),
		Scoring: scoring.DefaultConfig(),
		Tickers: DefaultTickers(),
	}

	c.Storage.PredictionsFile = "all_predictions.json"
	c.Storage.LedgerFile = "reliability_score.json"
	c.Storage.ArtifactsDir = "artifacts"

	c.Market.Provider = "AUTO"
	c.Market.Timeout = 15 * time.Second
	c.Market.RateLimit = 2
	c.Market.LookbackDays = 10
	c.Market.LookaheadDays = 10

	c.Verify.TransientFetchPolicy = "RETRY"
	c.Verify.Timezone = "Local"
	c.Verify.FetchTimeout = 30 * time.Second

	c.Pipeline.WindowDays = 7
	c.Pipeline.MaxPostsPerVenue = 50
	c.Pipeline.MaxCommentsPerPost = 500
	c.Pipeline.FilterBatchSize = 10

	c.LLM.Provider = "NOOP"
	c.LLM.Model = "gpt-4o-mini"
	c.LLM.MaxTokens = 256
	c.LLM.Temperature = 0.2
	c.LLM.DefaultVenues = []string{"stocks", "investing", "StockMarket"}

	c.Collector.Provider = "REDDIT_WEB"
	c.Collector.RateLimit = 1

	c.Classifier.Provider = "VADER"
	c.Classifier.BatchSize = 16
	c.Classifier.VaderThreshold = 0.2

	c.Server.Addr = ":5000"
	c.Server.ReadTimeout = 15 * time.Second
	c.Server.WriteTimeout = 10 * time.Minute

	return c
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed '%s' check (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}
	if c.Policy.RiseThreshold <= c.Policy.FallThreshold {
		return fmt.Errorf("policy.rise_threshold (%.2f) must be greater than policy.fall_threshold (%.2f)",
			c.Policy.RiseThreshold, c.Policy.FallThreshold)
	}
	if c.Policy.MinFallMargin < 0 {
		return fmt.Errorf("policy.min_fall_margin must be >= 0, got %d", c.Policy.MinFallMargin)
	}
	if c.Scoring.CorrectnessMargin >= c.Scoring.MaxThreshold {
		return fmt.Errorf("scoring.correctness_margin_percent (%.2f) must be below scoring.max_threshold_percent (%.2f)",
			c.Scoring.CorrectnessMargin, c.Scoring.MaxThreshold)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("verify.timezone: %w", err)
	}
	return nil
}

// Location resolves verify.timezone; "Local" and empty mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Verify.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// LoadConfig reads path over the defaults. Keys missing from the file keep
// their default value; the ticker table is merged with the built-in one.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}

	normalizeTickers(c)
	c.Market.Provider = strings.ToUpper(c.Market.Provider)
	c.Verify.TransientFetchPolicy = strings.ToUpper(c.Verify.TransientFetchPolicy)
	c.LLM.Provider = strings.ToUpper(c.LLM.Provider)
	c.Collector.Provider = strings.ToUpper(c.Collector.Provider)
	c.Classifier.Provider = strings.ToUpper(c.Classifier.Provider)
	c.Secrets = SecretsFromEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return c, nil
}

// LoadConfigOrDefault is LoadConfig that tolerates a missing file.
func LoadConfigOrDefault(path string) (*Config, error) {
	c, err := LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		c = Default()
		c.Secrets = SecretsFromEnv()
		return c, nil
	}
	return c, err
}

func SecretsFromEnv() Secrets {
	return Secrets{
		OpenAIKey:          os.Getenv("OPENAI_API_KEY"),
		ClaudeKey:          firstEnv("CLAUDE_API_KEY", "ANTHROPIC_API_KEY"),
		HuggingFaceToken:   firstEnv("HF_TOKEN", "HUGGINGFACE_TOKEN"),
		RedditClientID:     os.Getenv("REDDIT_CLIENT_ID"),
		RedditClientSecret: os.Getenv("REDDIT_CLIENT_SECRET"),
		RedditUsername:     os.Getenv("REDDIT_USERNAME"),
		RedditPassword:     os.Getenv("REDDIT_PASSWORD"),
		RedditUserAgent:    os.Getenv("REDDIT_USER_AGENT"),
		KiteAPIKey:         os.Getenv("KITE_API_KEY"),
		KiteAccessToken:    os.Getenv("KITE_ACCESS_TOKEN"),
	}
}

func normalizeTickers(c *Config) {
	out := make(map[string]string, len(c.Tickers))
	for k, v := range c.Tickers {
		out[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	c.Tickers = out
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
