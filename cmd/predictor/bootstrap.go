package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"stock-sentiment-predictor/internal/interfaces"
	"stock-sentiment-predictor/internal/ledger"
	"stock-sentiment-predictor/internal/llm"
	"stock-sentiment-predictor/internal/llm/claude"
	"stock-sentiment-predictor/internal/llm/llmobs"
	"stock-sentiment-predictor/internal/llm/noop"
	"stock-sentiment-predictor/internal/llm/openai"
	"stock-sentiment-predictor/internal/logger"
	"stock-sentiment-predictor/internal/market"
	"stock-sentiment-predictor/internal/market/marketobs"
	"stock-sentiment-predictor/internal/pipeline"
	"stock-sentiment-predictor/internal/pipeline/pipelineobs"
	"stock-sentiment-predictor/internal/predlog"
	"stock-sentiment-predictor/internal/reddit"
	"stock-sentiment-predictor/internal/sentiment"
	"stock-sentiment-predictor/internal/store"
	"stock-sentiment-predictor/internal/verifier"
	"stock-sentiment-predictor/internal/verifier/verifierobs"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg       *store.Config
	log       *predlog.Store
	ledger    *ledger.Store
	predictor interfaces.Predictor
	verifier  interfaces.Verifier
}

// initializeSystem loads .env and sets up logging and tracing.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfigOrDefault(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// buildApp wires storage, the prediction pipeline and the verifier.
func buildApp(ctx context.Context, cfg *store.Config) (*app, error) {
	a := &app{
		cfg:    cfg,
		log:    predlog.NewStore(cfg.Storage.PredictionsFile),
		ledger: ledger.NewStore(cfg.Storage.LedgerFile),
	}

	fetcher, err := initializeMarket(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.verifier, err = initializeVerifier(cfg, market.NewCachingFetcher(fetcher, 0), a.log, a.ledger)
	if err != nil {
		return nil, err
	}

	completer, err := initializeCompleter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	// The noop completer answers nothing, which would drop every title.
	var filter interfaces.RelevanceFilter
	if cfg.LLM.Provider != "NOOP" {
		filter = llm.NewRelevanceFilter(completer, cfg.Pipeline.FilterBatchSize)
	}
	collector, err := initializeCollector(ctx, cfg, filter)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(pipeline.Config{
		WindowDays:         cfg.Pipeline.WindowDays,
		MaxPostsPerVenue:   cfg.Pipeline.MaxPostsPerVenue,
		MaxCommentsPerPost: cfg.Pipeline.MaxCommentsPerPost,
		ArtifactsDir:       cfg.Storage.ArtifactsDir,
		Policy:             cfg.Policy,
	},
		llm.NewVenueSuggester(completer, cfg.LLM.DefaultVenues),
		collector,
		initializeClassifier(ctx, cfg),
		a.log,
	)
	a.predictor = pipelineobs.Wrap(p)
	return a, nil
}

// initializeMarket picks the price source. Indian tickers (.NS/.BO) go through
// Kite Connect when credentials are present; everything else uses Yahoo.
func initializeMarket(ctx context.Context, cfg *store.Config) (interfaces.MovementFetcher, error) {
	yahoo := marketobs.Wrap("yahoo", market.NewYahooFetcher(market.YahooConfig{
		BaseURL:       cfg.Market.BaseURL,
		Timeout:       cfg.Market.Timeout,
		RateLimit:     cfg.Market.RateLimit,
		LookbackDays:  cfg.Market.LookbackDays,
		LookaheadDays: cfg.Market.LookaheadDays,
	}))

	hasKite := cfg.Secrets.KiteAPIKey != "" && cfg.Secrets.KiteAccessToken != ""
	switch cfg.Market.Provider {
	case "YAHOO":
		logger.Info(ctx, "Using Yahoo Finance for market data")
		return yahoo, nil
	case "KITE":
		if !hasKite {
			return nil, fmt.Errorf("market.provider KITE needs KITE_API_KEY and KITE_ACCESS_TOKEN")
		}
	default:
		if !hasKite {
			logger.Info(ctx, "Kite credentials not set, using Yahoo Finance for all tickers")
			return yahoo, nil
		}
	}

	kite := marketobs.Wrap("kite", market.NewKiteFetcher(market.KiteConfig{
		APIKey:        cfg.Secrets.KiteAPIKey,
		AccessToken:   cfg.Secrets.KiteAccessToken,
		LookbackDays:  cfg.Market.LookbackDays,
		LookaheadDays: cfg.Market.LookaheadDays,
	}))
	logger.Info(ctx, "Using Kite Connect for NSE/BSE tickers, Yahoo Finance otherwise")
	return market.NewRouter(kite, yahoo), nil
}

func initializeVerifier(cfg *store.Config, fetcher interfaces.MovementFetcher, log *predlog.Store, ledgerStore *ledger.Store) (interfaces.Verifier, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	v := verifier.New(verifier.Config{
		Tickers:         cfg.Tickers,
		Scoring:         cfg.Scoring,
		TransientPolicy: cfg.Verify.TransientFetchPolicy,
		FetchTimeout:    cfg.Verify.FetchTimeout,
		Location:        loc,
	}, fetcher, log, ledgerStore)
	return verifierobs.Wrap(v), nil
}

func initializeCompleter(ctx context.Context, cfg *store.Config) (interfaces.Completer, error) {
	var (
		c   interfaces.Completer
		err error
	)
	switch cfg.LLM.Provider {
	case "OPENAI":
		c, err = openai.NewCompleter(openai.Config{
			APIKey:      cfg.Secrets.OpenAIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		})
	case "CLAUDE":
		c, err = claude.NewCompleter(claude.Config{
			APIKey:      cfg.Secrets.ClaudeKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		})
	default:
		logger.Warn(ctx, "No LLM provider configured - using default venues and no relevance filter")
		c = noop.NewCompleter()
	}
	if err != nil {
		return nil, fmt.Errorf("llm %s: %w", cfg.LLM.Provider, err)
	}
	return llmobs.Wrap(cfg.LLM.Provider, c), nil
}

func initializeCollector(ctx context.Context, cfg *store.Config, filter interfaces.RelevanceFilter) (interfaces.Collector, error) {
	userAgent := cfg.Secrets.RedditUserAgent
	if cfg.Collector.Provider == "REDDIT_API" {
		logger.Info(ctx, "Collecting posts through the Reddit API")
		return reddit.NewAPICollector(reddit.APIConfig{
			ClientID:     cfg.Secrets.RedditClientID,
			ClientSecret: cfg.Secrets.RedditClientSecret,
			Username:     cfg.Secrets.RedditUsername,
			Password:     cfg.Secrets.RedditPassword,
			UserAgent:    userAgent,
			BaseURL:      cfg.Collector.BaseURL,
			RateLimit:    cfg.Collector.RateLimit,
		}, filter)
	}
	logger.Info(ctx, "Collecting posts from the public Reddit pages")
	return reddit.NewWebCollector(reddit.WebConfig{
		BaseURL:   cfg.Collector.BaseURL,
		UserAgent: userAgent,
		RateLimit: cfg.Collector.RateLimit,
	}, filter)
}

func initializeClassifier(ctx context.Context, cfg *store.Config) interfaces.Classifier {
	if cfg.Classifier.Provider == "HUGGINGFACE" {
		if cfg.Secrets.HuggingFaceToken == "" {
			logger.Warn(ctx, "HF_TOKEN not set, Hugging Face requests may be rate limited")
		}
		return sentiment.NewHuggingFaceClassifier(sentiment.HFConfig{
			Token:     cfg.Secrets.HuggingFaceToken,
			Model:     cfg.Classifier.Model,
			BaseURL:   cfg.Classifier.BaseURL,
			BatchSize: cfg.Classifier.BatchSize,
		})
	}
	return sentiment.NewVaderClassifier(cfg.Classifier.VaderThreshold)
}

func fail(ctx context.Context, msg string, err error) {
	logger.ErrorWithErr(ctx, msg, err)
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	_ = logger.Shutdown(context.Background())
	os.Exit(1)
}
