package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stock-sentiment-predictor/internal/logger"
	"stock-sentiment-predictor/internal/report"
	"stock-sentiment-predictor/internal/scheduler"
	"stock-sentiment-predictor/internal/server"
	"stock-sentiment-predictor/internal/types"
)

const usage = `usage: predictor [-config config.yaml] <command> [args]

commands:
  serve                         run the HTTP API (and the verify schedule, if set)
  predict <company> <YYYY-MM-DD> collect, classify and log one prediction
  check                         verify every pending prediction once
  score                         print reliability per entity
  report <out.csv>              write the reliability summary as CSV
`

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := initializeSystem(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Shutdown(context.Background()) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		fail(ctx, "Failed to load config", err)
	}
	a, err := buildApp(ctx, cfg)
	if err != nil {
		fail(ctx, "Failed to initialize", err)
	}

	switch cmd := args[0]; cmd {
	case "serve":
		err = a.serve(ctx)
	case "predict":
		if len(args) != 3 {
			flag.Usage()
			os.Exit(2)
		}
		err = a.predict(ctx, args[1], args[2])
	case "check":
		err = a.check(ctx)
	case "score":
		err = a.score(ctx, "")
	case "report":
		if len(args) != 2 {
			flag.Usage()
			os.Exit(2)
		}
		err = a.score(ctx, args[1])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fail(ctx, "Command "+args[0]+" failed", err)
	}
}

func (a *app) serve(ctx context.Context) error {
	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}

	if schedule := strings.TrimSpace(a.cfg.Verify.Schedule); schedule != "" {
		sched := scheduler.New(a.verifier, loc, 0)
		if err := sched.Start(ctx, schedule); err != nil {
			return err
		}
		defer sched.Stop(context.Background())
	}

	srv := server.New(a.predictor, a.verifier, a.log, a.ledger, loc)
	return srv.ListenAndServe(ctx, server.Options{
		Addr:         a.cfg.Server.Addr,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	})
}

func (a *app) predict(ctx context.Context, company, date string) error {
	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}
	dateFor, err := time.ParseInLocation(types.DateLayout, strings.TrimSpace(date), loc)
	if err != nil {
		return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
	}

	res, err := a.predictor.Run(ctx, company, dateFor)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func (a *app) check(ctx context.Context) error {
	summary, err := a.verifier.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("checked=%d skipped=%d deferred=%d errored=%d\n",
		summary.Checked, summary.Skipped, summary.Deferred, summary.Errored)
	for _, o := range []types.Outcome{types.OutcomeChecked, types.OutcomeDeferred, types.OutcomeErrored} {
		for _, line := range summary.Messages(o) {
			fmt.Printf("  [%s] %s\n", o, line)
		}
	}
	fmt.Printf("global reliability: %.4f over %d predictions\n",
		summary.Global.Reliability(), summary.Global.TotalPredictions)
	return nil
}

// score prints the reliability table, or writes it as CSV when out is set.
func (a *app) score(ctx context.Context, out string) error {
	l, err := a.ledger.Load(ctx)
	if err != nil {
		return err
	}
	records, err := a.log.Load()
	if err != nil {
		return err
	}
	rep := report.Build(l, records)
	if out == "" {
		return report.WriteText(os.Stdout, rep)
	}
	if err := report.SaveCSV(out, rep); err != nil {
		return err
	}
	logger.Info(ctx, "Reliability report written", "path", out, "entities", len(rep.Rows))
	return nil
}
