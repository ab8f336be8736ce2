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

	"go.uber.org/zap"

	"signal-backtest-lab/internal/backtest"
	"signal-backtest-lab/internal/bootstrap"
	"signal-backtest-lab/internal/config"
	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/logger"
	"signal-backtest-lab/internal/observability"
	"signal-backtest-lab/internal/reporting"
	"signal-backtest-lab/internal/sheet"
	"signal-backtest-lab/internal/source"
	"signal-backtest-lab/internal/verification"
)

func main() {
	// Load .env file if exists
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(1)
	}

	configPath := flag.String("config", os.Getenv("BACKTEST_CONFIG"), "YAML config file")
	instrument := flag.String("instrument", "", "Instrument to backtest, e.g. BTCUSDT (required)")
	leverage := flag.Int("leverage", 1, "Leverage multiplier")

	// Source overrides
	file := flag.String("file", "", "Read a single xlsx/csv export instead of the configured source")
	url := flag.String("url", "", "URL template with {instrument} placeholder (switches source to http)")
	sheetName := flag.String("sheet", "", "Table name within the export (default: first)")
	noFallback := flag.Bool("no-fallback", false, "Fail instead of serving the sample dataset")

	// Scenario overrides
	startEquity := flag.String("start-equity", "", "Starting equity")
	entryFee := flag.String("entry-fee-pct", "", "Entry fee as a fraction of notional")
	exitFee := flag.String("exit-fee-pct", "", "Exit fee as a fraction of exit value")
	fraction := flag.String("position-fraction", "", "Fraction of equity at risk before leverage")

	// Output
	format := flag.String("format", "text", "Output format: text, json, csv, md")
	verify := flag.Bool("verify", false, "Check run invariants and exit non-zero on violation")
	reportDir := flag.String("report-dir", "", "Write a leverage sensitivity report to this directory")
	levels := flag.String("levels", "", "Comma-separated leverage levels for --report-dir (default: 1..max)")
	logLevel := flag.String("log-level", "", "Log level override")
	logFormat := flag.String("log-format", "console", "Log format: json, console")
	tracing := flag.Bool("tracing", false, "Export spans to stderr")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	log := logger.Must(cfg.Log.Level, *logFormat)
	defer log.Sync()

	// Validate required flags
	if *instrument == "" {
		log.Fatal("--instrument is required")
	}
	switch *format {
	case "text", "json", "csv", "md":
	default:
		log.Fatal("invalid --format, must be text, json, csv or md", zap.String("format", *format))
	}

	if *url != "" {
		cfg.Source.Kind = config.SourceHTTP
		cfg.Source.URLTemplate = *url
	}
	if *sheetName != "" {
		cfg.Source.Sheet = *sheetName
	}
	if *noFallback {
		cfg.Source.Fallback = false
	}
	for _, o := range []struct {
		flag string
		dst  *string
	}{
		{*startEquity, &cfg.Scenario.StartEquity},
		{*entryFee, &cfg.Scenario.EntryFeePct},
		{*exitFee, &cfg.Scenario.ExitFeePct},
		{*fraction, &cfg.Scenario.PositionFraction},
	} {
		if o.flag != "" {
			*o.dst = o.flag
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", zap.Stringer("signal", sig))
		cancel()
	}()

	shutdown, err := observability.InitTracing(ctx, *tracing || cfg.Tracing.Enabled)
	if err != nil {
		log.Fatal("init tracing", zap.Error(err))
	}
	defer shutdown(context.Background())

	loader, closeLoader, err := openLoader(ctx, cfg, *file, log)
	if err != nil {
		log.Fatal("open source", zap.Error(err))
	}
	defer closeLoader()

	scenario, err := cfg.Scenario.Build(*leverage)
	if err != nil {
		log.Fatal("invalid scenario", zap.Error(err))
	}

	runner := backtest.NewRunner(backtest.RunnerOptions{
		Loader:      loader,
		Scenario:    scenario,
		MaxLeverage: cfg.Scenario.MaxLeverage,
		Logger:      log,
	})

	if *reportDir != "" {
		if err := writeReport(ctx, runner, *instrument, *levels, *reportDir, log); err != nil {
			log.Fatal("report failed", zap.Error(err))
		}
		return
	}

	sel := domain.Selection{Instrument: source.NormalizeInstrument(*instrument), Leverage: *leverage}
	log.Info("running backtest",
		zap.String("selection", sel.String()),
		zap.String("source", cfg.Source.Kind),
	)

	res, err := runner.Run(ctx, sel)
	if err != nil {
		log.Fatal("backtest failed", zap.Error(err))
	}

	if *verify {
		rep := verification.Verify(res.Run)
		if !rep.OK() {
			for _, v := range rep.Violations {
				log.Error("invariant violated", zap.String("violation", v.String()))
			}
			log.Fatal("verification failed", zap.Int("violations", len(rep.Violations)))
		}
		log.Info("verification passed", zap.Int("trades", rep.TotalTrades))
	}

	rr := reporting.NewRunReport(res)
	if err := printRun(*format, &rr); err != nil {
		log.Fatal("write output", zap.Error(err))
	}
}

// openLoader returns the configured loader, or a loader over a single file.
func openLoader(ctx context.Context, cfg *config.Config, file string, log *zap.Logger) (backtest.DatasetLoader, func(), error) {
	if file == "" {
		b, err := bootstrap.Open(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return b.Loader, b.Close, nil
	}

	fetch := source.FetcherFunc(func(ctx context.Context, instrument string) (*domain.SourceBlob, error) {
		blob, err := source.ReadFile(file)
		if err != nil {
			return nil, err
		}
		blob.Instrument = instrument
		return blob, nil
	})
	loader := source.NewSheetLoader(source.SheetLoaderOptions{
		Fetcher: fetch,
		Reader:  sheet.NewReader(sheet.WithColumns(cfg.Columns), sheet.WithLogger(log)),
		Sheet:   cfg.Source.Sheet,
		Name:    "file",
		Logger:  log,
	})
	return loader, func() {}, nil
}

func writeReport(ctx context.Context, runner *backtest.Runner, instrument, levels, dir string, log *zap.Logger) error {
	ladder, err := reporting.ParseLevels(levels, runner.MaxLeverage())
	if err != nil {
		return err
	}

	rep, err := reporting.NewGenerator(runner).Generate(ctx, instrument, ladder)
	if err != nil {
		return err
	}

	paths, err := reporting.WriteFiles(dir, rep)
	if err != nil {
		return err
	}
	log.Info("report written",
		zap.String("instrument", rep.Instrument),
		zap.Ints("levels", ladder),
		zap.Bool("fallback", rep.Fallback),
		zap.Strings("files", paths),
	)
	return nil
}

// printRun writes the run to stdout in the requested format.
func printRun(format string, rr *reporting.RunReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rr)
	case "csv":
		return reporting.WriteTradesCSV(os.Stdout, rr)
	case "md":
		_, err := fmt.Print(reporting.RenderRunMarkdown(rr))
		return err
	}

	s := rr.Summary
	fmt.Println()
	fmt.Println("=== Backtest Result ===")
	fmt.Printf("Selection:          %s\n", rr.Selection)
	if rr.RunID != "" {
		fmt.Printf("Run ID:             %s\n", rr.RunID)
	}
	if rr.Sheet != "" {
		fmt.Printf("Sheet:              %s\n", rr.Sheet)
	}
	if rr.Fallback {
		fmt.Println("Source:             SAMPLE DATA (source unavailable)")
	}
	fmt.Printf("Period:             %s to %s\n", s.PeriodStart, s.PeriodEnd)
	fmt.Println()

	fmt.Println("Equity:")
	fmt.Printf("  Start:            %s\n", s.StartEquity)
	fmt.Printf("  End:              %s\n", s.EndEquity)
	fmt.Printf("  Change:           %s%%\n", s.CapitalChangePct)
	fmt.Printf("  Max Drawdown:     %s%%\n", s.MaxDrawdownPct)
	fmt.Println()

	fmt.Println("Trades:")
	fmt.Printf("  Total:            %d\n", s.NumTrades)
	fmt.Printf("  Wins:             %d\n", s.WinTrades)
	fmt.Printf("  Losses:           %d\n", s.LossTrades)
	fmt.Printf("  Break-even:       %d\n", s.BreakEvenTrades)
	fmt.Printf("  Filtered:         %d\n", s.FilteredTrades)
	fmt.Printf("  Win Rate:         %s%%\n", s.WinRatePct)
	fmt.Printf("  Max Loss Streak:  %d\n", s.MaxConsecutiveLosses)
	fmt.Printf("  Gross PnL:        %s\n", s.GrossPnL)
	fmt.Printf("  Total Fees:       %s\n", s.TotalFees)

	if rr.Dropped > 0 || len(rr.Warnings) > 0 {
		fmt.Println()
		fmt.Println("Data Quality:")
		fmt.Printf("  Dropped Rows:     %d\n", rr.Dropped)
		fmt.Printf("  Warnings:         %d\n", len(rr.Warnings))
		for _, w := range rr.Warnings {
			fmt.Printf("    row %d %s=%q: %s\n", w.Row, w.Column, w.Value, strings.TrimSpace(w.Reason))
		}
	}
	return nil
}
