// Package main serves leverage backtests over HTTP and WebSocket:
// - /api/backtest, /api/backtest.csv: one selection as JSON or CSV
// - /api/report: leverage sensitivity ladder
// - /ws: interactive selection, latest request wins
// - Reporting (scheduled): REPORT_<instrument>.md and CSVs per instrument
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"signal-backtest-lab/internal/api"
	"signal-backtest-lab/internal/backtest"
	"signal-backtest-lab/internal/bootstrap"
	"signal-backtest-lab/internal/config"
	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/logger"
	"signal-backtest-lab/internal/observability"
	"signal-backtest-lab/internal/reporting"
	"signal-backtest-lab/internal/storage/migrations"
	pgstore "signal-backtest-lab/internal/storage/postgres"
)

func main() {
	// Load .env file if exists
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}

	// Parse flags (env vars as defaults)
	configPath := flag.String("config", os.Getenv("BACKTEST_CONFIG"), "YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	useMemory := flag.Bool("use-memory", false, "Serve the built-in sample from in-memory storage")
	migrate := flag.Bool("migrate", false, "Apply storage migrations before serving")
	requestTimeout := flag.Duration("request-timeout", 30*time.Second, "Per-request evaluation timeout")
	shutdownTimeout := flag.Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	rateLimit := flag.Float64("rate-limit", 20, "Max /api requests per second (0 disables)")
	rateBurst := flag.Int("rate-burst", 40, "Burst size for --rate-limit")
	reportDir := flag.String("report-dir", "", "Write scheduled sensitivity reports to this directory")
	reportInstruments := flag.String("report-instruments", "", "Comma-separated instruments for scheduled reports")
	reportInterval := flag.Duration("report-interval", 6*time.Hour, "Report generation interval")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if *useMemory {
		cfg.Source.Kind = config.SourceMemory
	}

	log := logger.Must(cfg.Log.Level, cfg.Log.Format)
	defer log.Sync()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing.Enabled)
	if err != nil {
		log.Fatal("init tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	if *migrate {
		if err := runMigrations(ctx, cfg, log); err != nil {
			log.Fatal("migrations failed", zap.Error(err))
		}
	}

	backend, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("open source", zap.Error(err))
	}
	defer backend.Close()

	scenario, err := cfg.Scenario.Build(domain.MinLeverage)
	if err != nil {
		log.Fatal("invalid scenario", zap.Error(err))
	}

	runner := backtest.NewRunner(backtest.RunnerOptions{
		Loader:      backend.Loader,
		Scenario:    scenario,
		MaxLeverage: cfg.Scenario.MaxLeverage,
		Logger:      log,
	})

	opts := api.Options{
		Runner:         runner,
		LoaderFor:      backend.LoaderFunc(),
		RequestTimeout: *requestTimeout,
		RateLimit:      *rateLimit,
		RateBurst:      *rateBurst,
		WS:             api.DefaultWSConfig(),
		Logger:         log,
	}
	if backend.Sheets != nil {
		opts.Sheets = backend.Sheets
	}

	apiServer := api.NewServer(opts)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpServer.RegisterOnShutdown(apiServer.Close)

	// Channel to signal completion
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("source", backend.Kind()),
			zap.Bool("fallback", cfg.Source.Fallback),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if *reportDir != "" && *reportInstruments != "" {
		go runReportScheduler(ctx, runner, splitList(*reportInstruments), *reportDir, *reportInterval, log)
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received signal, initiating graceful shutdown", zap.Stringer("signal", sig))
	case err := <-errCh:
		if err != nil {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}

	// Stop the report scheduler; HTTP requests drain below.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown timed out", zap.Error(err))
		return
	}
	log.Info("shutdown complete")
}

// runMigrations applies the schema for the configured storage backend.
func runMigrations(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	switch cfg.Source.Kind {
	case config.SourcePostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return err
		}
		log.Info("postgres migrations applied")

	case config.SourceClickhouse:
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			return err
		}
		conn.Close()
		log.Info("clickhouse migrations applied")

	default:
		log.Info("no migrations for source", zap.String("source", cfg.Source.Kind))
	}
	return nil
}

// runReportScheduler regenerates the leverage ladder for each instrument on
// every tick until ctx is canceled.
func runReportScheduler(ctx context.Context, runner *backtest.Runner, instruments []string, dir string, interval time.Duration, log *zap.Logger) {
	log.Info("starting report scheduler",
		zap.Strings("instruments", instruments),
		zap.Duration("interval", interval),
	)

	// Run immediately on start
	runReports(ctx, runner, instruments, dir, log)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runReports(ctx, runner, instruments, dir, log)
		}
	}
}

func runReports(ctx context.Context, runner *backtest.Runner, instruments []string, dir string, log *zap.Logger) {
	levels, err := reporting.ParseLevels("", runner.MaxLeverage())
	if err != nil {
		log.Error("report levels", zap.Error(err))
		return
	}
	gen := reporting.NewGenerator(runner)

	for _, instrument := range instruments {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		rep, err := gen.Generate(ctx, instrument, levels)
		if err != nil {
			log.Error("report generation failed", zap.String("instrument", instrument), zap.Error(err))
			continue
		}
		paths, err := reporting.WriteFiles(dir, rep)
		if err != nil {
			log.Error("report write failed", zap.String("instrument", instrument), zap.Error(err))
			continue
		}
		log.Info("report generated",
			zap.String("instrument", rep.Instrument),
			zap.Bool("fallback", rep.Fallback),
			zap.Int("files", len(paths)),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
