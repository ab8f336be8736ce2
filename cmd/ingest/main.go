package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"signal-backtest-lab/internal/config"
	"signal-backtest-lab/internal/ingestion"
	"signal-backtest-lab/internal/logger"
	"signal-backtest-lab/internal/sheet"
	"signal-backtest-lab/internal/source"
	"signal-backtest-lab/internal/storage"
	chstore "signal-backtest-lab/internal/storage/clickhouse"
	"signal-backtest-lab/internal/storage/memory"
	"signal-backtest-lab/internal/storage/migrations"
	pgstore "signal-backtest-lab/internal/storage/postgres"
)

func main() {
	// Load .env file if exists
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
		os.Exit(1)
	}

	// Parse flags (env vars as defaults)
	configPath := flag.String("config", os.Getenv("BACKTEST_CONFIG"), "YAML config file")
	file := flag.String("file", "", "xlsx/csv export to ingest (required)")
	instrument := flag.String("instrument", "", "Instrument symbol (default: file name without extension)")
	sheetName := flag.String("sheet", "", "Table name within the export (default: first)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string (raw blobs)")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (parsed rows)")
	migrate := flag.Bool("migrate", true, "Apply migrations before writing")
	useMemory := flag.Bool("use-memory", false, "Parse and store in memory only (dry run)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
		os.Exit(1)
	}
	log := logger.Must(cfg.Log.Level, cfg.Log.Format)
	defer log.Sync()

	// Validate required flags
	if *file == "" {
		log.Fatal("--file is required")
	}
	if *instrument == "" {
		base := filepath.Base(*file)
		*instrument = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if *sheetName == "" {
		*sheetName = cfg.Source.Sheet
	}
	if !*useMemory && *postgresDSN == "" && *clickhouseDSN == "" {
		log.Fatal("--postgres-dsn or --clickhouse-dsn is required (use --use-memory for a dry run)")
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

	blob, err := source.ReadFile(*file)
	if err != nil {
		log.Fatal("read export", zap.String("file", *file), zap.Error(err))
	}
	blob.Instrument = *instrument

	opts := ingestion.ManagerOptions{
		Reader: sheet.NewReader(sheet.WithColumns(cfg.Columns), sheet.WithLogger(log)),
		Logger: log,
	}

	if *useMemory {
		opts.Sources = memory.NewSourceStore()
		opts.Feeds = memory.NewTradeFeedStore()
	} else {
		var cleanup func()
		opts.Sources, opts.Feeds, cleanup, err = openStores(ctx, *postgresDSN, *clickhouseDSN, *migrate)
		if err != nil {
			log.Fatal("open stores", zap.Error(err))
		}
		defer cleanup()
	}

	res, err := ingestion.NewManager(opts).Ingest(ctx, blob, *sheetName)
	if err != nil {
		log.Fatal("ingest failed", zap.Error(err))
	}

	fmt.Printf("Ingested %s (%s): %d records, %d dropped, %d warnings\n",
		res.Instrument, res.Sheet, res.Records, res.Dropped, res.Warnings)
	fmt.Printf("  Fingerprint:   %s\n", res.Fingerprint)
	fmt.Printf("  Blob stored:   %t\n", res.BlobStored)
	fmt.Printf("  Batch stored:  %t\n", res.BatchStored)
}

// openStores connects the configured destinations. An empty DSN skips that store.
func openStores(ctx context.Context, postgresDSN, clickhouseDSN string, migrate bool) (storage.SourceStore, storage.TradeFeedStore, func(), error) {
	var (
		sources storage.SourceStore
		feeds   storage.TradeFeedStore
		closers []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)

		if migrate {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				cleanup()
				return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
			}
		}
		sources = pgstore.NewSourceStore(pool)
	}

	if clickhouseDSN != "" {
		// RunClickhouseMigrations returns a connection to the migrated database.
		var conn *chstore.Conn
		var err error
		if migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		} else {
			conn, err = chstore.NewConn(ctx, clickhouseDSN)
		}
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		feeds = chstore.NewTradeFeedStore(conn)
	}

	return sources, feeds, cleanup, nil
}
