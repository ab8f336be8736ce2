// Package bootstrap wires the configured trade source into loaders shared by
// the command-line binaries.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"signal-backtest-lab/internal/backtest"
	"signal-backtest-lab/internal/config"
	"signal-backtest-lab/internal/sheet"
	"signal-backtest-lab/internal/source"
	chstore "signal-backtest-lab/internal/storage/clickhouse"
	"signal-backtest-lab/internal/storage/memory"
	pgstore "signal-backtest-lab/internal/storage/postgres"
)

// Backend is the loader stack for one configured source.
type Backend struct {
	// Loader reads the configured table, degrading to the sample dataset
	// when fallback is enabled.
	Loader backtest.DatasetLoader

	// Sheets lists export tables. Nil for row-level feeds.
	Sheets *source.SheetLoader

	kind     string
	logger   *zap.Logger
	fallback bool
	closers  []func()
}

// Kind returns the configured source kind.
func (b *Backend) Kind() string {
	return b.kind
}

// LoaderFor returns a loader reading the named table of the export.
// It returns nil for row-level feeds, which have no tables.
func (b *Backend) LoaderFor(name string) backtest.DatasetLoader {
	if b.Sheets == nil {
		return nil
	}
	return b.wrap(b.Sheets.WithSheet(name))
}

// LoaderFunc returns LoaderFor as a function, or nil for row-level feeds.
func (b *Backend) LoaderFunc() func(string) backtest.DatasetLoader {
	if b.Sheets == nil {
		return nil
	}
	return func(name string) backtest.DatasetLoader {
		return b.LoaderFor(name)
	}
}

// Close releases database connections.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

func (b *Backend) wrap(l source.Loader) backtest.DatasetLoader {
	if !b.fallback {
		return l
	}
	return source.NewFallbackLoader(l, b.logger)
}

// Open builds the loader stack for cfg.Source.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Backend{
		kind:     cfg.Source.Kind,
		logger:   logger,
		fallback: cfg.Source.Fallback,
	}

	if cfg.Source.Kind == config.SourceClickhouse {
		conn, err := chstore.NewConn(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		b.closers = append(b.closers, func() { conn.Close() })
		b.Loader = b.wrap(source.NewFeedLoader(chstore.NewTradeFeedStore(conn)))
		return b, nil
	}

	fetcher, err := b.fetcher(ctx, cfg)
	if err != nil {
		b.Close()
		return nil, err
	}
	if cfg.Source.CacheTTL > 0 {
		fetcher = source.NewCachingFetcher(fetcher, cfg.Source.CacheTTL)
	}

	b.Sheets = source.NewSheetLoader(source.SheetLoaderOptions{
		Fetcher: fetcher,
		Reader: sheet.NewReader(
			sheet.WithColumns(cfg.Columns),
			sheet.WithLogger(logger),
		),
		Sheet:  cfg.Source.Sheet,
		Name:   cfg.Source.Kind,
		Logger: logger,
	})
	b.Loader = b.wrap(b.Sheets)
	return b, nil
}

func (b *Backend) fetcher(ctx context.Context, cfg *config.Config) (source.Fetcher, error) {
	switch cfg.Source.Kind {
	case config.SourceHTTP:
		return source.NewHTTPFetcher(cfg.Source.URLTemplate,
			source.WithTimeout(cfg.Source.Timeout),
			source.WithMaxRetries(cfg.Source.MaxRetries),
		), nil

	case config.SourceFile:
		return source.NewFileFetcher(cfg.Source.Dir), nil

	case config.SourcePostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		return source.NewStoreFetcher(pgstore.NewSourceStore(pool)), nil

	case config.SourceMemory:
		store := memory.NewSourceStore()
		if err := store.Insert(ctx, source.Sample()); err != nil {
			return nil, fmt.Errorf("seed memory store: %w", err)
		}
		return source.NewStoreFetcher(store), nil
	}
	return nil, fmt.Errorf("unsupported source kind %q", cfg.Source.Kind)
}
