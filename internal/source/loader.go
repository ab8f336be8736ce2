package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/observability"
	"signal-backtest-lab/internal/sheet"
	"signal-backtest-lab/internal/storage"
)

// Loader provides the normalized trade feed for an instrument.
type Loader interface {
	Load(ctx context.Context, instrument string) (*domain.Dataset, error)
}

// SheetLoaderOptions configures SheetLoader.
type SheetLoaderOptions struct {
	Fetcher Fetcher
	Reader  *sheet.Reader // nil uses default column bindings
	Sheet   string        // empty selects the first table
	Name    string        // metrics label, e.g. "http"
	Logger  *zap.Logger
}

// SheetLoader fetches an export and parses one of its tables.
type SheetLoader struct {
	fetcher Fetcher
	reader  *sheet.Reader
	sheet   string
	name    string
	logger  *zap.Logger
}

// NewSheetLoader creates a SheetLoader.
func NewSheetLoader(opts SheetLoaderOptions) *SheetLoader {
	l := &SheetLoader{
		fetcher: opts.Fetcher,
		reader:  opts.Reader,
		sheet:   opts.Sheet,
		name:    opts.Name,
		logger:  opts.Logger,
	}
	if l.reader == nil {
		l.reader = sheet.NewReader()
	}
	if l.name == "" {
		l.name = "sheet"
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	return l
}

// WithSheet returns a copy of l reading a different table.
func (l *SheetLoader) WithSheet(name string) *SheetLoader {
	c := *l
	c.sheet = name
	return &c
}

// Load fetches and parses the export for instrument.
func (l *SheetLoader) Load(ctx context.Context, instrument string) (*domain.Dataset, error) {
	instrument = NormalizeInstrument(instrument)

	blob, err := l.fetch(ctx, instrument)
	if err != nil {
		return nil, err
	}

	ds, err := l.reader.Read(blob.Content, l.sheet)
	if err != nil {
		return nil, fmt.Errorf("read %s export: %w", instrument, err)
	}
	ds.Instrument = instrument
	ds.Fingerprint = blob.Fingerprint

	observability.RecordParse(len(ds.Records), ds.Dropped, len(ds.Warnings))
	return ds, nil
}

// Sheets lists the tables of the export for instrument.
func (l *SheetLoader) Sheets(ctx context.Context, instrument string) ([]string, error) {
	blob, err := l.fetch(ctx, NormalizeInstrument(instrument))
	if err != nil {
		return nil, err
	}
	return l.reader.Sheets(blob.Content)
}

func (l *SheetLoader) fetch(ctx context.Context, instrument string) (*domain.SourceBlob, error) {
	ctx, span := observability.StartSpan(ctx, "source.Fetch")
	span.SetAttributes(
		attribute.String("instrument", instrument),
		attribute.String("source", l.name),
	)
	defer span.End()

	start := time.Now()
	blob, err := l.fetcher.Fetch(ctx, instrument)
	observability.RecordFetch(l.name, time.Since(start).Seconds(), err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	l.logger.Debug("source fetched",
		zap.String("instrument", instrument),
		zap.String("source", l.name),
		zap.String("fingerprint", blob.Fingerprint),
		zap.Int("bytes", len(blob.Content)),
		zap.Duration("duration", time.Since(start)),
	)
	return blob, nil
}

// FeedLoader serves datasets ingested into a storage.TradeFeedStore.
type FeedLoader struct {
	store storage.TradeFeedStore
}

// NewFeedLoader creates a loader backed by store.
func NewFeedLoader(store storage.TradeFeedStore) *FeedLoader {
	return &FeedLoader{store: store}
}

// Load returns the latest ingested batch for instrument.
func (l *FeedLoader) Load(ctx context.Context, instrument string) (*domain.Dataset, error) {
	instrument = NormalizeInstrument(instrument)

	start := time.Now()
	ds, err := l.store.Load(ctx, instrument)
	observability.RecordFetch("feed", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("%w: feed %s: %w", ErrFetchFailed, instrument, err)
	}
	return ds, nil
}

// FallbackLoader serves the built-in sample dataset when the wrapped loader
// cannot reach its source. Structural errors (missing sheet, missing entry
// date column) and cancellation are returned unchanged.
type FallbackLoader struct {
	next   Loader
	reader *sheet.Reader
	logger *zap.Logger
}

// NewFallbackLoader wraps next.
func NewFallbackLoader(next Loader, logger *zap.Logger) *FallbackLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackLoader{
		next:   next,
		reader: sheet.NewReader(),
		logger: logger,
	}
}

// Load delegates to the wrapped loader and degrades to the sample on fetch failure.
func (l *FallbackLoader) Load(ctx context.Context, instrument string) (*domain.Dataset, error) {
	ds, err := l.next.Load(ctx, instrument)
	if err == nil {
		return ds, nil
	}
	if ctx.Err() != nil || !ShouldFallback(err) {
		return nil, err
	}

	l.logger.Warn("source unavailable, serving sample dataset",
		zap.String("instrument", instrument),
		zap.Error(err),
	)
	observability.RecordFallback()

	sample, serr := l.reader.Read(Sample().Content, "")
	if serr != nil {
		return nil, fmt.Errorf("read sample dataset: %w (after %w)", serr, err)
	}
	sample.Instrument = NormalizeInstrument(instrument)
	sample.Fingerprint = Sample().Fingerprint
	sample.Fallback = true
	return sample, nil
}

// ShouldFallback reports whether err is a fetch or open failure rather than a
// structural problem with a readable export.
func ShouldFallback(err error) bool {
	return errors.Is(err, ErrFetchFailed) || errors.Is(err, sheet.ErrSourceUnavailable)
}
