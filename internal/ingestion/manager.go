// Package ingestion stores trade-history exports: the raw blob in a
// storage.SourceStore and the parsed rows in a storage.TradeFeedStore.
package ingestion

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/idhash"
	"signal-backtest-lab/internal/sheet"
	"signal-backtest-lab/internal/source"
	"signal-backtest-lab/internal/storage"
)

// Manager parses exports and writes them to storage.
// Re-ingesting an unchanged export is a no-op: stores reject the duplicate
// key and the manager reports it as already stored.
type Manager struct {
	reader  *sheet.Reader
	sources storage.SourceStore
	feeds   storage.TradeFeedStore
	logger  *zap.Logger
}

// ManagerOptions contains configuration for creating a Manager.
// Either store may be nil to skip that destination.
type ManagerOptions struct {
	Reader  *sheet.Reader
	Sources storage.SourceStore
	Feeds   storage.TradeFeedStore
	Logger  *zap.Logger
}

// NewManager creates a new ingestion manager.
func NewManager(opts ManagerOptions) *Manager {
	m := &Manager{
		reader:  opts.Reader,
		sources: opts.Sources,
		feeds:   opts.Feeds,
		logger:  opts.Logger,
	}
	if m.reader == nil {
		m.reader = sheet.NewReader()
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

// Result summarizes one ingested export.
type Result struct {
	Instrument  string
	Fingerprint string
	Sheet       string
	Records     int
	Dropped     int
	Warnings    int

	// BlobStored and BatchStored are false when the store already held
	// the export or the destination is not configured.
	BlobStored  bool
	BatchStored bool
}

// Ingest parses the named table of blob and stores it. The blob is parsed
// before anything is written, so an unreadable export leaves storage untouched.
func (m *Manager) Ingest(ctx context.Context, blob *domain.SourceBlob, sheetName string) (*Result, error) {
	if blob == nil || len(blob.Content) == 0 {
		return nil, fmt.Errorf("%w: empty export", storage.ErrInvalidInput)
	}

	b := *blob
	b.Instrument = source.NormalizeInstrument(b.Instrument)
	if b.Instrument == "" {
		return nil, fmt.Errorf("%w: instrument is required", storage.ErrInvalidInput)
	}
	if b.Fingerprint == "" {
		b.Fingerprint = idhash.Fingerprint(b.Content)
	}
	if !b.Format.IsValid() {
		b.Format = sheet.DetectFormat(b.Content)
	}

	ds, err := m.reader.Read(b.Content, sheetName)
	if err != nil {
		return nil, fmt.Errorf("parse %s export: %w", b.Instrument, err)
	}

	res := &Result{
		Instrument:  b.Instrument,
		Fingerprint: b.Fingerprint,
		Sheet:       ds.Sheet,
		Records:     len(ds.Records),
		Dropped:     ds.Dropped,
		Warnings:    len(ds.Warnings),
	}

	if m.sources != nil {
		stored, err := ignoreDuplicate(m.sources.Insert(ctx, &b))
		if err != nil {
			return nil, fmt.Errorf("store %s blob: %w", b.Instrument, err)
		}
		res.BlobStored = stored
	}

	// The fingerprint doubles as batch id so one export maps to one batch.
	if m.feeds != nil {
		stored, err := ignoreDuplicate(m.feeds.InsertBatch(ctx, b.Instrument, b.Fingerprint, ds.Records))
		if err != nil {
			return nil, fmt.Errorf("store %s trades: %w", b.Instrument, err)
		}
		res.BatchStored = stored
	}

	m.logger.Info("export ingested",
		zap.String("instrument", res.Instrument),
		zap.String("fingerprint", res.Fingerprint),
		zap.String("sheet", res.Sheet),
		zap.Int("records", res.Records),
		zap.Int("dropped", res.Dropped),
		zap.Int("warnings", res.Warnings),
		zap.Bool("blob_stored", res.BlobStored),
		zap.Bool("batch_stored", res.BatchStored),
	)
	return res, nil
}

func ignoreDuplicate(err error) (bool, error) {
	if errors.Is(err, storage.ErrDuplicateKey) {
		return false, nil
	}
	return err == nil, err
}
