package storage

import (
	"context"

	"signal-backtest-lab/internal/domain"
)

// SourceStore provides access to source_blobs storage.
// Instruments are stored as given; callers normalize case.
type SourceStore interface {
	// Insert adds a new blob. Returns ErrDuplicateKey if (instrument, fingerprint) exists.
	Insert(ctx context.Context, b *domain.SourceBlob) error

	// GetLatest retrieves the most recently uploaded blob for an instrument.
	// Returns ErrNotFound if none exists.
	GetLatest(ctx context.Context, instrument string) (*domain.SourceBlob, error)

	// ListInstruments returns all instruments with at least one blob, ordered ASC.
	ListInstruments(ctx context.Context) ([]string, error)
}

// TradeFeedStore provides access to signal_trades storage: normalized trade
// rows grouped into ingest batches per instrument.
type TradeFeedStore interface {
	// InsertBatch adds all records of one ingest batch. Returns ErrDuplicateKey
	// if the batch already exists for the instrument.
	InsertBatch(ctx context.Context, instrument, batch string, records []domain.TradeRecord) error

	// Load returns the latest batch for an instrument as a dataset, records
	// ordered by source index. Returns ErrNotFound if no batch exists.
	Load(ctx context.Context, instrument string) (*domain.Dataset, error)
}
