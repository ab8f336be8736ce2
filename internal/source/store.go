package source

import (
	"context"
	"fmt"

	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/storage"
)

// StoreFetcher serves the latest uploaded blob from a storage.SourceStore.
type StoreFetcher struct {
	store storage.SourceStore
}

// NewStoreFetcher creates a fetcher backed by store.
func NewStoreFetcher(store storage.SourceStore) *StoreFetcher {
	return &StoreFetcher{store: store}
}

// Fetch returns the latest blob for instrument.
func (f *StoreFetcher) Fetch(ctx context.Context, instrument string) (*domain.SourceBlob, error) {
	blob, err := f.store.GetLatest(ctx, instrument)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, instrument, err)
	}
	return blob, nil
}

// Instruments lists instruments with stored exports.
func (f *StoreFetcher) Instruments(ctx context.Context) ([]string, error) {
	return f.store.ListInstruments(ctx)
}
