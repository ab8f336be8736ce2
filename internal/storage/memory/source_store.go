package memory

import (
	"context"
	"sort"
	"sync"

	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/storage"
)

// SourceStore is an in-memory implementation of storage.SourceStore.
type SourceStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.SourceBlob // keyed by instrument, in insertion order
}

// NewSourceStore creates a new in-memory source store.
func NewSourceStore() *SourceStore {
	return &SourceStore{
		data: make(map[string][]*domain.SourceBlob),
	}
}

var _ storage.SourceStore = (*SourceStore)(nil)

// Insert adds a new blob. Returns ErrDuplicateKey if (instrument, fingerprint) exists.
func (s *SourceStore) Insert(_ context.Context, b *domain.SourceBlob) error {
	if b == nil || b.Instrument == "" || b.Fingerprint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data[b.Instrument] {
		if existing.Fingerprint == b.Fingerprint {
			return storage.ErrDuplicateKey
		}
	}

	copy := *b
	copy.Content = append([]byte(nil), b.Content...)
	s.data[b.Instrument] = append(s.data[b.Instrument], &copy)
	return nil
}

// GetLatest retrieves the most recently uploaded blob. Equal upload times
// resolve to the later insert.
func (s *SourceStore) GetLatest(_ context.Context, instrument string) (*domain.SourceBlob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blobs := s.data[instrument]
	if len(blobs) == 0 {
		return nil, storage.ErrNotFound
	}

	latest := blobs[0]
	for _, b := range blobs[1:] {
		if !b.UploadedAt.Before(latest.UploadedAt) {
			latest = b
		}
	}

	copy := *latest
	return &copy, nil
}

// ListInstruments returns all instruments with at least one blob, ordered ASC.
func (s *SourceStore) ListInstruments(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]string, 0, len(s.data))
	for instrument := range s.data {
		result = append(result, instrument)
	}
	sort.Strings(result)
	return result, nil
}
