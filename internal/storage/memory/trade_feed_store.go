package memory

import (
	"context"
	"sync"

	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/storage"
)

type feedBatch struct {
	id      string
	records []domain.TradeRecord
}

// TradeFeedStore is an in-memory implementation of storage.TradeFeedStore.
type TradeFeedStore struct {
	mu   sync.RWMutex
	data map[string][]feedBatch // keyed by instrument, in insertion order
}

// NewTradeFeedStore creates a new in-memory trade feed store.
func NewTradeFeedStore() *TradeFeedStore {
	return &TradeFeedStore{
		data: make(map[string][]feedBatch),
	}
}

var _ storage.TradeFeedStore = (*TradeFeedStore)(nil)

// InsertBatch adds all records of one ingest batch. Returns ErrDuplicateKey if the batch exists.
func (s *TradeFeedStore) InsertBatch(_ context.Context, instrument, batch string, records []domain.TradeRecord) error {
	if instrument == "" || batch == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.data[instrument] {
		if b.id == batch {
			return storage.ErrDuplicateKey
		}
	}

	s.data[instrument] = append(s.data[instrument], feedBatch{
		id:      batch,
		records: append([]domain.TradeRecord(nil), records...),
	})
	return nil
}

// Load returns the latest batch for an instrument.
func (s *TradeFeedStore) Load(_ context.Context, instrument string) (*domain.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batches := s.data[instrument]
	if len(batches) == 0 {
		return nil, storage.ErrNotFound
	}

	latest := batches[len(batches)-1]
	return &domain.Dataset{
		Instrument:  instrument,
		Records:     append([]domain.TradeRecord(nil), latest.records...),
		Fingerprint: latest.id,
	}, nil
}
