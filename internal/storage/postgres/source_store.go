package postgres

import (
	"context"
	"fmt"

	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/storage"
)

// SourceStore implements storage.SourceStore using PostgreSQL.
type SourceStore struct {
	pool *Pool
}

// NewSourceStore creates a new SourceStore.
func NewSourceStore(pool *Pool) *SourceStore {
	return &SourceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SourceStore = (*SourceStore)(nil)

// Insert adds a new blob. Returns ErrDuplicateKey if (instrument, fingerprint) exists.
// A zero UploadedAt is stamped by the database.
func (s *SourceStore) Insert(ctx context.Context, b *domain.SourceBlob) error {
	if b == nil || b.Instrument == "" || b.Fingerprint == "" || !b.Format.IsValid() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO source_blobs (instrument, fingerprint, format, content, uploaded_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`

	var uploadedAt any
	if !b.UploadedAt.IsZero() {
		uploadedAt = b.UploadedAt
	}

	_, err := s.pool.Exec(ctx, query,
		b.Instrument, b.Fingerprint, string(b.Format), b.Content, uploadedAt,
	)
	return translate("insert source blob", err)
}

// GetLatest retrieves the most recently uploaded blob for an instrument.
func (s *SourceStore) GetLatest(ctx context.Context, instrument string) (*domain.SourceBlob, error) {
	query := `
		SELECT instrument, fingerprint, format, content, uploaded_at
		FROM source_blobs
		WHERE instrument = $1
		ORDER BY uploaded_at DESC, fingerprint DESC
		LIMIT 1
	`

	var (
		b      domain.SourceBlob
		format string
	)
	err := s.pool.QueryRow(ctx, query, instrument).Scan(
		&b.Instrument, &b.Fingerprint, &format, &b.Content, &b.UploadedAt,
	)
	if err != nil {
		return nil, translate("get latest source blob", err)
	}
	b.Format = domain.SourceFormat(format)
	b.UploadedAt = b.UploadedAt.UTC()

	return &b, nil
}

// ListInstruments returns all instruments with at least one blob, ordered ASC.
func (s *SourceStore) ListInstruments(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT instrument FROM source_blobs ORDER BY instrument ASC`)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var instrument string
		if err := rows.Scan(&instrument); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		result = append(result, instrument)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instruments: %w", err)
	}
	return result, nil
}
