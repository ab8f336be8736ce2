package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/storage"
)

// TradeFeedStore implements storage.TradeFeedStore using ClickHouse.
type TradeFeedStore struct {
	conn *Conn
	now  func() time.Time
}

// NewTradeFeedStore creates a new TradeFeedStore.
func NewTradeFeedStore(conn *Conn) *TradeFeedStore {
	return &TradeFeedStore{conn: conn, now: time.Now}
}

// Compile-time interface check.
var _ storage.TradeFeedStore = (*TradeFeedStore)(nil)

// InsertBatch adds all records of one ingest batch in a single block.
// MergeTree does not enforce uniqueness, so the batch key is checked first.
func (s *TradeFeedStore) InsertBatch(ctx context.Context, instrument, batchID string, records []domain.TradeRecord) error {
	if instrument == "" || batchID == "" {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, instrument, batchID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO signal_trades (
			instrument, batch, ingested_at, row_index,
			entry_time, exit_time, entry_price, exit_price,
			position_type, fees, pnl_usdt, cash_balance, total_equity, is_filtered
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	ingestedAt := s.now().UTC()
	for _, r := range records {
		err = batch.Append(
			instrument, batchID, ingestedAt, uint32(r.Index),
			r.EntryDate, r.ExitDate, r.EntryPrice, r.ExitPrice,
			string(r.PositionType), r.Fees, r.SourcePnL, r.CashBalance, r.TotalEquity, r.IsFiltered,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// Load returns the most recently ingested batch for an instrument.
func (s *TradeFeedStore) Load(ctx context.Context, instrument string) (*domain.Dataset, error) {
	var batchID string
	err := s.conn.QueryRow(ctx, `
		SELECT batch FROM signal_trades
		WHERE instrument = ?
		ORDER BY ingested_at DESC, batch DESC
		LIMIT 1
	`, instrument).Scan(&batchID)
	if err != nil {
		return nil, storage.ErrNotFound
	}

	rows, err := s.conn.Query(ctx, `
		SELECT
			row_index, entry_time, exit_time, entry_price, exit_price,
			position_type, fees, pnl_usdt, cash_balance, total_equity, is_filtered
		FROM signal_trades
		WHERE instrument = ? AND batch = ?
		ORDER BY row_index ASC
	`, instrument, batchID)
	if err != nil {
		return nil, fmt.Errorf("query batch: %w", err)
	}
	defer rows.Close()

	records, err := scanTradeRecords(rows)
	if err != nil {
		return nil, err
	}

	return &domain.Dataset{
		Instrument:  instrument,
		Records:     records,
		Fingerprint: batchID,
	}, nil
}

// exists checks if a batch was already ingested for the instrument.
func (s *TradeFeedStore) exists(ctx context.Context, instrument, batchID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count(*) FROM signal_trades
		WHERE instrument = ? AND batch = ?
	`, instrument, batchID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanTradeRecords(rows chRows) ([]domain.TradeRecord, error) {
	var records []domain.TradeRecord

	for rows.Next() {
		var (
			r         domain.TradeRecord
			index     uint32
			exitTime  *time.Time
			exitPrice *decimal.Decimal
			position  string
		)
		err := rows.Scan(
			&index, &r.EntryDate, &exitTime, &r.EntryPrice, &exitPrice,
			&position, &r.Fees, &r.SourcePnL, &r.CashBalance, &r.TotalEquity, &r.IsFiltered,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		r.Index = int(index)
		r.EntryDate = r.EntryDate.UTC()
		if exitTime != nil {
			t := exitTime.UTC()
			r.ExitDate = &t
		}
		r.ExitPrice = exitPrice
		r.PositionType = domain.PositionType(position)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return records, nil
}
