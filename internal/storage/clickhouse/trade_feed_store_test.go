package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/storage"
)

func TestTradeFeedStore_InsertAndLoad(t *testing.T) {
	conn := setupTestDB(t)

	store := NewTradeFeedStore(conn)
	ctx := context.Background()

	entry := time.Date(2024, 9, 18, 9, 30, 0, 0, time.UTC)
	exit := entry.Add(6 * time.Hour)
	exitPrice := decimal.RequireFromString("63000.5")

	records := []domain.TradeRecord{
		{
			Index:        0,
			EntryDate:    entry,
			EntryPrice:   decimal.NewFromInt(60000),
			ExitDate:     &exit,
			ExitPrice:    &exitPrice,
			PositionType: domain.PositionLong,
			Fees:         decimal.RequireFromString("12.25"),
			SourcePnL:    decimal.RequireFromString("5000.833333333333"),
			CashBalance:  decimal.NewFromInt(105000),
			TotalEquity:  decimal.NewFromInt(105000),
		},
		{
			Index:        1,
			EntryDate:    entry.Add(24 * time.Hour),
			EntryPrice:   decimal.NewFromInt(61000),
			PositionType: domain.PositionLong,
			IsFiltered:   true,
		},
	}

	require.NoError(t, store.InsertBatch(ctx, "BTCUSDT", "batch-1", records))

	ds, err := store.Load(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "batch-1", ds.Fingerprint)
	require.Len(t, ds.Records, 2)

	got := ds.Records[0]
	assert.True(t, entry.Equal(got.EntryDate))
	require.NotNil(t, got.ExitDate)
	assert.True(t, exit.Equal(*got.ExitDate))
	require.NotNil(t, got.ExitPrice)
	assert.True(t, exitPrice.Equal(*got.ExitPrice))
	assert.True(t, records[0].SourcePnL.Equal(got.SourcePnL))
	assert.Equal(t, domain.PositionLong, got.PositionType)

	filtered := ds.Records[1]
	assert.True(t, filtered.IsFiltered)
	assert.Nil(t, filtered.ExitDate)
	assert.Nil(t, filtered.ExitPrice)
}

func TestTradeFeedStore_LatestBatchWins(t *testing.T) {
	conn := setupTestDB(t)

	store := NewTradeFeedStore(conn)
	ctx := context.Background()

	base := time.Date(2024, 9, 18, 0, 0, 0, 0, time.UTC)
	clock := base
	store.now = func() time.Time { return clock }

	rec := domain.TradeRecord{EntryDate: base, EntryPrice: decimal.NewFromInt(1), PositionType: domain.PositionLong}
	require.NoError(t, store.InsertBatch(ctx, "ETHUSDT", "old", []domain.TradeRecord{rec}))

	clock = base.Add(time.Hour)
	require.NoError(t, store.InsertBatch(ctx, "ETHUSDT", "new", []domain.TradeRecord{rec, {Index: 1, EntryDate: base, PositionType: domain.PositionLong}}))

	ds, err := store.Load(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, "new", ds.Fingerprint)
	assert.Len(t, ds.Records, 2)
}

func TestTradeFeedStore_Errors(t *testing.T) {
	conn := setupTestDB(t)

	store := NewTradeFeedStore(conn)
	ctx := context.Background()

	_, err := store.Load(ctx, "MISSING")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	rec := domain.TradeRecord{EntryDate: time.Now().UTC(), PositionType: domain.PositionLong}
	require.NoError(t, store.InsertBatch(ctx, "BTCUSDT", "b1", []domain.TradeRecord{rec}))
	err = store.InsertBatch(ctx, "BTCUSDT", "b1", []domain.TradeRecord{rec})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}
