package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Statistics is the summary of one BacktestRun. Never persisted.
type Statistics struct {
	StartEquity      decimal.Decimal
	EndEquity        decimal.Decimal
	CapitalChangePct decimal.Decimal // (end - start) / start * 100

	// Counts (filtered trades excluded from NumTrades)
	NumTrades       int
	WinTradesCount  int
	LossTradesCount int
	BreakEvenCount  int
	FilteredCount   int
	WinRate         decimal.Decimal // wins / num_trades, 0 when no trades

	// Money
	GrossPnL  decimal.Decimal // sum of PnLUSDT
	TotalFees decimal.Decimal // sum of TotalFees

	// Drawdown
	MaxDrawdownPct       decimal.Decimal // worst peak-to-trough of equity, percent of peak
	MaxConsecutiveLosses int

	// Period bounds over non-filtered trades; nil when there are none.
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

// PeriodPlaceholder is rendered when a period bound is unset.
const PeriodPlaceholder = "—"
