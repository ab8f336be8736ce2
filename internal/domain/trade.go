package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionType is the direction of a trade.
type PositionType string

// Position type constants.
const (
	PositionLong  PositionType = "long"
	PositionShort PositionType = "short"
)

// String returns the string representation of PositionType.
func (p PositionType) String() string {
	return string(p)
}

// IsValid checks if the position type is a known value.
func (p PositionType) IsValid() bool {
	return p == PositionLong || p == PositionShort
}

// TradeRecord represents one historical trade as read from a trade-history source.
// Immutable after the reader produces it.
type TradeRecord struct {
	Index int // position in the source table (0-based), tie breaker for ordering

	// Entry
	EntryDate  time.Time
	EntryPrice decimal.Decimal

	// Exit (nil when absent; filtered rows may have no exit)
	ExitDate  *time.Time
	ExitPrice *decimal.Decimal

	PositionType PositionType
	Fees         decimal.Decimal // fees as exported, informational

	// Columns carried through for audit, not used by the PnL fold
	SourcePnL   decimal.Decimal // pnl_usdt as exported
	CashBalance decimal.Decimal
	TotalEquity decimal.Decimal

	// IsFiltered marks a suppressed signal: listed, but no PnL or equity effect.
	IsFiltered bool
}

// Outcome classifies a leveraged trade.
type Outcome string

// Outcome constants.
const (
	OutcomeWin       Outcome = "WIN"
	OutcomeLoss      Outcome = "LOSS"
	OutcomeBreakEven Outcome = "BREAKEVEN"
	OutcomeFiltered  Outcome = "FILTERED"
)

// LeveragedTrade is a TradeRecord re-derived under a leverage multiplier.
// Owned by exactly one BacktestRun.
type LeveragedTrade struct {
	TradeRecord

	Leverage     int
	Notional     decimal.Decimal // position size in quote currency after leverage
	RawReturn    decimal.Decimal // (exit - entry) / entry, negated for short
	PnLUSDT      decimal.Decimal // gross realized PnL, zero for filtered
	TotalFees    decimal.Decimal // entry + exit fees, zero for filtered
	EquityBefore decimal.Decimal
	EquityAfter  decimal.Decimal // EquityBefore + PnLUSDT - TotalFees
	Outcome      Outcome
}

// NetPnL returns PnLUSDT minus TotalFees.
func (t *LeveragedTrade) NetPnL() decimal.Decimal {
	return t.PnLUSDT.Sub(t.TotalFees)
}

// ClassifyPnL returns the outcome for a non-filtered trade's PnL.
func ClassifyPnL(pnl decimal.Decimal) Outcome {
	switch pnl.Sign() {
	case 1:
		return OutcomeWin
	case -1:
		return OutcomeLoss
	default:
		return OutcomeBreakEven
	}
}
