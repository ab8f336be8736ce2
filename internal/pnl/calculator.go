// Package pnl computes leverage-adjusted profit and loss for single trades.
package pnl

import (
	"errors"

	"github.com/shopspring/decimal"

	"signal-backtest-lab/internal/domain"
)

// Calculator errors
var (
	ErrInvalidLeverage   = errors.New("leverage must be at least 1")
	ErrInvalidEntryPrice = errors.New("entry price must be positive")
	ErrMissingExitPrice  = errors.New("exit price missing for non-filtered trade")
	ErrNonPositiveEquity = errors.New("equity before trade is not positive")
)

// FeeModel charges a percentage of notional at entry and a percentage of the
// position's exit value at exit.
type FeeModel struct {
	EntryPct decimal.Decimal
	ExitPct  decimal.Decimal
}

// Fees returns entry + exit fees for a position of notional size closing at rawReturn.
func (m FeeModel) Fees(notional, rawReturn decimal.Decimal) decimal.Decimal {
	entry := notional.Mul(m.EntryPct)
	exitValue := notional.Mul(decimal.NewFromInt(1).Add(rawReturn))
	exit := exitValue.Abs().Mul(m.ExitPct)
	return entry.Add(exit)
}

// Calculator applies one trade to the equity currently at risk.
// It is stateless; ordering is the caller's contract.
type Calculator struct {
	sizer Sizer
	fees  FeeModel
}

// NewCalculator creates a calculator. A nil sizer means full equity per trade.
func NewCalculator(sizer Sizer, fees FeeModel) *Calculator {
	if sizer == nil {
		sizer = FractionSizer{Fraction: decimal.NewFromInt(1)}
	}
	return &Calculator{sizer: sizer, fees: fees}
}

// FromScenario builds the production calculator for a scenario.
func FromScenario(s domain.Scenario) *Calculator {
	return NewCalculator(
		FractionSizer{Fraction: s.PositionFraction},
		FeeModel{EntryPct: s.EntryFeePct, ExitPct: s.ExitFeePct},
	)
}

// Apply derives the leveraged economics of rec entered with equityBefore.
// Filtered trades pass equity through untouched and never validate prices.
func (c *Calculator) Apply(rec domain.TradeRecord, leverage int, equityBefore decimal.Decimal) (domain.LeveragedTrade, error) {
	lt := domain.LeveragedTrade{
		TradeRecord:  rec,
		Leverage:     leverage,
		EquityBefore: equityBefore,
		EquityAfter:  equityBefore,
	}

	if leverage < 1 {
		return lt, ErrInvalidLeverage
	}

	if rec.IsFiltered {
		lt.Outcome = domain.OutcomeFiltered
		return lt, nil
	}

	if !rec.EntryPrice.IsPositive() {
		return lt, ErrInvalidEntryPrice
	}
	if rec.ExitPrice == nil {
		return lt, ErrMissingExitPrice
	}
	if !equityBefore.IsPositive() {
		return lt, ErrNonPositiveEquity
	}

	rawReturn := RawReturn(rec.PositionType, rec.EntryPrice, *rec.ExitPrice)
	notional := c.sizer.Notional(equityBefore, leverage)
	pnl := notional.Mul(rawReturn)
	fees := c.fees.Fees(notional, rawReturn)

	lt.Notional = notional
	lt.RawReturn = rawReturn
	lt.PnLUSDT = pnl
	lt.TotalFees = fees
	lt.EquityAfter = equityBefore.Add(pnl).Sub(fees)
	lt.Outcome = domain.ClassifyPnL(pnl)
	return lt, nil
}

// RawReturn is (exit - entry) / entry for long positions, negated for short.
func RawReturn(pos domain.PositionType, entry, exit decimal.Decimal) decimal.Decimal {
	r := exit.Sub(entry).Div(entry)
	if pos == domain.PositionShort {
		return r.Neg()
	}
	return r
}
