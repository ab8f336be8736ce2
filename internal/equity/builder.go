// Package equity folds ordered trades over a starting capital into an equity curve.
package equity

import (
	"fmt"

	"github.com/shopspring/decimal"

	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/pnl"
)

// Builder folds trades left to right through a pnl.Calculator.
type Builder struct {
	calc *pnl.Calculator
}

// NewBuilder creates a builder. A nil calculator uses full-equity sizing with no fees.
func NewBuilder(calc *pnl.Calculator) *Builder {
	if calc == nil {
		calc = pnl.NewCalculator(nil, pnl.FeeModel{})
	}
	return &Builder{calc: calc}
}

// Curve is the ordered output of one fold.
type Curve struct {
	StartEquity decimal.Decimal
	EndEquity   decimal.Decimal
	Trades      []domain.LeveragedTrade
}

// Build sorts a copy of records into (entry_date, index) order and folds them:
// each trade's EquityBefore is the previous trade's EquityAfter, starting at startEquity.
// The first calculator error aborts the fold and is returned with the trade's source index.
func (b *Builder) Build(startEquity decimal.Decimal, leverage int, records []domain.TradeRecord) (*Curve, error) {
	ordered := Sorted(records)

	curve := &Curve{
		StartEquity: startEquity,
		EndEquity:   startEquity,
		Trades:      make([]domain.LeveragedTrade, 0, len(ordered)),
	}

	equity := startEquity
	for _, rec := range ordered {
		lt, err := b.calc.Apply(rec, leverage, equity)
		if err != nil {
			return nil, fmt.Errorf("trade at source index %d (%s): %w",
				rec.Index, rec.EntryDate.Format("2006-01-02 15:04:05"), err)
		}
		curve.Trades = append(curve.Trades, lt)
		equity = lt.EquityAfter
	}
	curve.EndEquity = equity

	return curve, nil
}
