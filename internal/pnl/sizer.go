package pnl

import "github.com/shopspring/decimal"

// Sizer turns the capital at risk and a leverage multiplier into a position notional.
type Sizer interface {
	Notional(equityBefore decimal.Decimal, leverage int) decimal.Decimal
}

// FractionSizer risks a fixed fraction of current equity, times leverage.
// Compounds: the notional follows the equity curve.
type FractionSizer struct {
	Fraction decimal.Decimal
}

// Notional implements Sizer.
func (s FractionSizer) Notional(equityBefore decimal.Decimal, leverage int) decimal.Decimal {
	return equityBefore.Mul(s.Fraction).Mul(decimal.NewFromInt(int64(leverage)))
}

// FixedNotionalSizer trades a constant amount times leverage regardless of equity.
type FixedNotionalSizer struct {
	Amount decimal.Decimal
}

// Notional implements Sizer.
func (s FixedNotionalSizer) Notional(_ decimal.Decimal, leverage int) decimal.Decimal {
	return s.Amount.Mul(decimal.NewFromInt(int64(leverage)))
}

var (
	_ Sizer = FractionSizer{}
	_ Sizer = FixedNotionalSizer{}
)
