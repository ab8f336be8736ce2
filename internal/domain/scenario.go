package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scenario holds the caller-supplied parameters of a backtest run.
// None of these are embedded in the trade source.
type Scenario struct {
	Leverage         int
	StartEquity      decimal.Decimal
	EntryFeePct      decimal.Decimal // fraction of notional charged at entry
	ExitFeePct       decimal.Decimal // fraction of exit value charged at exit
	PositionFraction decimal.Decimal // fraction of equity put at risk before leverage
}

// Scenario defaults observed in production.
var (
	DefaultStartEquity      = decimal.NewFromInt(100000)
	DefaultFeePct           = decimal.RequireFromString("0.0005")
	DefaultPositionFraction = decimal.NewFromInt(1)
)

// Leverage levels offered to users.
const (
	MinLeverage = 1
	MaxLeverage = 6
)

// DefaultScenario returns the production scenario for a leverage level.
func DefaultScenario(leverage int) Scenario {
	return Scenario{
		Leverage:         leverage,
		StartEquity:      DefaultStartEquity,
		EntryFeePct:      DefaultFeePct,
		ExitFeePct:       DefaultFeePct,
		PositionFraction: DefaultPositionFraction,
	}
}

// Validate checks scenario parameters.
func (s Scenario) Validate() error {
	if s.Leverage < 1 {
		return fmt.Errorf("leverage must be positive, got %d", s.Leverage)
	}
	if !s.StartEquity.IsPositive() {
		return fmt.Errorf("start equity must be positive, got %s", s.StartEquity)
	}
	if s.EntryFeePct.IsNegative() || s.ExitFeePct.IsNegative() {
		return fmt.Errorf("fee percentages must be non-negative")
	}
	if !s.PositionFraction.IsPositive() {
		return fmt.Errorf("position fraction must be positive, got %s", s.PositionFraction)
	}
	return nil
}

// Selection identifies what the user is looking at: an instrument and a leverage level.
type Selection struct {
	Instrument string
	Leverage   int
}

// Key returns the selection key used for last-write-wins coordination.
func (s Selection) Key() string {
	return fmt.Sprintf("%s@%dx", strings.ToUpper(s.Instrument), s.Leverage)
}

// String implements fmt.Stringer.
func (s Selection) String() string {
	return s.Key()
}
