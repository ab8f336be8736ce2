package sheet

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"signal-backtest-lab/internal/domain"
)

// parseDecimal coerces a numeric cell. Text is parsed locale-agnostically.
func parseDecimal(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Zero, false
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return d, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

// parseFlag reads a filtered-discriminator cell.
func parseFlag(s string) (value bool, ok bool) {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "y", "x":
		return true, true
	case "", "false", "0", "no", "n":
		return false, true
	}
	return false, false
}

// parsePosition reads a position-type cell. A cell reading "filtered" marks the row filtered.
func parsePosition(s string) (pos domain.PositionType, filtered bool, ok bool) {
	switch strings.ToLower(s) {
	case "", "long", "buy":
		return domain.PositionLong, false, true
	case "short", "sell":
		return domain.PositionShort, false, true
	case "filtered":
		return domain.PositionLong, true, true
	}
	return domain.PositionLong, false, false
}
