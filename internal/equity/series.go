package equity

import (
	"iter"
	"time"

	"github.com/shopspring/decimal"

	"signal-backtest-lab/internal/domain"
)

// Points yields (time, equity) pairs for charting. The first pair is the start
// equity at the first trade's entry; each non-filtered trade contributes
// (exit_date, equity_after); trailing filtered trades carry the last equity
// forward so the series ends at the last row. Times never decrease.
func (c *Curve) Points() iter.Seq2[time.Time, decimal.Decimal] {
	return func(yield func(time.Time, decimal.Decimal) bool) {
		if len(c.Trades) == 0 {
			return
		}

		last := c.Trades[0].EntryDate
		equity := c.StartEquity
		if !yield(last, equity) {
			return
		}

		pending := false // filtered rows seen since the last emitted point
		var pendingAt time.Time
		for i := range c.Trades {
			t := &c.Trades[i]
			at := tradeTime(t)
			if at.Before(last) {
				at = last
			}

			if t.IsFiltered {
				pending = true
				pendingAt = at
				continue
			}

			pending = false
			last = at
			equity = t.EquityAfter
			if !yield(at, equity) {
				return
			}
		}

		if pending && pendingAt.After(last) {
			yield(pendingAt, equity)
		}
	}
}

// Series materializes Points.
func (c *Curve) Series() []domain.EquityPoint {
	var out []domain.EquityPoint
	for at, eq := range c.Points() {
		out = append(out, domain.EquityPoint{Time: at, Equity: eq})
	}
	return out
}

// Resample returns one point per step from the first to the last point, each
// carrying the most recent equity at or before it. Gaps render as flat lines.
func Resample(points []domain.EquityPoint, step time.Duration) []domain.EquityPoint {
	if len(points) == 0 || step <= 0 {
		return nil
	}

	start := points[0].Time.Truncate(step)
	end := points[len(points)-1].Time

	var out []domain.EquityPoint
	j := 0
	equity := points[0].Equity
	for at := start; !at.After(end); at = at.Add(step) {
		for j < len(points) && !points[j].Time.After(at) {
			equity = points[j].Equity
			j++
		}
		out = append(out, domain.EquityPoint{Time: at, Equity: equity})
	}

	if final := points[len(points)-1]; out[len(out)-1].Time.Before(final.Time) {
		out = append(out, final)
	}
	return out
}

// tradeTime is the exit date, or the entry date when the exit is absent.
func tradeTime(t *domain.LeveragedTrade) time.Time {
	if t.ExitDate != nil {
		return *t.ExitDate
	}
	return t.EntryDate
}
