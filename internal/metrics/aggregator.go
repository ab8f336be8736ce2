// Package metrics reduces a backtest run to summary statistics.
package metrics

import (
	"time"

	"github.com/shopspring/decimal"

	"signal-backtest-lab/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Compute summarizes run in a single pass. Each trade is exactly one of
// win, loss, breakeven or filtered; filtered trades count only in FilteredCount.
// An empty run yields EndEquity = StartEquity and nil period bounds.
func Compute(run *domain.BacktestRun) domain.Statistics {
	stats := domain.Statistics{
		StartEquity:      run.StartEquity,
		EndEquity:        run.StartEquity,
		CapitalChangePct: decimal.Zero,
		WinRate:          decimal.Zero,
		GrossPnL:         decimal.Zero,
		TotalFees:        decimal.Zero,
		MaxDrawdownPct:   decimal.Zero,
	}

	var periodStart, periodEnd *time.Time
	peak := run.StartEquity
	lossStreak := 0

	for i := range run.Trades {
		t := &run.Trades[i]
		stats.EndEquity = t.EquityAfter

		if t.IsFiltered {
			stats.FilteredCount++
			continue
		}

		stats.NumTrades++
		stats.GrossPnL = stats.GrossPnL.Add(t.PnLUSDT)
		stats.TotalFees = stats.TotalFees.Add(t.TotalFees)

		switch domain.ClassifyPnL(t.PnLUSDT) {
		case domain.OutcomeWin:
			stats.WinTradesCount++
			lossStreak = 0
		case domain.OutcomeLoss:
			stats.LossTradesCount++
			lossStreak++
			if lossStreak > stats.MaxConsecutiveLosses {
				stats.MaxConsecutiveLosses = lossStreak
			}
		default:
			stats.BreakEvenCount++
		}

		// Drawdown from running peak
		if t.EquityAfter.GreaterThan(peak) {
			peak = t.EquityAfter
		} else if peak.IsPositive() {
			dd := peak.Sub(t.EquityAfter).Div(peak).Mul(hundred)
			if dd.GreaterThan(stats.MaxDrawdownPct) {
				stats.MaxDrawdownPct = dd
			}
		}

		// Period bounds
		if periodStart == nil || t.EntryDate.Before(*periodStart) {
			entry := t.EntryDate
			periodStart = &entry
		}
		end := t.EntryDate
		if t.ExitDate != nil {
			end = *t.ExitDate
		}
		if periodEnd == nil || end.After(*periodEnd) {
			periodEnd = &end
		}
	}

	stats.PeriodStart = periodStart
	stats.PeriodEnd = periodEnd

	if run.StartEquity.IsPositive() {
		stats.CapitalChangePct = stats.EndEquity.Sub(run.StartEquity).Div(run.StartEquity).Mul(hundred)
	}
	if stats.NumTrades > 0 {
		stats.WinRate = decimal.NewFromInt(int64(stats.WinTradesCount)).Div(decimal.NewFromInt(int64(stats.NumTrades)))
	}

	return stats
}

// FormatPeriod renders a period bound as a calendar date, or the placeholder when unset.
func FormatPeriod(t *time.Time) string {
	if t == nil {
		return domain.PeriodPlaceholder
	}
	return t.Format("2006-01-02")
}
