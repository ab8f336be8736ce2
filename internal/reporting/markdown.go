package reporting

import (
	"fmt"
	"strings"
	"time"

	"signal-backtest-lab/internal/domain"
)

// maxWarnings caps the coercion warnings listed per run.
const maxWarnings = 20

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Backtest Report: %s\n\n", r.Instrument))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if r.Sheet != "" {
		sb.WriteString(fmt.Sprintf("Sheet: %s", r.Sheet))
		if r.Fingerprint != "" {
			sb.WriteString(fmt.Sprintf(" | Source: `%s`", r.Fingerprint))
		}
		sb.WriteString("\n\n")
	}
	if r.Fallback {
		sb.WriteString("> **Source unavailable.** Figures below are computed from the built-in sample dataset.\n\n")
	}

	// Leverage Sensitivity
	if len(r.Sensitivity) > 0 {
		sb.WriteString("## Leverage Sensitivity\n\n")
		sb.WriteString("| Leverage | Trades | End Equity | Change % | Max DD % | Win Rate % |\n")
		sb.WriteString("|----------|--------|------------|----------|----------|------------|\n")
		for _, row := range r.Sensitivity {
			sb.WriteString(fmt.Sprintf("| %dx | %d | %s | %s | %s | %s |\n",
				row.Leverage, row.NumTrades, row.EndEquity, row.CapitalChangePct, row.MaxDrawdownPct, row.WinRatePct))
		}
		sb.WriteString("\n")
	}

	for i := range r.Runs {
		writeRun(&sb, &r.Runs[i])
	}

	return sb.String()
}

// RenderRunMarkdown renders a single run.
func RenderRunMarkdown(run *RunReport) string {
	var sb strings.Builder
	writeRun(&sb, run)
	return sb.String()
}

func writeRun(sb *strings.Builder, run *RunReport) {
	s := run.Summary

	sb.WriteString(fmt.Sprintf("## %s\n\n", run.Selection))
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Start Equity | %s |\n", s.StartEquity))
	sb.WriteString(fmt.Sprintf("| End Equity | %s |\n", s.EndEquity))
	sb.WriteString(fmt.Sprintf("| Capital Change | %s%% |\n", s.CapitalChangePct))
	sb.WriteString(fmt.Sprintf("| Trades | %d |\n", s.NumTrades))
	sb.WriteString(fmt.Sprintf("| Wins / Losses / Breakeven | %d / %d / %d |\n", s.WinTrades, s.LossTrades, s.BreakEvenTrades))
	sb.WriteString(fmt.Sprintf("| Filtered | %d |\n", s.FilteredTrades))
	sb.WriteString(fmt.Sprintf("| Win Rate | %s%% |\n", s.WinRatePct))
	sb.WriteString(fmt.Sprintf("| Gross PnL | %s |\n", s.GrossPnL))
	sb.WriteString(fmt.Sprintf("| Fees | %s |\n", s.TotalFees))
	sb.WriteString(fmt.Sprintf("| Max Drawdown | %s%% |\n", s.MaxDrawdownPct))
	sb.WriteString(fmt.Sprintf("| Max Consecutive Losses | %d |\n", s.MaxConsecutiveLosses))
	sb.WriteString(fmt.Sprintf("| Period | %s to %s |\n", s.PeriodStart, s.PeriodEnd))
	sb.WriteString("\n")

	if len(run.Trades) > 0 {
		sb.WriteString("### Trades\n\n")
		sb.WriteString("| # | Entry | Exit | Side | Entry Px | Exit Px | PnL | Fees | Equity After | Outcome |\n")
		sb.WriteString("|---|-------|------|------|----------|---------|-----|------|--------------|---------|\n")
		for _, t := range run.Trades {
			exit := t.ExitDate
			if exit == "" {
				exit = domain.PeriodPlaceholder
			}
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
				t.Index, t.EntryDate, exit, t.Position, t.EntryPrice, t.ExitPrice,
				t.PnLUSDT, t.Fees, t.EquityAfter, t.Outcome))
		}
		sb.WriteString("\n")
	}

	if run.Dropped > 0 || len(run.Warnings) > 0 {
		sb.WriteString("### Data Quality\n\n")
		if run.Dropped > 0 {
			sb.WriteString(fmt.Sprintf("- %d row(s) dropped without a parseable entry date\n", run.Dropped))
		}
		for i, w := range run.Warnings {
			if i == maxWarnings {
				sb.WriteString(fmt.Sprintf("- ... %d more\n", len(run.Warnings)-maxWarnings))
				break
			}
			sb.WriteString(fmt.Sprintf("- row %d, %s = %q: %s\n", w.Row, w.Column, w.Value, w.Reason))
		}
		sb.WriteString("\n")
	}
}
