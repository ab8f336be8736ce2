package reporting

import (
	"time"

	"github.com/shopspring/decimal"

	"signal-backtest-lab/internal/backtest"
	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/idhash"
)

// Display precision. Values stay exact until they reach a report.
const (
	summaryPlaces = 0 // nearest currency unit
	tradePlaces   = 2
	pctPlaces     = 2

	dateLayout = "2006-01-02 15:04:05"
)

var hundred = decimal.NewFromInt(100)

// Report is a leverage ladder over one instrument's trade history.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Instrument  string    `json:"instrument"`
	Sheet       string    `json:"sheet"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Fallback    bool      `json:"fallback"`

	Runs []RunReport `json:"runs"`

	// Sensitivity is one row per run, sorted by leverage.
	Sensitivity []SensitivityRow `json:"sensitivity"`
}

// RunReport is the presentation form of one evaluated selection.
type RunReport struct {
	RunID      string `json:"run_id,omitempty"`
	Selection  string `json:"selection"`
	Instrument string `json:"instrument"`
	Leverage   int    `json:"leverage"`
	Sheet      string `json:"sheet,omitempty"`
	Fallback   bool   `json:"fallback"`

	Summary  Summary       `json:"statistics"`
	Trades   []TradeRow    `json:"trades"`
	Series   []SeriesPoint `json:"series"`
	Warnings []WarningRow  `json:"warnings,omitempty"`
	Dropped  int           `json:"dropped_rows"`
}

// Summary holds rounded statistics.
type Summary struct {
	StartEquity          string `json:"start_equity"`
	EndEquity            string `json:"end_equity"`
	CapitalChangePct     string `json:"capital_change_pct"`
	NumTrades            int    `json:"num_trades"`
	WinTrades            int    `json:"win_trades"`
	LossTrades           int    `json:"loss_trades"`
	BreakEvenTrades      int    `json:"breakeven_trades"`
	FilteredTrades       int    `json:"filtered_trades"`
	WinRatePct           string `json:"win_rate_pct"`
	GrossPnL             string `json:"gross_pnl"`
	TotalFees            string `json:"total_fees"`
	MaxDrawdownPct       string `json:"max_drawdown_pct"`
	MaxConsecutiveLosses int    `json:"max_consecutive_losses"`
	PeriodStart          string `json:"period_start"`
	PeriodEnd            string `json:"period_end"`
}

// TradeRow is one audit row. Filtered rows are kept with zero effect.
type TradeRow struct {
	Index        int    `json:"index"`
	EntryDate    string `json:"entry_date"`
	ExitDate     string `json:"exit_date"`
	Position     string `json:"position"`
	EntryPrice   string `json:"entry_price"`
	ExitPrice    string `json:"exit_price"`
	Notional     string `json:"notional"`
	PnLUSDT      string `json:"pnl_usdt"`
	Fees         string `json:"fees"`
	EquityBefore string `json:"equity_before"`
	EquityAfter  string `json:"equity_after"`
	Outcome      string `json:"outcome"`
	Filtered     bool   `json:"filtered"`
}

// SeriesPoint is one chart point.
type SeriesPoint struct {
	Time   time.Time `json:"time"`
	Equity string    `json:"equity"`
}

// WarningRow is a coerced cell.
type WarningRow struct {
	Row    int    `json:"row"`
	Column string `json:"column"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// SensitivityRow compares leverage levels over the same trades.
type SensitivityRow struct {
	Leverage         int    `json:"leverage"`
	NumTrades        int    `json:"num_trades"`
	EndEquity        string `json:"end_equity"`
	CapitalChangePct string `json:"capital_change_pct"`
	MaxDrawdownPct   string `json:"max_drawdown_pct"`
	WinRatePct       string `json:"win_rate_pct"`
}

// NewRunReport converts an evaluated result. Rounding happens here and nowhere earlier.
func NewRunReport(res *backtest.Result) RunReport {
	sel := res.Run.Selection
	rr := RunReport{
		Selection:  sel.Key(),
		Instrument: sel.Instrument,
		Leverage:   sel.Leverage,
		Summary:    NewSummary(res.Statistics),
		Trades:     make([]TradeRow, 0, len(res.Run.Trades)),
		Series:     make([]SeriesPoint, 0, len(res.Series)),
	}

	for i := range res.Run.Trades {
		rr.Trades = append(rr.Trades, newTradeRow(&res.Run.Trades[i]))
	}
	for _, p := range res.Series {
		rr.Series = append(rr.Series, SeriesPoint{Time: p.Time, Equity: p.Equity.StringFixed(tradePlaces)})
	}

	if ds := res.Dataset; ds != nil {
		rr.RunID = idhash.ComputeRunID(sel, res.Scenario, ds.Fingerprint)
		rr.Sheet = ds.Sheet
		rr.Fallback = ds.Fallback
		rr.Dropped = ds.Dropped
		for _, w := range ds.Warnings {
			rr.Warnings = append(rr.Warnings, WarningRow{Row: w.Row, Column: w.Column, Value: w.Value, Reason: w.Reason})
		}
	}
	return rr
}

// NewSummary rounds statistics for display.
func NewSummary(s domain.Statistics) Summary {
	return Summary{
		StartEquity:          FormatMoney(s.StartEquity),
		EndEquity:            FormatMoney(s.EndEquity),
		CapitalChangePct:     FormatPct(s.CapitalChangePct),
		NumTrades:            s.NumTrades,
		WinTrades:            s.WinTradesCount,
		LossTrades:           s.LossTradesCount,
		BreakEvenTrades:      s.BreakEvenCount,
		FilteredTrades:       s.FilteredCount,
		WinRatePct:           FormatPct(s.WinRate.Mul(hundred)),
		GrossPnL:             FormatMoney(s.GrossPnL),
		TotalFees:            FormatMoney(s.TotalFees),
		MaxDrawdownPct:       FormatPct(s.MaxDrawdownPct),
		MaxConsecutiveLosses: s.MaxConsecutiveLosses,
		PeriodStart:          FormatPeriod(s.PeriodStart),
		PeriodEnd:            FormatPeriod(s.PeriodEnd),
	}
}

func newTradeRow(t *domain.LeveragedTrade) TradeRow {
	row := TradeRow{
		Index:        t.Index,
		EntryDate:    t.EntryDate.Format(dateLayout),
		Position:     t.PositionType.String(),
		EntryPrice:   t.EntryPrice.String(),
		Notional:     t.Notional.StringFixed(tradePlaces),
		PnLUSDT:      t.PnLUSDT.StringFixed(tradePlaces),
		Fees:         t.TotalFees.StringFixed(tradePlaces),
		EquityBefore: t.EquityBefore.StringFixed(tradePlaces),
		EquityAfter:  t.EquityAfter.StringFixed(tradePlaces),
		Outcome:      string(t.Outcome),
		Filtered:     t.IsFiltered,
	}
	if t.ExitDate != nil {
		row.ExitDate = t.ExitDate.Format(dateLayout)
	}
	if t.ExitPrice != nil {
		row.ExitPrice = t.ExitPrice.String()
	}
	return row
}

// FormatMoney rounds to the nearest currency unit.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(summaryPlaces)
}

// FormatPct formats a percentage with two decimals.
func FormatPct(d decimal.Decimal) string {
	return d.StringFixed(pctPlaces)
}

// FormatPeriod formats a period bound, or the placeholder when unset.
func FormatPeriod(t *time.Time) string {
	if t == nil {
		return domain.PeriodPlaceholder
	}
	return t.Format("2006-01-02")
}
