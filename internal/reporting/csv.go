package reporting

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
)

var tradeHeader = []string{
	"index", "entry_date", "exit_date", "position_type", "entry_price", "exit_price",
	"notional", "pnl_usdt", "fees", "equity_before", "equity_after", "outcome", "filtered",
}

// WriteTradesCSV writes the trade table of one run.
func WriteTradesCSV(w io.Writer, run *RunReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range run.Trades {
		rec := []string{
			strconv.Itoa(t.Index),
			t.EntryDate,
			t.ExitDate,
			t.Position,
			t.EntryPrice,
			t.ExitPrice,
			t.Notional,
			t.PnLUSDT,
			t.Fees,
			t.EquityBefore,
			t.EquityAfter,
			t.Outcome,
			strconv.FormatBool(t.Filtered),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// RenderCSV renders the trade table of one run as a CSV string.
func RenderCSV(run *RunReport) string {
	var sb strings.Builder
	_ = WriteTradesCSV(&sb, run) // strings.Builder never fails
	return sb.String()
}

// RenderSensitivityCSV renders the leverage ladder as CSV.
func RenderSensitivityCSV(r *Report) string {
	var sb strings.Builder
	cw := csv.NewWriter(&sb)
	_ = cw.Write([]string{"leverage", "num_trades", "end_equity", "capital_change_pct", "max_drawdown_pct", "win_rate_pct"})
	for _, row := range r.Sensitivity {
		_ = cw.Write([]string{
			strconv.Itoa(row.Leverage),
			strconv.Itoa(row.NumTrades),
			row.EndEquity,
			row.CapitalChangePct,
			row.MaxDrawdownPct,
			row.WinRatePct,
		})
	}
	cw.Flush()
	return sb.String()
}
