package reporting

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"signal-backtest-lab/internal/backtest"
	"signal-backtest-lab/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func trade(idx, day int, entry, exit string, filtered bool) domain.TradeRecord {
	at := time.Date(2024, 9, day, 8, 0, 0, 0, time.UTC)
	out := at.Add(6 * time.Hour)
	rec := domain.TradeRecord{
		Index:        idx,
		EntryDate:    at,
		EntryPrice:   dec(entry),
		PositionType: domain.PositionLong,
		IsFiltered:   filtered,
	}
	if exit != "" {
		px := dec(exit)
		rec.ExitPrice = &px
		rec.ExitDate = &out
	}
	return rec
}

func scenario(leverage int) domain.Scenario {
	return domain.Scenario{
		Leverage:         leverage,
		StartEquity:      dec("100000"),
		EntryFeePct:      decimal.Zero,
		ExitFeePct:       decimal.Zero,
		PositionFraction: decimal.NewFromInt(1),
	}
}

func records() []domain.TradeRecord {
	return []domain.TradeRecord{
		trade(0, 18, "100000", "105000.4", false),
		trade(1, 19, "62000", "", true),
		trade(2, 20, "100", "99", false),
	}
}

func evaluate(t *testing.T, leverage int, recs []domain.TradeRecord) *backtest.Result {
	t.Helper()
	res, err := backtest.Evaluate(domain.Selection{Instrument: "BTCUSDT", Leverage: leverage}, recs, scenario(leverage))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	return res
}

func TestNewRunReport_Rounding(t *testing.T) {
	res := evaluate(t, 1, records()[:1])
	rr := NewRunReport(res)

	if rr.Selection != "BTCUSDT@1x" {
		t.Errorf("selection: got %s", rr.Selection)
	}
	if rr.Summary.EndEquity != "105000" {
		t.Errorf("summary rounds to currency unit: got %s", rr.Summary.EndEquity)
	}
	if rr.Trades[0].PnLUSDT != "5000.40" {
		t.Errorf("trade pnl: got %s", rr.Trades[0].PnLUSDT)
	}
	if rr.Trades[0].EquityAfter != "105000.40" {
		t.Errorf("equity after: got %s", rr.Trades[0].EquityAfter)
	}
	if rr.Summary.CapitalChangePct != "5.00" {
		t.Errorf("capital change: got %s", rr.Summary.CapitalChangePct)
	}
	if rr.Summary.WinRatePct != "100.00" {
		t.Errorf("win rate: got %s", rr.Summary.WinRatePct)
	}
	// Exact values survive in the run itself.
	if !res.Run.EndEquity.Equal(dec("105000.4")) {
		t.Errorf("run end equity should not be rounded: %s", res.Run.EndEquity)
	}
}

func TestNewRunReport_FilteredAndDataset(t *testing.T) {
	res := evaluate(t, 2, records())
	res.Dataset = &domain.Dataset{
		Sheet:    "BTCUSDT",
		Dropped:  1,
		Fallback: true,
		Warnings: []domain.CoercionWarning{{Row: 4, Column: "fees", Value: "x", Reason: "not a number"}},
	}

	rr := NewRunReport(res)
	if len(rr.Trades) != 3 {
		t.Fatalf("expected 3 rows including filtered, got %d", len(rr.Trades))
	}

	filtered := rr.Trades[1]
	if !filtered.Filtered || filtered.Outcome != string(domain.OutcomeFiltered) {
		t.Errorf("filtered row: %+v", filtered)
	}
	if filtered.EquityBefore != filtered.EquityAfter || filtered.PnLUSDT != "0.00" {
		t.Errorf("filtered row should have no effect: %+v", filtered)
	}
	if filtered.ExitDate != "" || filtered.ExitPrice != "" {
		t.Errorf("absent exit should render empty: %+v", filtered)
	}

	if rr.Summary.FilteredTrades != 1 || rr.Summary.NumTrades != 2 {
		t.Errorf("counts: %+v", rr.Summary)
	}
	if !rr.Fallback || rr.Sheet != "BTCUSDT" || rr.Dropped != 1 || len(rr.Warnings) != 1 {
		t.Errorf("dataset fields not carried: %+v", rr)
	}
	if len(rr.RunID) != 64 {
		t.Errorf("run id = %q, want 64 hex chars", rr.RunID)
	}
	if NewRunReport(evaluate(t, 2, records())).RunID != "" {
		t.Error("run id requires a dataset fingerprint")
	}
}

func TestNewSummary_EmptyPeriod(t *testing.T) {
	res := evaluate(t, 1, nil)
	s := NewRunReport(res).Summary

	if s.PeriodStart != domain.PeriodPlaceholder || s.PeriodEnd != domain.PeriodPlaceholder {
		t.Errorf("empty run period: %s to %s", s.PeriodStart, s.PeriodEnd)
	}
	if s.EndEquity != "100000" || s.NumTrades != 0 {
		t.Errorf("empty run summary: %+v", s)
	}
}

func TestRenderCSV(t *testing.T) {
	rr := NewRunReport(evaluate(t, 3, records()))

	rows, err := csv.NewReader(strings.NewReader(RenderCSV(&rr))).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(tradeHeader, ",") {
		t.Errorf("header: got %v", rows[0])
	}
	if rows[2][len(rows[2])-1] != "true" {
		t.Errorf("filtered column: got %v", rows[2])
	}
}

func TestRenderMarkdown(t *testing.T) {
	res := evaluate(t, 1, records())
	rr := NewRunReport(res)
	rr.Fallback = true
	rr.Dropped = 2

	r := &Report{
		GeneratedAt: time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC),
		Instrument:  "BTCUSDT",
		Sheet:       "BTCUSDT",
		Fingerprint: "abc",
		Fallback:    true,
		Runs:        []RunReport{rr},
		Sensitivity: []SensitivityRow{{Leverage: 1, NumTrades: 2, EndEquity: "104000"}},
	}

	md := RenderMarkdown(r)
	for _, want := range []string{
		"# Backtest Report: BTCUSDT",
		"Generated: 2024-10-01T00:00:00Z",
		"Source unavailable",
		"## Leverage Sensitivity",
		"| 1x | 2 | 104000 |",
		"## BTCUSDT@1x",
		"### Trades",
		"FILTERED",
		"| 1 | 2024-09-19 08:00:00 | " + domain.PeriodPlaceholder + " |",
		"2 row(s) dropped",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

type stubRunner struct {
	fingerprints map[int]string
	calls        []int
}

func (s *stubRunner) Run(_ context.Context, sel domain.Selection) (*backtest.Result, error) {
	s.calls = append(s.calls, sel.Leverage)
	res, err := backtest.Evaluate(sel, records(), scenario(sel.Leverage))
	if err != nil {
		return nil, err
	}
	fp := "fp"
	if f, ok := s.fingerprints[sel.Leverage]; ok {
		fp = f
	}
	res.Dataset = &domain.Dataset{Instrument: sel.Instrument, Sheet: "BTCUSDT", Fingerprint: fp}
	return res, nil
}

func TestGenerator_Generate(t *testing.T) {
	runner := &stubRunner{}
	fixed := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	g := NewGenerator(runner).WithClock(func() time.Time { return fixed })

	r, err := g.Generate(context.Background(), "btcusdt", []int{3, 1, 3, 2})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if r.Instrument != "BTCUSDT" || !r.GeneratedAt.Equal(fixed) || r.Fingerprint != "fp" {
		t.Errorf("report header: %+v", r)
	}
	if len(r.Sensitivity) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(r.Sensitivity))
	}
	for i, want := range []int{1, 2, 3} {
		if r.Sensitivity[i].Leverage != want || runner.calls[i] != want {
			t.Errorf("level %d: got %d (called %d)", i, r.Sensitivity[i].Leverage, runner.calls[i])
		}
	}

	// Higher leverage amplifies the same trades.
	if r.Runs[2].Trades[0].PnLUSDT != "15001.20" {
		t.Errorf("3x pnl: got %s", r.Runs[2].Trades[0].PnLUSDT)
	}
}

func TestGenerator_SourceChanged(t *testing.T) {
	runner := &stubRunner{fingerprints: map[int]string{2: "other"}}

	_, err := NewGenerator(runner).Generate(context.Background(), "BTCUSDT", []int{1, 2})
	if err == nil || !strings.Contains(err.Error(), "source changed") {
		t.Errorf("expected source changed error, got %v", err)
	}
}

func TestGenerator_NoLevels(t *testing.T) {
	if _, err := NewGenerator(&stubRunner{}).Generate(context.Background(), "BTCUSDT", nil); err == nil {
		t.Error("expected error for empty leverage list")
	}
}

type failingRunner struct{}

var errBoom = errors.New("boom")

func (failingRunner) Run(context.Context, domain.Selection) (*backtest.Result, error) {
	return nil, errBoom
}

func TestGenerator_RunError(t *testing.T) {
	_, err := NewGenerator(failingRunner{}).Generate(context.Background(), "BTCUSDT", []int{2})
	if !errors.Is(err, errBoom) {
		t.Errorf("expected wrapped runner error, got %v", err)
	}
}

func TestWriteFiles(t *testing.T) {
	r, err := NewGenerator(&stubRunner{}).Generate(context.Background(), "BTCUSDT", []int{1, 2})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "out")
	paths, err := WriteFiles(dir, r)
	if err != nil {
		t.Fatalf("WriteFiles failed: %v", err)
	}
	if len(paths) != 4 {
		t.Fatalf("expected 4 files, got %v", paths)
	}

	for _, name := range []string{"REPORT_BTCUSDT.md", "BTCUSDT_LEVERAGE_SENSITIVITY.csv", "BTCUSDT_1x_trades.csv", "BTCUSDT_2x_trades.csv"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestParseLevels(t *testing.T) {
	tests := []struct {
		raw     string
		limit   int
		want    []int
		wantErr bool
	}{
		{"", 3, []int{1, 2, 3}, false},
		{"", 0, []int{1, 2, 3, 4, 5, 6}, false},
		{"2, 4x", 6, []int{2, 4}, false},
		{"7", 6, nil, true},
		{"0", 6, nil, true},
		{"two", 6, nil, true},
	}
	for _, tt := range tests {
		got, err := ParseLevels(tt.raw, tt.limit)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevels(%q, %d) error = %v, wantErr %v", tt.raw, tt.limit, err, tt.wantErr)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseLevels(%q, %d) = %v, want %v", tt.raw, tt.limit, got, tt.want)
		}
	}
}
