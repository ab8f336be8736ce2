package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/pnl"
)

type stubLoader struct {
	ds    *domain.Dataset
	err   error
	calls []string
}

func (s *stubLoader) Load(_ context.Context, instrument string) (*domain.Dataset, error) {
	s.calls = append(s.calls, instrument)
	if s.err != nil {
		return nil, s.err
	}
	return s.ds, nil
}

func day(d int) time.Time {
	return time.Date(2024, 9, d, 0, 0, 0, 0, time.UTC)
}

func trade(idx int, entry time.Time, entryPrice, exitPrice int64) domain.TradeRecord {
	exit := entry.Add(12 * time.Hour)
	xp := decimal.NewFromInt(exitPrice)
	return domain.TradeRecord{
		Index:        idx,
		EntryDate:    entry,
		EntryPrice:   decimal.NewFromInt(entryPrice),
		ExitDate:     &exit,
		ExitPrice:    &xp,
		PositionType: domain.PositionLong,
	}
}

func noFees(leverage int) domain.Scenario {
	s := domain.DefaultScenario(leverage)
	s.EntryFeePct = decimal.Zero
	s.ExitFeePct = decimal.Zero
	return s
}

func TestEvaluate_ScenarioExample(t *testing.T) {
	records := []domain.TradeRecord{
		trade(0, day(1), 60000, 63000),
		trade(1, day(3), 63000, 61000),
	}
	sel := domain.Selection{Instrument: "BTCUSDT", Leverage: 2}

	res, err := Evaluate(sel, records, domain.DefaultScenario(2))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	a, b := res.Run.Trades[0], res.Run.Trades[1]
	if !a.PnLUSDT.IsPositive() {
		t.Errorf("trade A pnl should be positive, got %s", a.PnLUSDT)
	}
	if !a.EquityAfter.GreaterThan(decimal.NewFromInt(100000)) {
		t.Errorf("trade A equityAfter should exceed 100000, got %s", a.EquityAfter)
	}
	if !b.EquityBefore.Equal(a.EquityAfter) {
		t.Errorf("trade B must enter at A's equityAfter: %s != %s", b.EquityBefore, a.EquityAfter)
	}
	if !b.PnLUSDT.IsNegative() {
		t.Errorf("trade B pnl should be negative, got %s", b.PnLUSDT)
	}
	if !res.Statistics.EndEquity.Equal(b.EquityAfter) {
		t.Errorf("endEquity %s != equityAfter_B %s", res.Statistics.EndEquity, b.EquityAfter)
	}
	if res.Statistics.WinTradesCount != 1 || res.Statistics.LossTradesCount != 1 {
		t.Errorf("expected 1 win 1 loss, got %d/%d", res.Statistics.WinTradesCount, res.Statistics.LossTradesCount)
	}
	if res.Run.Selection != sel {
		t.Errorf("selection not carried: %v", res.Run.Selection)
	}
	if len(res.Series) != 3 {
		t.Errorf("expected 3 series points, got %d", len(res.Series))
	}
}

func TestEvaluate_LeverageScalesPnL(t *testing.T) {
	records := []domain.TradeRecord{trade(0, day(1), 60000, 63000)}

	one, err := Evaluate(domain.Selection{Instrument: "X", Leverage: 1}, records, noFees(1))
	if err != nil {
		t.Fatalf("Evaluate 1x: %v", err)
	}
	three, err := Evaluate(domain.Selection{Instrument: "X", Leverage: 3}, records, noFees(3))
	if err != nil {
		t.Fatalf("Evaluate 3x: %v", err)
	}

	// 5% move on 100000: 5000 at 1x, 15000 at 3x.
	if !one.Run.Trades[0].PnLUSDT.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("1x pnl: got %s, want 5000", one.Run.Trades[0].PnLUSDT)
	}
	if !three.Run.Trades[0].PnLUSDT.Equal(decimal.NewFromInt(15000)) {
		t.Errorf("3x pnl: got %s, want 15000", three.Run.Trades[0].PnLUSDT)
	}
}

func TestEvaluate_InputNotMutated(t *testing.T) {
	records := []domain.TradeRecord{
		trade(0, day(5), 100, 110),
		trade(1, day(1), 100, 90),
	}

	if _, err := Evaluate(domain.Selection{Instrument: "X", Leverage: 1}, records, noFees(1)); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if records[0].Index != 0 || records[1].Index != 1 {
		t.Error("Evaluate reordered the caller's slice")
	}
}

func TestEvaluate_InvalidScenario(t *testing.T) {
	s := domain.DefaultScenario(0)
	if _, err := Evaluate(domain.Selection{Instrument: "X"}, nil, s); !errors.Is(err, ErrInvalidScenario) {
		t.Errorf("expected ErrInvalidScenario for zero leverage, got %v", err)
	}
}

func TestEvaluateWith_FixedSizer(t *testing.T) {
	records := []domain.TradeRecord{
		trade(0, day(1), 100, 110),
		trade(1, day(2), 100, 110),
	}
	sizer := pnl.FixedNotionalSizer{Amount: decimal.NewFromInt(1000)}

	res, err := EvaluateWith(domain.Selection{Instrument: "X", Leverage: 1}, records, noFees(1), sizer)
	if err != nil {
		t.Fatalf("EvaluateWith: %v", err)
	}
	for i, lt := range res.Run.Trades {
		if !lt.PnLUSDT.Equal(decimal.NewFromInt(100)) {
			t.Errorf("trade %d: fixed notional pnl got %s, want 100", i, lt.PnLUSDT)
		}
	}
}

func TestRunner_Run(t *testing.T) {
	loader := &stubLoader{ds: &domain.Dataset{
		Instrument: "BTCUSDT",
		Records: []domain.TradeRecord{
			trade(0, day(1), 60000, 63000),
			{Index: 1, EntryDate: day(2), IsFiltered: true, PositionType: domain.PositionLong},
		},
	}}

	runner := NewRunner(RunnerOptions{Loader: loader, Scenario: noFees(1)})

	res, err := runner.Run(context.Background(), domain.Selection{Instrument: "BTCUSDT", Leverage: 2})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(loader.calls) != 1 || loader.calls[0] != "BTCUSDT" {
		t.Errorf("unexpected loader calls %v", loader.calls)
	}
	if res.Dataset != loader.ds {
		t.Error("result should reference the loaded dataset")
	}
	if res.Statistics.NumTrades != 1 || res.Statistics.FilteredCount != 1 {
		t.Errorf("expected 1 trade + 1 filtered, got %d/%d", res.Statistics.NumTrades, res.Statistics.FilteredCount)
	}
	// Leverage follows the selection, not the configured scenario.
	if !res.Run.Trades[0].PnLUSDT.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("expected 2x pnl 10000, got %s", res.Run.Trades[0].PnLUSDT)
	}
}

func TestRunner_Errors(t *testing.T) {
	boom := errors.New("boom")
	runner := NewRunner(RunnerOptions{Loader: &stubLoader{err: boom}, MaxLeverage: domain.MaxLeverage})
	ctx := context.Background()

	if _, err := runner.Run(ctx, domain.Selection{Instrument: "BTCUSDT", Leverage: 1}); !errors.Is(err, boom) {
		t.Errorf("expected loader error, got %v", err)
	}
	if _, err := runner.Run(ctx, domain.Selection{Leverage: 1}); !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("expected ErrInvalidSelection for empty instrument, got %v", err)
	}
	if _, err := runner.Run(ctx, domain.Selection{Instrument: "BTCUSDT", Leverage: 7}); !errors.Is(err, ErrInvalidSelection) {
		t.Errorf("expected ErrInvalidSelection above max leverage, got %v", err)
	}
}

func TestRunner_DefaultScenario(t *testing.T) {
	runner := NewRunner(RunnerOptions{Loader: &stubLoader{}})

	s := runner.Scenario(4)
	if s.Leverage != 4 {
		t.Errorf("expected leverage 4, got %d", s.Leverage)
	}
	if !s.StartEquity.Equal(domain.DefaultStartEquity) {
		t.Errorf("expected default start equity, got %s", s.StartEquity)
	}
	if !s.EntryFeePct.Equal(domain.DefaultFeePct) || !s.ExitFeePct.Equal(domain.DefaultFeePct) {
		t.Errorf("expected default fees, got %s / %s", s.EntryFeePct, s.ExitFeePct)
	}
}

func TestRunner_PartialScenarioKeepsSetFields(t *testing.T) {
	custom := decimal.RequireFromString("0.001")
	scenario := domain.Scenario{EntryFeePct: custom, ExitFeePct: decimal.Zero}
	runner := NewRunner(RunnerOptions{Loader: &stubLoader{}, Scenario: scenario})

	s := runner.Scenario(2)
	if !s.StartEquity.Equal(domain.DefaultStartEquity) {
		t.Errorf("expected default start equity, got %s", s.StartEquity)
	}
	if !s.PositionFraction.Equal(domain.DefaultPositionFraction) {
		t.Errorf("expected default position fraction, got %s", s.PositionFraction)
	}
	if !s.EntryFeePct.Equal(custom) {
		t.Errorf("entry fee was replaced: got %s", s.EntryFeePct)
	}
	if !s.ExitFeePct.IsZero() {
		t.Errorf("zero exit fee was replaced: got %s", s.ExitFeePct)
	}
}

func TestRunner_WithLoader(t *testing.T) {
	first := &stubLoader{ds: &domain.Dataset{}}
	second := &stubLoader{ds: &domain.Dataset{}}

	base := NewRunner(RunnerOptions{Loader: first, MaxLeverage: 3})
	swapped := base.WithLoader(second)

	if _, err := swapped.Run(context.Background(), domain.Selection{Instrument: "ETHUSDT", Leverage: 1}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(first.calls) != 0 || len(second.calls) != 1 {
		t.Errorf("expected only the swapped loader to be used, got %v / %v", first.calls, second.calls)
	}
	if swapped.MaxLeverage() != 3 {
		t.Errorf("copy should keep max leverage, got %d", swapped.MaxLeverage())
	}
}
