package pnl

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"signal-backtest-lab/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func record(pos domain.PositionType, entry, exit string) domain.TradeRecord {
	entryAt := time.Date(2024, 9, 18, 0, 0, 0, 0, time.UTC)
	exitAt := entryAt.Add(time.Hour)
	xp := d(exit)
	return domain.TradeRecord{
		EntryDate:    entryAt,
		EntryPrice:   d(entry),
		ExitDate:     &exitAt,
		ExitPrice:    &xp,
		PositionType: pos,
	}
}

func TestCalculator_Apply(t *testing.T) {
	noFees := NewCalculator(nil, FeeModel{})

	tests := []struct {
		name     string
		rec      domain.TradeRecord
		leverage int
		before   string
		pnl      string
		after    string
		outcome  domain.Outcome
	}{
		{"long win 1x", record(domain.PositionLong, "60000", "63000"), 1, "100000", "5000", "105000", domain.OutcomeWin},
		{"long win 2x", record(domain.PositionLong, "60000", "63000"), 2, "100000", "10000", "110000", domain.OutcomeWin},
		{"long loss 3x", record(domain.PositionLong, "100", "90"), 3, "1000", "-300", "700", domain.OutcomeLoss},
		{"short win", record(domain.PositionShort, "100", "90"), 1, "1000", "100", "1100", domain.OutcomeWin},
		{"short loss 2x", record(domain.PositionShort, "100", "110"), 2, "1000", "-200", "800", domain.OutcomeLoss},
		{"breakeven", record(domain.PositionLong, "100", "100"), 6, "1000", "0", "1000", domain.OutcomeBreakEven},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lt, err := noFees.Apply(tt.rec, tt.leverage, d(tt.before))
			if err != nil {
				t.Fatalf("Apply failed: %v", err)
			}
			if !lt.PnLUSDT.Equal(d(tt.pnl)) {
				t.Errorf("pnl: got %s, want %s", lt.PnLUSDT, tt.pnl)
			}
			if !lt.EquityAfter.Equal(d(tt.after)) {
				t.Errorf("equityAfter: got %s, want %s", lt.EquityAfter, tt.after)
			}
			if lt.Outcome != tt.outcome {
				t.Errorf("outcome: got %s, want %s", lt.Outcome, tt.outcome)
			}
			if lt.Leverage != tt.leverage {
				t.Errorf("leverage: got %d, want %d", lt.Leverage, tt.leverage)
			}
		})
	}
}

func TestCalculator_TwoSidedFees(t *testing.T) {
	calc := NewCalculator(nil, FeeModel{EntryPct: d("0.001"), ExitPct: d("0.002")})

	// notional 200000, return +5%: entry 200, exit 210000 * 0.002 = 420.
	lt, err := calc.Apply(record(domain.PositionLong, "60000", "63000"), 2, d("100000"))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if !lt.Notional.Equal(d("200000")) {
		t.Errorf("notional: got %s, want 200000", lt.Notional)
	}
	if !lt.TotalFees.Equal(d("620")) {
		t.Errorf("fees: got %s, want 620", lt.TotalFees)
	}
	if want := d("100000").Add(lt.PnLUSDT).Sub(lt.TotalFees); !lt.EquityAfter.Equal(want) {
		t.Errorf("equityAfter identity broken: got %s, want %s", lt.EquityAfter, want)
	}
	if !lt.NetPnL().Equal(d("9380")) {
		t.Errorf("net pnl: got %s, want 9380", lt.NetPnL())
	}
}

func TestCalculator_FeesCanTurnWinIntoNetLoss(t *testing.T) {
	calc := NewCalculator(nil, FeeModel{EntryPct: d("0.01"), ExitPct: d("0.01")})

	lt, err := calc.Apply(record(domain.PositionLong, "100", "100.5"), 1, d("1000"))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	// Classification follows gross pnl.
	if lt.Outcome != domain.OutcomeWin {
		t.Errorf("outcome: got %s, want WIN", lt.Outcome)
	}
	if !lt.EquityAfter.LessThan(d("1000")) {
		t.Errorf("fees should leave equity below start, got %s", lt.EquityAfter)
	}
}

func TestCalculator_FilteredNeutral(t *testing.T) {
	calc := NewCalculator(nil, FeeModel{EntryPct: d("0.01"), ExitPct: d("0.01")})

	recs := []domain.TradeRecord{
		{IsFiltered: true},
		func() domain.TradeRecord {
			r := record(domain.PositionLong, "100", "200")
			r.IsFiltered = true
			return r
		}(),
	}

	for i, rec := range recs {
		lt, err := calc.Apply(rec, 3, d("5000"))
		if err != nil {
			t.Fatalf("case %d: Apply failed: %v", i, err)
		}
		if !lt.PnLUSDT.IsZero() || !lt.TotalFees.IsZero() {
			t.Errorf("case %d: filtered trade has pnl=%s fees=%s", i, lt.PnLUSDT, lt.TotalFees)
		}
		if !lt.EquityAfter.Equal(lt.EquityBefore) {
			t.Errorf("case %d: filtered trade moved equity %s -> %s", i, lt.EquityBefore, lt.EquityAfter)
		}
		if lt.Outcome != domain.OutcomeFiltered {
			t.Errorf("case %d: outcome got %s", i, lt.Outcome)
		}
	}
}

func TestCalculator_Errors(t *testing.T) {
	calc := NewCalculator(nil, FeeModel{})
	missingExit := record(domain.PositionLong, "100", "110")
	missingExit.ExitPrice = nil

	tests := []struct {
		name     string
		rec      domain.TradeRecord
		leverage int
		before   string
		want     error
	}{
		{"zero leverage", record(domain.PositionLong, "100", "110"), 0, "1000", ErrInvalidLeverage},
		{"zero entry", record(domain.PositionLong, "0", "110"), 1, "1000", ErrInvalidEntryPrice},
		{"negative entry", record(domain.PositionLong, "-5", "110"), 1, "1000", ErrInvalidEntryPrice},
		{"missing exit", missingExit, 1, "1000", ErrMissingExitPrice},
		{"zero equity", record(domain.PositionLong, "100", "110"), 1, "0", ErrNonPositiveEquity},
		{"negative equity", record(domain.PositionLong, "100", "110"), 1, "-1", ErrNonPositiveEquity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := calc.Apply(tt.rec, tt.leverage, d(tt.before))
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSizers(t *testing.T) {
	half := FractionSizer{Fraction: d("0.5")}
	if got := half.Notional(d("1000"), 4); !got.Equal(d("2000")) {
		t.Errorf("FractionSizer: got %s, want 2000", got)
	}

	fixed := FixedNotionalSizer{Amount: d("250")}
	if got := fixed.Notional(d("999999"), 2); !got.Equal(d("500")) {
		t.Errorf("FixedNotionalSizer: got %s, want 500", got)
	}
}

func TestFromScenario(t *testing.T) {
	s := domain.DefaultScenario(1)
	calc := FromScenario(s)

	lt, err := calc.Apply(record(domain.PositionLong, "100", "110"), 1, d("100000"))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	// 0.05% on 100000 entry + 0.05% on 110000 exit.
	if !lt.TotalFees.Equal(d("105")) {
		t.Errorf("fees: got %s, want 105", lt.TotalFees)
	}
}

func TestRawReturn(t *testing.T) {
	if got := RawReturn(domain.PositionLong, d("50"), d("75")); !got.Equal(d("0.5")) {
		t.Errorf("long: got %s, want 0.5", got)
	}
	if got := RawReturn(domain.PositionShort, d("50"), d("75")); !got.Equal(d("-0.5")) {
		t.Errorf("short: got %s, want -0.5", got)
	}
}
