// Package backtest builds leverage-adjusted runs from normalized trade feeds.
package backtest

import (
	"errors"
	"fmt"

	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/equity"
	"signal-backtest-lab/internal/metrics"
	"signal-backtest-lab/internal/pnl"
)

// ErrInvalidScenario wraps scenario validation failures.
var ErrInvalidScenario = errors.New("invalid scenario")

// Result holds one evaluated selection.
type Result struct {
	Run        *domain.BacktestRun
	Scenario   domain.Scenario
	Statistics domain.Statistics
	Series     []domain.EquityPoint

	// Dataset is the feed the run was built from. Nil when records were
	// passed to Evaluate directly.
	Dataset *domain.Dataset
}

// Evaluate folds records under scenario and aggregates the result.
// It is pure: records are not mutated and no state survives the call.
func Evaluate(sel domain.Selection, records []domain.TradeRecord, scenario domain.Scenario) (*Result, error) {
	return EvaluateWith(sel, records, scenario, nil)
}

// EvaluateWith is Evaluate with a custom position sizer. A nil sizer uses the
// scenario's position fraction.
func EvaluateWith(sel domain.Selection, records []domain.TradeRecord, scenario domain.Scenario, sizer pnl.Sizer) (*Result, error) {
	if err := scenario.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}

	calc := pnl.FromScenario(scenario)
	if sizer != nil {
		calc = pnl.NewCalculator(sizer, pnl.FeeModel{
			EntryPct: scenario.EntryFeePct,
			ExitPct:  scenario.ExitFeePct,
		})
	}

	curve, err := equity.NewBuilder(calc).Build(scenario.StartEquity, scenario.Leverage, records)
	if err != nil {
		return nil, fmt.Errorf("build curve for %s: %w", sel, err)
	}

	run := &domain.BacktestRun{
		Selection:   sel,
		StartEquity: curve.StartEquity,
		EndEquity:   curve.EndEquity,
		Trades:      curve.Trades,
	}

	return &Result{
		Run:        run,
		Scenario:   scenario,
		Statistics: metrics.Compute(run),
		Series:     curve.Series(),
	}, nil
}
