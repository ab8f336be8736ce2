// Package verification checks the invariants of a built backtest run.
// A violation indicates a defect in ordering or arithmetic, not bad user data.
package verification

import (
	"fmt"

	"github.com/shopspring/decimal"

	"signal-backtest-lab/internal/domain"
)

// Rule identifies the invariant a violation breaks.
type Rule string

// Rule constants.
const (
	RuleOrdering          Rule = "ORDERING"           // entry_date ASC, index ASC
	RuleContinuity        Rule = "CONTINUITY"         // before[i+1] == after[i]
	RuleEquityIdentity    Rule = "EQUITY_IDENTITY"    // after == before + pnl - fees
	RuleFilteredNeutral   Rule = "FILTERED_NEUTRAL"   // filtered: after == before, pnl == 0
	RuleStartEquity       Rule = "START_EQUITY"       // before[0] == start
	RuleEndEquity         Rule = "END_EQUITY"         // end == after[last] or start
	RuleNonPositiveEquity Rule = "NON_POSITIVE_EQUITY" // before > 0 for non-filtered trades
)

// Violation describes one broken invariant.
type Violation struct {
	Rule     Rule
	Position int // position in run.Trades, -1 for run-level rules
	Expected string
	Actual   string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s at %d: expected %s, got %s", v.Rule, v.Position, v.Expected, v.Actual)
}

// Report contains the result of verifying one run.
type Report struct {
	TotalTrades int
	Violations  []Violation
}

// OK reports whether the run satisfied every invariant.
func (r *Report) OK() bool {
	return len(r.Violations) == 0
}

// Verify checks every invariant of run.
func Verify(run *domain.BacktestRun) *Report {
	rep := &Report{TotalTrades: len(run.Trades)}
	add := func(rule Rule, pos int, expected, actual fmt.Stringer) {
		rep.Violations = append(rep.Violations, Violation{
			Rule: rule, Position: pos, Expected: expected.String(), Actual: actual.String(),
		})
	}

	if len(run.Trades) == 0 {
		if !run.EndEquity.Equal(run.StartEquity) {
			add(RuleEndEquity, -1, run.StartEquity, run.EndEquity)
		}
		return rep
	}

	if first := run.Trades[0]; !first.EquityBefore.Equal(run.StartEquity) {
		add(RuleStartEquity, 0, run.StartEquity, first.EquityBefore)
	}

	for i := range run.Trades {
		t := &run.Trades[i]

		if i > 0 {
			prev := &run.Trades[i-1]
			if t.EntryDate.Before(prev.EntryDate) ||
				(t.EntryDate.Equal(prev.EntryDate) && t.Index < prev.Index) {
				rep.Violations = append(rep.Violations, Violation{
					Rule:     RuleOrdering,
					Position: i,
					Expected: fmt.Sprintf(">= %s #%d", prev.EntryDate.Format("2006-01-02 15:04:05"), prev.Index),
					Actual:   fmt.Sprintf("%s #%d", t.EntryDate.Format("2006-01-02 15:04:05"), t.Index),
				})
			}
			if !t.EquityBefore.Equal(prev.EquityAfter) {
				add(RuleContinuity, i, prev.EquityAfter, t.EquityBefore)
			}
		}

		if t.IsFiltered {
			if !t.EquityAfter.Equal(t.EquityBefore) {
				add(RuleFilteredNeutral, i, t.EquityBefore, t.EquityAfter)
			}
			if !t.PnLUSDT.IsZero() {
				add(RuleFilteredNeutral, i, decimal.Zero, t.PnLUSDT)
			}
			continue
		}

		if !t.EquityBefore.IsPositive() {
			add(RuleNonPositiveEquity, i, decimal.Zero, t.EquityBefore)
		}
		if want := t.EquityBefore.Add(t.PnLUSDT).Sub(t.TotalFees); !t.EquityAfter.Equal(want) {
			add(RuleEquityIdentity, i, want, t.EquityAfter)
		}
	}

	if last := run.Trades[len(run.Trades)-1]; !run.EndEquity.Equal(last.EquityAfter) {
		add(RuleEndEquity, -1, last.EquityAfter, run.EndEquity)
	}

	return rep
}

// CompareRuns reports the first position where two runs of the same input
// diverge in equity, or -1 if they agree. Used to check that re-running a
// selection is deterministic.
func CompareRuns(a, b *domain.BacktestRun) int {
	n := len(a.Trades)
	if len(b.Trades) < n {
		n = len(b.Trades)
	}
	for i := 0; i < n; i++ {
		if a.Trades[i].Index != b.Trades[i].Index ||
			!a.Trades[i].EquityAfter.Equal(b.Trades[i].EquityAfter) {
			return i
		}
	}
	if len(a.Trades) != len(b.Trades) {
		return n
	}
	return -1
}
