package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"signal-backtest-lab/internal/backtest"
	"signal-backtest-lab/internal/domain"
)

// Backtester evaluates one selection.
type Backtester interface {
	Run(ctx context.Context, sel domain.Selection) (*backtest.Result, error)
}

// Generator produces leverage-ladder reports for an instrument.
type Generator struct {
	runner Backtester
	now    func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(runner Backtester) *Generator {
	return &Generator{
		runner: runner,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate runs instrument at each leverage level. Levels are deduplicated
// and sorted. Every run must see the same source content.
func (g *Generator) Generate(ctx context.Context, instrument string, leverages []int) (*Report, error) {
	levels := uniqueSorted(leverages)
	if len(levels) == 0 {
		return nil, fmt.Errorf("no leverage levels")
	}

	r := &Report{
		GeneratedAt: g.now(),
		Instrument:  strings.ToUpper(strings.TrimSpace(instrument)),
	}

	for i, lev := range levels {
		res, err := g.runner.Run(ctx, domain.Selection{Instrument: instrument, Leverage: lev})
		if err != nil {
			return nil, fmt.Errorf("run %dx: %w", lev, err)
		}

		if ds := res.Dataset; ds != nil {
			if i == 0 {
				r.Sheet = ds.Sheet
				r.Fingerprint = ds.Fingerprint
				r.Fallback = ds.Fallback
			} else if ds.Fingerprint != r.Fingerprint {
				return nil, fmt.Errorf("source changed between runs: %s != %s", ds.Fingerprint, r.Fingerprint)
			}
		}

		rr := NewRunReport(res)
		r.Runs = append(r.Runs, rr)
		r.Sensitivity = append(r.Sensitivity, SensitivityRow{
			Leverage:         lev,
			NumTrades:        rr.Summary.NumTrades,
			EndEquity:        rr.Summary.EndEquity,
			CapitalChangePct: rr.Summary.CapitalChangePct,
			MaxDrawdownPct:   rr.Summary.MaxDrawdownPct,
			WinRatePct:       rr.Summary.WinRatePct,
		})
	}

	return r, nil
}

// WriteFiles writes the Markdown report, the sensitivity table and one trade
// CSV per run into dir. It returns the written paths.
func WriteFiles(dir string, r *Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	files := map[string]string{
		fmt.Sprintf("REPORT_%s.md", r.Instrument):                RenderMarkdown(r),
		fmt.Sprintf("%s_LEVERAGE_SENSITIVITY.csv", r.Instrument): RenderSensitivityCSV(r),
	}
	for i := range r.Runs {
		run := &r.Runs[i]
		files[fmt.Sprintf("%s_%dx_trades.csv", r.Instrument, run.Leverage)] = RenderCSV(run)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(files[name]), 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func uniqueSorted(levels []int) []int {
	seen := make(map[int]struct{}, len(levels))
	out := make([]int, 0, len(levels))
	for _, l := range levels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// ParseLevels parses a comma-separated leverage list. An empty list yields
// every level from MinLeverage to limit.
func ParseLevels(raw string, limit int) ([]int, error) {
	if limit < domain.MinLeverage {
		limit = domain.MaxLeverage
	}

	if strings.TrimSpace(raw) == "" {
		levels := make([]int, 0, limit)
		for l := domain.MinLeverage; l <= limit; l++ {
			levels = append(levels, l)
		}
		return levels, nil
	}

	var levels []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(part)), "x")
		n, err := strconv.Atoi(part)
		if err != nil || n < domain.MinLeverage || n > limit {
			return nil, fmt.Errorf("leverage %q must be an integer in [%d, %d]", part, domain.MinLeverage, limit)
		}
		levels = append(levels, n)
	}
	return levels, nil
}
