package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/observability"
)

// ErrInvalidSelection is returned for a selection the runner refuses to evaluate.
var ErrInvalidSelection = errors.New("invalid selection")

// DatasetLoader provides the normalized trade feed for an instrument.
type DatasetLoader interface {
	Load(ctx context.Context, instrument string) (*domain.Dataset, error)
}

// RunnerOptions configures Runner.
type RunnerOptions struct {
	Loader DatasetLoader

	// Scenario supplies start equity, fees and sizing. Its leverage is
	// replaced by the selection's.
	Scenario domain.Scenario

	// MaxLeverage rejects selections above it. Zero disables the check.
	MaxLeverage int

	Logger *zap.Logger
}

// Runner loads a selection's feed and evaluates it.
type Runner struct {
	loader      DatasetLoader
	scenario    domain.Scenario
	maxLeverage int
	logger      *zap.Logger
}

// NewRunner creates a new backtest runner.
func NewRunner(opts RunnerOptions) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		loader:      opts.Loader,
		scenario:    withDefaults(opts.Scenario),
		maxLeverage: opts.MaxLeverage,
		logger:      logger,
	}
}

// withDefaults fills the unset fields of s. A zero scenario gets every
// default; otherwise zero fees are kept since they are a valid setting.
func withDefaults(s domain.Scenario) domain.Scenario {
	if s.StartEquity.IsZero() && s.EntryFeePct.IsZero() && s.ExitFeePct.IsZero() && s.PositionFraction.IsZero() {
		return domain.DefaultScenario(s.Leverage)
	}
	if s.StartEquity.IsZero() {
		s.StartEquity = domain.DefaultStartEquity
	}
	if s.PositionFraction.IsZero() {
		s.PositionFraction = domain.DefaultPositionFraction
	}
	return s
}

// Scenario returns the runner's scenario for a leverage level.
func (r *Runner) Scenario(leverage int) domain.Scenario {
	s := r.scenario
	s.Leverage = leverage
	return s
}

// WithLoader returns a copy of r reading feeds from loader.
func (r *Runner) WithLoader(loader DatasetLoader) *Runner {
	c := *r
	c.loader = loader
	return &c
}

// MaxLeverage returns the highest accepted leverage, or zero when unbounded.
func (r *Runner) MaxLeverage() int {
	return r.maxLeverage
}

// Run evaluates sel under the runner's default scenario.
func (r *Runner) Run(ctx context.Context, sel domain.Selection) (*Result, error) {
	return r.RunScenario(ctx, sel, r.Scenario(sel.Leverage))
}

// RunScenario loads the feed for sel and evaluates it under scenario.
// Scenario leverage always follows the selection.
func (r *Runner) RunScenario(ctx context.Context, sel domain.Selection, scenario domain.Scenario) (*Result, error) {
	if sel.Instrument == "" {
		return nil, fmt.Errorf("%w: instrument is required", ErrInvalidSelection)
	}
	if r.maxLeverage > 0 && sel.Leverage > r.maxLeverage {
		return nil, fmt.Errorf("%w: leverage %d exceeds maximum %d", ErrInvalidSelection, sel.Leverage, r.maxLeverage)
	}
	scenario.Leverage = sel.Leverage

	ctx, span := observability.StartSpan(ctx, "backtest.Run")
	span.SetAttributes(
		attribute.String("instrument", sel.Instrument),
		attribute.Int("leverage", sel.Leverage),
	)
	defer span.End()

	start := time.Now()

	ds, err := r.loader.Load(ctx, sel.Instrument)
	if err != nil {
		span.RecordError(err)
		observability.RecordRun(0, time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("load %s: %w", sel.Instrument, err)
	}

	// The feed may have been superseded while loading.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := Evaluate(sel, ds.Records, scenario)
	observability.RecordRun(len(ds.Records), time.Since(start).Seconds(), err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	res.Dataset = ds

	r.logger.Info("backtest evaluated",
		zap.String("instrument", sel.Instrument),
		zap.Int("leverage", sel.Leverage),
		zap.Int("rows", len(ds.Records)),
		zap.Int("dropped", ds.Dropped),
		zap.Int("warnings", len(ds.Warnings)),
		zap.Bool("fallback", ds.Fallback),
		zap.Int("trades", res.Statistics.NumTrades),
		zap.String("end_equity", res.Statistics.EndEquity.StringFixed(2)),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}
