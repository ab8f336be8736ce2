package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"signal-backtest-lab/internal/backtest"
	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/equity"
	"signal-backtest-lab/internal/reporting"
	"signal-backtest-lab/internal/source"
)

// runRequest is a parsed backtest request.
type runRequest struct {
	Selection domain.Selection
	Scenario  domain.Scenario
	Sheet     string

	// Step resamples the equity series to a fixed interval. Zero keeps one
	// point per closed trade.
	Step time.Duration
}

// key identifies the request for last-write-wins coordination.
func (q runRequest) key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s", q.Selection.Key(), q.Sheet,
		q.Scenario.StartEquity, q.Scenario.EntryFeePct, q.Scenario.ExitFeePct, q.Scenario.PositionFraction, q.Step)
}

// requestParams carries raw parameters from a query string or a WS message.
type requestParams struct {
	Instrument       string
	Leverage         string
	StartEquity      string
	EntryFeePct      string
	ExitFeePct       string
	PositionFraction string
	Sheet            string
	Step             string
}

func queryParams(r *http.Request) requestParams {
	q := r.URL.Query()
	return requestParams{
		Instrument:       q.Get("instrument"),
		Leverage:         q.Get("leverage"),
		StartEquity:      q.Get("start_equity"),
		EntryFeePct:      q.Get("entry_fee_pct"),
		ExitFeePct:       q.Get("exit_fee_pct"),
		PositionFraction: q.Get("position_fraction"),
		Sheet:            q.Get("sheet"),
		Step:             q.Get("step"),
	}
}

// minStep bounds resampling so a tiny step cannot blow up the response.
const minStep = time.Minute

// parseStep accepts Go durations plus a whole-day form such as "1d".
func parseStep(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return 0, nil
	}
	var step time.Duration
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("%w: step %q is not a duration", errBadRequest, raw)
		}
		step = time.Duration(n) * 24 * time.Hour
	} else {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("%w: step %q is not a duration", errBadRequest, raw)
		}
		step = d
	}
	if step < minStep {
		return 0, fmt.Errorf("%w: step must be at least %s", errBadRequest, minStep)
	}
	return step, nil
}

// parse validates p against the runner's scenario defaults.
func (s *Server) parse(p requestParams) (runRequest, error) {
	instrument := source.NormalizeInstrument(p.Instrument)
	if instrument == "" {
		return runRequest{}, fmt.Errorf("%w: instrument is required", errBadRequest)
	}

	leverage := domain.MinLeverage
	if p.Leverage != "" {
		n, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(p.Leverage)), "x"))
		if err != nil {
			return runRequest{}, fmt.Errorf("%w: leverage %q is not an integer", errBadRequest, p.Leverage)
		}
		leverage = n
	}
	if leverage < domain.MinLeverage {
		return runRequest{}, fmt.Errorf("%w: leverage must be at least %d", errBadRequest, domain.MinLeverage)
	}
	if limit := s.runner.MaxLeverage(); limit > 0 && leverage > limit {
		return runRequest{}, fmt.Errorf("%w: leverage must be at most %d", errBadRequest, limit)
	}

	if p.Sheet != "" && s.loaderFor == nil {
		return runRequest{}, fmt.Errorf("%w: sheet selection is not supported by this source", errBadRequest)
	}

	scenario := s.runner.Scenario(leverage)
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"start_equity", p.StartEquity, &scenario.StartEquity},
		{"entry_fee_pct", p.EntryFeePct, &scenario.EntryFeePct},
		{"exit_fee_pct", p.ExitFeePct, &scenario.ExitFeePct},
		{"position_fraction", p.PositionFraction, &scenario.PositionFraction},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(strings.TrimSpace(f.raw))
		if err != nil {
			return runRequest{}, fmt.Errorf("%w: %s %q is not a number", errBadRequest, f.name, f.raw)
		}
		*f.dst = d
	}
	if err := scenario.Validate(); err != nil {
		return runRequest{}, fmt.Errorf("%w: %w", errBadRequest, err)
	}

	step, err := parseStep(p.Step)
	if err != nil {
		return runRequest{}, err
	}

	return runRequest{
		Selection: domain.Selection{Instrument: instrument, Leverage: leverage},
		Scenario:  scenario,
		Sheet:     p.Sheet,
		Step:      step,
	}, nil
}

// run evaluates req on the runner for its sheet.
func (s *Server) run(ctx context.Context, req runRequest) (*backtest.Result, error) {
	runner := s.runner
	if req.Sheet != "" {
		runner = runner.WithLoader(s.loaderFor(req.Sheet))
	}
	res, err := runner.RunScenario(ctx, req.Selection, req.Scenario)
	if err != nil {
		return nil, err
	}
	if req.Step > 0 {
		res.Series = equity.Resample(res.Series, req.Step)
	}
	return res, nil
}

// clientID names the caller for last-write-wins coordination. Requests
// without one are evaluated independently.
func clientID(r *http.Request) string {
	if id := r.URL.Query().Get("client"); id != "" {
		return id
	}
	return r.Header.Get(clientHeader)
}

func (s *Server) evaluate(w http.ResponseWriter, r *http.Request) (*reporting.RunReport, bool) {
	req, err := s.parse(queryParams(r))
	if err != nil {
		writeError(w, err)
		return nil, false
	}

	ctx := r.Context()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	var res *backtest.Result
	if id := clientID(r); id != "" {
		res, err = source.Run(ctx, s.latestFor(id), req.key(), func(ctx context.Context) (*backtest.Result, error) {
			return s.run(ctx, req)
		})
	} else {
		res, err = s.run(ctx, req)
	}
	if err != nil {
		status := writeError(w, err)
		s.logger.Warn("backtest failed",
			zap.String("selection", req.Selection.Key()),
			zap.Int("status", status),
			zap.Error(err),
		)
		return nil, false
	}

	rr := reporting.NewRunReport(res)
	return &rr, true
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	rr, ok := s.evaluate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rr)
}

func (s *Server) handleBacktestCSV(w http.ResponseWriter, r *http.Request) {
	rr, ok := s.evaluate(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s_%dx_trades.csv"`, rr.Instrument, rr.Leverage))
	if err := reporting.WriteTradesCSV(w, rr); err != nil {
		s.logger.Warn("write csv", zap.Error(err))
	}
}

// handleReport renders a leverage ladder. levels defaults to every level up
// to the runner's maximum.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	instrument := source.NormalizeInstrument(r.URL.Query().Get("instrument"))
	if instrument == "" {
		writeError(w, fmt.Errorf("%w: instrument is required", errBadRequest))
		return
	}

	levels, err := s.parseLevels(r.URL.Query().Get("levels"))
	if err != nil {
		writeError(w, err)
		return
	}

	gen := reporting.NewGenerator(s.runner).WithClock(s.now)
	rep, err := gen.Generate(r.Context(), instrument, levels)
	if err != nil {
		writeError(w, err)
		return
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "md") {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(reporting.RenderMarkdown(rep)))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) parseLevels(raw string) ([]int, error) {
	levels, err := reporting.ParseLevels(raw, s.runner.MaxLeverage())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return levels, nil
}

type sheetsResponse struct {
	Instrument string   `json:"instrument"`
	Sheets     []string `json:"sheets"`
}

func (s *Server) handleSheets(w http.ResponseWriter, r *http.Request) {
	if s.sheets == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "sheet listing is not supported by this source"})
		return
	}

	instrument := source.NormalizeInstrument(r.URL.Query().Get("instrument"))
	if instrument == "" {
		writeError(w, fmt.Errorf("%w: instrument is required", errBadRequest))
		return
	}

	names, err := s.sheets.Sheets(r.Context(), instrument)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sheetsResponse{Instrument: instrument, Sheets: names})
}
