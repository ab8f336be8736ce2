package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"signal-backtest-lab/internal/backtest"
	"signal-backtest-lab/internal/pnl"
	"signal-backtest-lab/internal/sheet"
	"signal-backtest-lab/internal/source"
)

// errBadRequest marks request parameter errors.
var errBadRequest = errors.New("bad request")

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, backtest.ErrInvalidSelection),
		errors.Is(err, backtest.ErrInvalidScenario):
		return http.StatusBadRequest
	case errors.Is(err, sheet.ErrSheetNotFound):
		return http.StatusNotFound
	case errors.Is(err, sheet.ErrParseFailed),
		errors.Is(err, pnl.ErrInvalidEntryPrice),
		errors.Is(err, pnl.ErrMissingExitPrice),
		errors.Is(err, pnl.ErrNonPositiveEquity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sheet.ErrSourceUnavailable),
		errors.Is(err, source.ErrFetchFailed):
		return http.StatusBadGateway
	case errors.Is(err, source.ErrStale):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) int {
	status := statusFor(err)
	writeJSON(w, status, errorResponse{Error: err.Error()})
	return status
}
