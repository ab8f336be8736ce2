// Package source fetches trade-history blobs and turns them into datasets.
package source

import (
	"context"
	"errors"
	"strings"

	"signal-backtest-lab/internal/domain"
)

// ErrFetchFailed wraps every transport or storage failure of a Fetcher.
var ErrFetchFailed = errors.New("source fetch failed")

// Fetcher retrieves the raw trade-history export for an instrument.
type Fetcher interface {
	Fetch(ctx context.Context, instrument string) (*domain.SourceBlob, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, instrument string) (*domain.SourceBlob, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, instrument string) (*domain.SourceBlob, error) {
	return f(ctx, instrument)
}

// NormalizeInstrument upper-cases and trims an instrument symbol.
func NormalizeInstrument(instrument string) string {
	return strings.ToUpper(strings.TrimSpace(instrument))
}
