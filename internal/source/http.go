package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/idhash"
	"signal-backtest-lab/internal/sheet"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0
	DefaultMaxBytes    = 32 << 20

	// InstrumentPlaceholder is replaced by the escaped instrument in URL templates.
	InstrumentPlaceholder = "{instrument}"
)

// HTTPFetcher downloads exports from a URL template with retries and exponential backoff.
type HTTPFetcher struct {
	template    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	maxBytes    int64
	now         func() time.Time
}

// HTTPOption configures HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(f *HTTPFetcher) {
		f.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) HTTPOption {
	return func(f *HTTPFetcher) {
		f.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) HTTPOption {
	return func(f *HTTPFetcher) {
		f.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) HTTPOption {
	return func(f *HTTPFetcher) {
		f.maxDelay = d
	}
}

// WithMaxBytes caps the accepted body size.
func WithMaxBytes(n int64) HTTPOption {
	return func(f *HTTPFetcher) {
		f.maxBytes = n
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

// NewHTTPFetcher creates a fetcher for template, e.g.
// "https://cdn.example.com/backtests/{instrument}.xlsx". A template without
// the placeholder is fetched as-is for every instrument.
func NewHTTPFetcher(template string, opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		template:    template,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		maxBytes:    DefaultMaxBytes,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// URL returns the resolved URL for an instrument.
func (f *HTTPFetcher) URL(instrument string) string {
	return strings.ReplaceAll(f.template, InstrumentPlaceholder, url.PathEscape(instrument))
}

// Fetch downloads the export. 5xx, 429 and transport errors are retried;
// other statuses fail immediately. Cancellation aborts between and during attempts.
func (f *HTTPFetcher) Fetch(ctx context.Context, instrument string) (*domain.SourceBlob, error) {
	endpoint := f.URL(instrument)

	delay := f.retryDelay
	var lastErr error

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * f.backoffMult)
			if delay > f.maxDelay {
				delay = f.maxDelay
			}
		}

		body, retry, err := f.get(ctx, endpoint)
		if err == nil {
			return &domain.SourceBlob{
				Instrument:  instrument,
				Format:      sheet.DetectFormat(body),
				Content:     body,
				Fingerprint: idhash.Fingerprint(body),
				UploadedAt:  f.now().UTC(),
			}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !retry {
			break
		}
	}

	return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, endpoint, lastErr)
}

// get performs one attempt and reports whether a failure may be retried.
func (f *HTTPFetcher) get(ctx context.Context, endpoint string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	// Handle rate limiting
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, fmt.Errorf("rate limited (429)")
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, true, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, false, fmt.Errorf("response exceeds %d bytes", f.maxBytes)
	}
	if len(body) == 0 {
		return nil, false, fmt.Errorf("empty response body")
	}

	return body, false, nil
}
