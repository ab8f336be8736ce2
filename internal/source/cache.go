package source

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/observability"
)

// CachingFetcher memoizes successful fetches per instrument for a TTL.
// Failures are never cached.
type CachingFetcher struct {
	next  Fetcher
	cache *cache.Cache
}

// NewCachingFetcher wraps next with a cache of the given TTL.
func NewCachingFetcher(next Fetcher, ttl time.Duration) *CachingFetcher {
	return &CachingFetcher{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Fetch returns the cached blob or fetches and stores it.
func (f *CachingFetcher) Fetch(ctx context.Context, instrument string) (*domain.SourceBlob, error) {
	if v, ok := f.cache.Get(instrument); ok {
		observability.RecordCacheHit()
		return v.(*domain.SourceBlob), nil
	}

	blob, err := f.next.Fetch(ctx, instrument)
	if err != nil {
		return nil, err
	}

	f.cache.SetDefault(instrument, blob)
	return blob, nil
}

// Invalidate drops the cached blob for an instrument.
func (f *CachingFetcher) Invalidate(instrument string) {
	f.cache.Delete(instrument)
}
