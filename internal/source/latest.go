package source

import (
	"context"
	"errors"
	"sync"

	"signal-backtest-lab/internal/observability"
)

// ErrStale is returned for a result whose selection was superseded while in flight.
var ErrStale = errors.New("selection superseded")

// Latest coordinates last-write-wins work keyed by selection. Starting work
// for a new key cancels in-flight work for every other key; results for a
// key that is no longer current are discarded. Concurrent work for the
// current key is not interrupted.
type Latest struct {
	mu       sync.Mutex
	current  string
	seq      uint64
	inflight map[uint64]inflight
}

type inflight struct {
	key    string
	cancel context.CancelFunc
}

// NewLatest creates an empty coordinator.
func NewLatest() *Latest {
	return &Latest{inflight: make(map[uint64]inflight)}
}

// Current returns the most recently started key.
func (l *Latest) Current() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// begin makes key current and returns a context canceled when key is superseded.
func (l *Latest) begin(ctx context.Context, key string) (context.Context, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if key != l.current {
		for id, f := range l.inflight {
			if f.key != key {
				f.cancel()
				delete(l.inflight, id)
			}
		}
		l.current = key
	}

	ctx, cancel := context.WithCancel(ctx)
	l.seq++
	l.inflight[l.seq] = inflight{key: key, cancel: cancel}
	return ctx, l.seq
}

// end releases id and reports whether its result may be applied. Work that
// was canceled by a newer key stays stale even if its key became current again.
func (l *Latest) end(id uint64, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, ok := l.inflight[id]
	if !ok {
		return false
	}
	f.cancel()
	delete(l.inflight, id)
	return l.current == key
}

// Begin starts work for key and returns its context and a finish func.
// Callers that must preserve arrival order call Begin synchronously and run
// the work elsewhere. finish reports whether the result may be applied and
// must be called exactly once.
func (l *Latest) Begin(ctx context.Context, key string) (context.Context, func() bool) {
	runCtx, id := l.begin(ctx, key)
	return runCtx, func() bool {
		if l.end(id, key) {
			return true
		}
		observability.RecordStale()
		return false
	}
}

// Run executes fn for key under last-write-wins rules. If key is superseded
// before fn returns, fn's context is canceled and Run returns ErrStale
// regardless of fn's outcome.
func Run[T any](ctx context.Context, l *Latest, key string, fn func(context.Context) (T, error)) (T, error) {
	runCtx, finish := l.Begin(ctx, key)
	v, err := fn(runCtx)

	if !finish() {
		var zero T
		return zero, ErrStale
	}
	return v, err
}
