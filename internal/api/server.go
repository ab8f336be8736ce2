// Package api exposes backtest runs over HTTP and WebSocket.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"signal-backtest-lab/internal/backtest"
	"signal-backtest-lab/internal/observability"
	"signal-backtest-lab/internal/source"
)

const (
	// clientHeader identifies the caller when the client query param is absent.
	clientHeader = "X-Client-ID"

	// clientTTL is how long an idle client's last-write-wins state is kept.
	clientTTL = 10 * time.Minute
)

// SheetLister lists the tables of an instrument's export.
type SheetLister interface {
	Sheets(ctx context.Context, instrument string) ([]string, error)
}

// Options configures Server.
type Options struct {
	Runner *backtest.Runner

	// LoaderFor returns a loader reading the named table. Nil rejects
	// requests that name a sheet.
	LoaderFor func(sheet string) backtest.DatasetLoader

	// Sheets serves /api/sheets. Nil disables the route.
	Sheets SheetLister

	// Metrics serves /metrics. Nil uses the default Prometheus registry.
	Metrics http.Handler

	// RequestTimeout bounds a single HTTP evaluation. Zero means no limit.
	RequestTimeout time.Duration

	// RateLimit caps /api requests per second across all clients, with
	// bursts up to RateBurst. Zero disables limiting.
	RateLimit float64
	RateBurst int

	WS     WSConfig
	Logger *zap.Logger
}

// Server routes API requests.
type Server struct {
	runner         *backtest.Runner
	loaderFor      func(sheet string) backtest.DatasetLoader
	sheets         SheetLister
	metrics        http.Handler
	requestTimeout time.Duration
	limiter        *rate.Limiter
	ws             WSConfig
	logger         *zap.Logger
	now            func() time.Time

	// clients holds a *source.Latest per client ID.
	clients   *cache.Cache
	clientsMu sync.Mutex

	closing   chan struct{}
	closeOnce sync.Once

	router chi.Router
}

// NewServer creates a server and builds its routes.
func NewServer(opts Options) *Server {
	s := &Server{
		runner:         opts.Runner,
		loaderFor:      opts.LoaderFor,
		sheets:         opts.Sheets,
		metrics:        opts.Metrics,
		requestTimeout: opts.RequestTimeout,
		ws:             opts.WS,
		logger:         opts.Logger,
		now:            func() time.Time { return time.Now().UTC() },
		clients:        cache.New(clientTTL, 2*clientTTL),
		closing:        make(chan struct{}),
	}
	if s.metrics == nil {
		s.metrics = observability.Handler()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	s.ws = s.ws.withDefaults()
	s.router = s.routes()
	return s
}

// latestFor returns the last-write-wins state for a client, creating it on
// first use. Each access extends the client's TTL.
func (s *Server) latestFor(id string) *source.Latest {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	latest, ok := s.clients.Get(id)
	if !ok {
		latest = source.NewLatest()
	}
	s.clients.SetDefault(id, latest)
	return latest.(*source.Latest)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close ends open WebSocket sessions. http.Server.Shutdown does not track
// hijacked connections, so register it with RegisterOnShutdown.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics)
	r.Get("/ws", s.handleWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Get("/backtest", s.handleBacktest)
		r.Get("/backtest.csv", s.handleBacktestCSV)
		r.Get("/report", s.handleReport)
		r.Get("/sheets", s.handleSheets)
	})
	return r
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.logger.Warn("rate limit exceeded", zap.String("path", r.URL.Path))
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: http.StatusText(http.StatusTooManyRequests)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// instrument records per-route request metrics and logs each request.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.RecordHTTPRequest(route, status)

		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
