// Package observability provides Prometheus metrics and tracing spans.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Source metrics
	SourceFetches       *prometheus.CounterVec
	SourceFetchDuration *prometheus.HistogramVec
	SourceFallbacks     prometheus.Counter
	SourceCacheHits     prometheus.Counter

	// Reader metrics
	RowsRead         prometheus.Counter
	RowsDropped      prometheus.Counter
	CoercionWarnings prometheus.Counter

	// Engine metrics
	RunsTotal    *prometheus.CounterVec
	RunDuration  prometheus.Histogram
	TradesFolded prometheus.Counter

	// Selection metrics
	StaleResults prometheus.Counter
	WSSessions   prometheus.Gauge

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "signal_backtest_lab"
	}
	factory := promauto.With(reg)

	return &Metrics{
		SourceFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetches_total",
			Help:      "Total number of source fetches by source kind and result",
		}, []string{"source", "result"}),
		SourceFetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetch_duration_seconds",
			Help:      "Source fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		SourceFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fallbacks_total",
			Help:      "Total number of fetches served from the built-in sample dataset",
		}),
		SourceCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "cache_hits_total",
			Help:      "Total number of fetches served from the source cache",
		}),

		RowsRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reader",
			Name:      "rows_read_total",
			Help:      "Total number of trade rows parsed",
		}),
		RowsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reader",
			Name:      "rows_dropped_total",
			Help:      "Total number of rows dropped for an unparseable entry date",
		}),
		CoercionWarnings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reader",
			Name:      "coercion_warnings_total",
			Help:      "Total number of cells defaulted during coercion",
		}),

		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Total number of backtest runs by result",
		}, []string{"result"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Backtest run latency including source fetch",
			Buckets:   prometheus.DefBuckets,
		}),
		TradesFolded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trades_folded_total",
			Help:      "Total number of trades folded into equity curves",
		}),

		StaleResults: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "selection",
			Name:      "stale_results_total",
			Help:      "Total number of results discarded because the selection changed",
		}),
		WSSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "selection",
			Name:      "ws_sessions",
			Help:      "Current number of open WebSocket sessions",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

// RecordFetch records a source fetch.
func RecordFetch(source string, seconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	DefaultMetrics.SourceFetches.WithLabelValues(source, result).Inc()
	DefaultMetrics.SourceFetchDuration.WithLabelValues(source).Observe(seconds)
}

// RecordFallback increments the sample fallback counter.
func RecordFallback() {
	DefaultMetrics.SourceFallbacks.Inc()
}

// RecordCacheHit increments the source cache hit counter.
func RecordCacheHit() {
	DefaultMetrics.SourceCacheHits.Inc()
}

// RecordParse records reader output sizes.
func RecordParse(rows, dropped, warnings int) {
	DefaultMetrics.RowsRead.Add(float64(rows))
	DefaultMetrics.RowsDropped.Add(float64(dropped))
	DefaultMetrics.CoercionWarnings.Add(float64(warnings))
}

// RecordRun records a backtest run.
func RecordRun(trades int, seconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	DefaultMetrics.RunsTotal.WithLabelValues(result).Inc()
	DefaultMetrics.RunDuration.Observe(seconds)
	DefaultMetrics.TradesFolded.Add(float64(trades))
}

// RecordStale increments the stale result counter.
func RecordStale() {
	DefaultMetrics.StaleResults.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(route string, code int) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, http.StatusText(code)).Inc()
}
