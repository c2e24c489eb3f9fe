// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cardmarket-lab/internal/domain"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "cardmarket_lab"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion metrics
	RowsProcessed *prometheus.CounterVec
	InFlight      prometheus.Gauge

	// Title parse metrics
	TitleParses  *prometheus.CounterVec
	CacheLookups *prometheus.CounterVec

	// Model backend metrics
	ModelCallLatency *prometheus.HistogramVec
	ModelCallErrors  *prometheus.CounterVec

	// Health metrics
	LastSuccessfulIngestion prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Ingestion metrics
		RowsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "rows_total",
			Help:      "Rows processed by kind and outcome (ok, dup, err)",
		}, []string{"kind", "outcome"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "workpool",
			Name:      "in_flight",
			Help:      "Tasks currently running in the bounded executor",
		}),

		// Title parse metrics
		TitleParses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "titleparse",
			Name:      "parses_total",
			Help:      "Title parses by method and outcome",
		}, []string{"method", "outcome"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "titleparse",
			Name:      "cache_lookups_total",
			Help:      "Title parse cache lookups by result (memory, store, miss)",
		}, []string{"result"}),

		// Model backend metrics
		ModelCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_latency_seconds",
			Help:      "Model completion latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"provider"}),
		ModelCallErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_errors_total",
			Help:      "Failed model completions by provider",
		}, []string{"provider"}),

		// Health metrics
		LastSuccessfulIngestion: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last successful ingestion batch",
		}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRow counts one processed row.
func (m *Metrics) ObserveRow(kind, outcome string) {
	m.RowsProcessed.WithLabelValues(kind, outcome).Inc()
}

// SetInFlight reports the executor's current in-flight count.
func (m *Metrics) SetInFlight(n int64) {
	m.InFlight.Set(float64(n))
}

// ObserveParse counts one title parse attempt.
func (m *Metrics) ObserveParse(method domain.ParseMethod, ok bool) {
	outcome := "miss"
	if ok {
		outcome = "ok"
	}
	m.TitleParses.WithLabelValues(string(method), outcome).Inc()
}

// ObserveCache counts one title parse cache lookup.
func (m *Metrics) ObserveCache(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveModelCall records a model completion. Its signature matches
// llm.ObserveFunc.
func (m *Metrics) ObserveModelCall(provider string, elapsed time.Duration, err error) {
	m.ModelCallLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
	if err != nil {
		m.ModelCallErrors.WithLabelValues(provider).Inc()
	}
}

// MarkIngestionSuccess stamps the last successful ingestion time.
func (m *Metrics) MarkIngestionSuccess(t time.Time) {
	m.LastSuccessfulIngestion.Set(float64(t.Unix()))
}

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr
// disables the endpoint.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *log.Logger) {
	if addr == "" {
		return
	}
	if logger == nil {
		logger = log.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		logger.Printf("metrics listening on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("metrics server: %v", err)
		}
	}()
}
