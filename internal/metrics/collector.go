// Package metrics exposes simulator activity as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/opensource-finance/dmnsim/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess     = "success"
	OutcomeMalformed   = "malformed"
	OutcomeNotFound    = "not_found"
	OutcomeEvalFailure = "evaluation_error"
	OutcomeError       = "error"
)

// CacheStatsFunc reports the compiled-program cache.
type CacheStatsFunc func() (size int, hits, misses uint64)

// Collector records parse, evaluation and HTTP metrics. A nil *Collector is
// valid and records nothing.
//
// Decision ids are never used as labels: they come from request bodies.
type Collector struct {
	registry  *prometheus.Registry
	namespace string

	parsesTotal      *prometheus.CounterVec
	parseDecisions   prometheus.Histogram
	evaluationsTotal *prometheus.CounterVec
	evalDuration     *prometheus.HistogramVec
	matchedRules     prometheus.Histogram
	degradedTotal    prometheus.Counter
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

// NewCollector creates a collector registered on registry. If registry is
// nil a fresh one is created.
func NewCollector(cfg domain.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "dmnsim"
	}

	// Evaluations of small tables run in well under a millisecond.
	durationBuckets := []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1}

	c := &Collector{
		registry:  registry,
		namespace: ns,
		parsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "parses_total",
			Help:      "Total number of document parses by outcome",
		}, []string{"outcome"}),
		parseDecisions: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "parse_decisions",
			Help:      "Number of decisions found per parsed document",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50},
		}),
		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "evaluations_total",
			Help:      "Total number of decision evaluations by outcome",
		}, []string{"outcome"}),
		evalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "evaluation_duration_seconds",
			Help:      "Decision evaluation latency in seconds",
			Buckets:   durationBuckets,
		}, []string{"outcome"}),
		matchedRules: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "evaluation_matched_rules",
			Help:      "Number of matched rule rows per successful evaluation",
			Buckets:   []float64{0, 1, 2, 5, 10, 25},
		}),
		degradedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "reconciliation_degraded_total",
			Help:      "Evaluations whose matched rules could not be mapped to rows",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   durationBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		c.parsesTotal,
		c.parseDecisions,
		c.evaluationsTotal,
		c.evalDuration,
		c.matchedRules,
		c.degradedTotal,
		c.requestsTotal,
		c.requestDuration,
	)
	return c
}

// RegisterCacheStats exposes the engine's program cache as gauges.
func (c *Collector) RegisterCacheStats(stats CacheStatsFunc) {
	if c == nil || stats == nil {
		return
	}
	c.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "program_cache_entries",
			Help:      "Compiled expression programs currently cached",
		}, func() float64 {
			size, _, _ := stats()
			return float64(size)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "program_cache_hits_total",
			Help:      "Compiled expression program cache hits",
		}, func() float64 {
			_, hits, _ := stats()
			return float64(hits)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "program_cache_misses_total",
			Help:      "Compiled expression program cache misses",
		}, func() float64 {
			_, _, misses := stats()
			return float64(misses)
		}),
	)
}

// ObserveParse records a document parse.
func (c *Collector) ObserveParse(_ time.Duration, decisions int, err error) {
	if c == nil {
		return
	}
	outcome := Outcome(err)
	c.parsesTotal.WithLabelValues(outcome).Inc()
	if err == nil {
		c.parseDecisions.Observe(float64(decisions))
	}
}

// ObserveEvaluation records a decision evaluation.
func (c *Collector) ObserveEvaluation(_ string, duration time.Duration, matchedRules int, err error) {
	if c == nil {
		return
	}
	outcome := Outcome(err)
	c.evaluationsTotal.WithLabelValues(outcome).Inc()
	c.evalDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if err == nil {
		c.matchedRules.Observe(float64(matchedRules))
	}
}

// ObserveReconciliationDegraded counts evaluations whose rows could not be
// located.
func (c *Collector) ObserveReconciliationDegraded(string) {
	if c == nil {
		return
	}
	c.degradedTotal.Inc()
}

// RecordRequest records a served HTTP request. route is the router pattern,
// not the raw path.
func (c *Collector) RecordRequest(method, route string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape handler for this collector.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Outcome maps an error to its outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, domain.ErrMalformedDocument):
		return OutcomeMalformed
	case errors.Is(err, domain.ErrDecisionNotFound):
		return OutcomeNotFound
	case errors.Is(err, domain.ErrEvaluation):
		return OutcomeEvalFailure
	default:
		return OutcomeError
	}
}
