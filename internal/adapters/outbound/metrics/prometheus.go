// Package metrics exports pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abdidvp/layerfix/internal/domain"
)

// Prometheus implements domain.Metrics.
type Prometheus struct {
	gatherer prometheus.Gatherer

	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	violations      *prometheus.CounterVec
	results         *prometheus.CounterVec
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Prometheus {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Prometheus{
		gatherer: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "layerfix_runs_total",
			Help: "Pipeline runs by success",
		}, []string{"success"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "layerfix_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		}),
		violations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "layerfix_violations_total",
			Help: "Detected violations by rule",
		}, []string{"rule"}),
		results: f.NewCounterVec(prometheus.CounterOpts{
			Name: "layerfix_fix_results_total",
			Help: "Fix results by outcome",
		}, []string{"outcome"}),
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "layerfix_generation_attempts_total",
			Help: "Text generation attempts by result",
		}, []string{"result"}),
		attemptDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "layerfix_generation_duration_seconds",
			Help:    "Text generation call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"result"}),
	}
}

func (p *Prometheus) RunFinished(success bool, elapsed float64) {
	p.runs.WithLabelValues(strconv.FormatBool(success)).Inc()
	p.runDuration.Observe(elapsed)
}

func (p *Prometheus) ViolationDetected(ruleID string) {
	p.violations.WithLabelValues(ruleID).Inc()
}

func (p *Prometheus) FixResult(outcome domain.Outcome) {
	p.results.WithLabelValues(string(outcome)).Inc()
}

func (p *Prometheus) GenerationAttempt(result string, elapsed float64) {
	p.attempts.WithLabelValues(result).Inc()
	p.attemptDuration.WithLabelValues(result).Observe(elapsed)
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}
