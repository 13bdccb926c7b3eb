// Package metrics provides Prometheus metrics collection for dynwatch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for dynwatch.
type Collector struct {
	// Check run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	P95QPS      *prometheus.GaugeVec

	// Session client metrics
	RedirectRetries  *prometheus.CounterVec
	TeardownFailures *prometheus.CounterVec

	// Definition reload metrics
	DefsReloads      prometheus.Counter
	DefsReloadErrors prometheus.Counter
}

// New creates a collector with all metrics registered on reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dynwatch",
				Name:      "check_runs_total",
				Help:      "Total number of check runs by outcome",
			},
			[]string{"check", "status"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dynwatch",
				Name:      "check_duration_seconds",
				Help:      "Check run duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"check"},
		),
		P95QPS: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "dynwatch",
				Name:      "p95_qps",
				Help:      "Most recent p95 query rate per check",
			},
			[]string{"check"},
		),
		RedirectRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dynwatch",
				Name:      "report_redirect_retries_total",
				Help:      "Total redirected report fetch attempts",
			},
			[]string{"check"},
		),
		TeardownFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dynwatch",
				Name:      "session_teardown_failures_total",
				Help:      "Total advisory session logout failures",
			},
			[]string{"check"},
		),
		DefsReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "dynwatch",
				Name:      "definition_reloads_total",
				Help:      "Total number of successful definition reloads",
			},
		),
		DefsReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "dynwatch",
				Name:      "definition_reload_errors_total",
				Help:      "Total number of rejected definition reloads",
			},
		),
	}
}

// ObserveRun records one completed run with its outcome and duration.
func (c *Collector) ObserveRun(check, status string, seconds float64) {
	c.RunsTotal.WithLabelValues(check, status).Inc()
	c.RunDuration.WithLabelValues(check).Observe(seconds)
}

// SetP95 publishes the latest computed percentile for a check.
func (c *Collector) SetP95(check string, v float64) {
	c.P95QPS.WithLabelValues(check).Set(v)
}

// AddRedirectRetries counts redirected report fetch attempts.
func (c *Collector) AddRedirectRetries(check string, n int) {
	c.RedirectRetries.WithLabelValues(check).Add(float64(n))
}

// IncTeardownFailure counts one advisory logout failure.
func (c *Collector) IncTeardownFailure(check string) {
	c.TeardownFailures.WithLabelValues(check).Inc()
}

// IncDefsReload counts one successful definition reload.
func (c *Collector) IncDefsReload() {
	c.DefsReloads.Inc()
}

// IncDefsReloadError counts one rejected definition reload.
func (c *Collector) IncDefsReloadError() {
	c.DefsReloadErrors.Inc()
}
