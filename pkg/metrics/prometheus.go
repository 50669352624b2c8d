// Package metrics exposes gate activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RuleCounter reports how many route rules are currently enforced.
type RuleCounter func() int

// PrometheusMetrics records gate decisions, token verification latency,
// logins and configuration reloads.
type PrometheusMetrics struct {
	rules RuleCounter

	// Gate metrics
	decisionsTotal *prometheus.CounterVec
	verifyDuration prometheus.Histogram

	// Login metrics
	loginsTotal *prometheus.CounterVec

	// Configuration metrics
	reloadsTotal *prometheus.CounterVec
	policyRules  prometheus.Gauge
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance. rules may be
// nil, in which case gate_policy_rules stays at zero.
func NewPrometheusMetrics(rules RuleCounter) *PrometheusMetrics {
	return &PrometheusMetrics{
		rules: rules,
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gate_decisions_total",
				Help: "Total number of gate decisions by outcome and rejection cause",
			},
			[]string{"outcome", "cause"},
		),
		verifyDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gate_verify_duration_seconds",
				Help:    "Time spent verifying bearer tokens",
				Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025},
			},
		),
		loginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gate_logins_total",
				Help: "Total number of login attempts by result",
			},
			[]string{"result"},
		),
		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gate_config_reloads_total",
				Help: "Total number of configuration reloads by result",
			},
			[]string{"result"},
		),
		policyRules: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gate_policy_rules",
				Help: "Number of route rules in the active policy table",
			},
		),
	}
}

// Describe implements prometheus.Collector.
func (pm *PrometheusMetrics) Describe(ch chan<- *prometheus.Desc) {
	pm.decisionsTotal.Describe(ch)
	pm.verifyDuration.Describe(ch)
	pm.loginsTotal.Describe(ch)
	pm.reloadsTotal.Describe(ch)
	pm.policyRules.Describe(ch)
}

// Collect implements prometheus.Collector and refreshes the rule gauge.
func (pm *PrometheusMetrics) Collect(ch chan<- prometheus.Metric) {
	if pm.rules != nil {
		pm.policyRules.Set(float64(pm.rules()))
	}

	pm.decisionsTotal.Collect(ch)
	pm.verifyDuration.Collect(ch)
	pm.loginsTotal.Collect(ch)
	pm.reloadsTotal.Collect(ch)
	pm.policyRules.Collect(ch)
}

// ObserveDecision counts one gate decision. Admitted requests have no cause.
func (pm *PrometheusMetrics) ObserveDecision(outcome, cause string) {
	if cause == "" {
		cause = "none"
	}
	pm.decisionsTotal.WithLabelValues(outcome, cause).Inc()
}

// ObserveVerify records how long one token verification took.
func (pm *PrometheusMetrics) ObserveVerify(d time.Duration) {
	pm.verifyDuration.Observe(d.Seconds())
}

// ObserveLogin counts a login attempt. result is success, failure or error.
func (pm *PrometheusMetrics) ObserveLogin(result string) {
	pm.loginsTotal.WithLabelValues(result).Inc()
}

// RecordReload counts a configuration reload attempt.
func (pm *PrometheusMetrics) RecordReload(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	pm.reloadsTotal.WithLabelValues(result).Inc()
}
