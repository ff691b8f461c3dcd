// Package metrics counts what the simulator does: queries by router and
// verdict, rule matches, parse failures, facts loads, and evaluation
// latency. The registry is process-wide; `tsim query --metrics` dumps it
// after the verdict.
package metrics

import (
	"bytes"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all simulator metrics.
type Registry struct {
	// QueriesTotal counts evaluated queries by router and verdict
	// (allowed/denied).
	QueriesTotal *prometheus.CounterVec

	// RulesTested counts rules whose criteria were evaluated.
	RulesTested prometheus.Counter

	// ParseErrors counts soft parse failures by kind (rule, ipset, route).
	ParseErrors *prometheus.CounterVec

	// FactsLoads counts facts file loads by status (ok, error).
	FactsLoads *prometheus.CounterVec

	// EvalDuration observes one evaluation's wall time in seconds.
	EvalDuration prometheus.Histogram

	reg *prometheus.Registry
}

// Get returns the process-wide registry, creating it on first use.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		QueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tsim",
			Name:      "queries_total",
			Help:      "Evaluated queries by router and verdict.",
		}, []string{"router", "verdict"}),
		RulesTested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tsim",
			Name:      "rules_tested_total",
			Help:      "Rules whose criteria were evaluated.",
		}),
		ParseErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tsim",
			Name:      "parse_errors_total",
			Help:      "Soft parse failures by input kind.",
		}, []string{"kind"}),
		FactsLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tsim",
			Name:      "facts_loads_total",
			Help:      "Facts file loads by status.",
		}, []string{"status"}),
		EvalDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tsim",
			Name:      "eval_duration_seconds",
			Help:      "Wall time of one query evaluation.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 8),
		}),
	}
}

// RecordQuery updates the per-query counters.
func (r *Registry) RecordQuery(router string, allowed bool, rulesTested int, seconds float64) {
	verdict := "denied"
	if allowed {
		verdict = "allowed"
	}
	r.QueriesTotal.WithLabelValues(router, verdict).Inc()
	r.RulesTested.Add(float64(rulesTested))
	r.EvalDuration.Observe(seconds)
}

// Dump renders all gathered metric families in the Prometheus text
// exposition format.
func (r *Registry) Dump() (string, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}
