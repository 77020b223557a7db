// Package metrics exposes Prometheus collectors for statement rewriting and execution.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Execution results recorded by ObserveExecution.
const (
	ResultOK     = "ok"
	ResultError  = "error"
	ResultVetoed = "vetoed"
)

// Metrics contains the collectors for the rewriter and the hooked connections.
type Metrics struct {
	rewrites        *prometheus.CounterVec
	rewriteDuration prometheus.Histogram
	executions      *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		rewrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sql_rewriter_rewrites_total",
				Help: "Total number of statements passed through the rewriter, by outcome",
			},
			[]string{"reason"},
		),

		rewriteDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sql_rewriter_rewrite_duration_seconds",
				Help:    "Time spent parsing and rewriting a statement",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
			},
		),

		executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sql_rewriter_executions_total",
				Help: "Total number of statements executed through a hooked connection",
			},
			[]string{"result"},
		),
	}
}

// ObserveRewrite records one rewrite outcome and its duration.
func (m *Metrics) ObserveRewrite(reason string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.rewrites.WithLabelValues(reason).Inc()
	m.rewriteDuration.Observe(elapsed.Seconds())
}

// ObserveExecution records the result of one executed statement.
func (m *Metrics) ObserveExecution(err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.executions.WithLabelValues(result).Inc()
}

// ObserveVeto records a statement a hook refused to run.
func (m *Metrics) ObserveVeto() {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(ResultVetoed).Inc()
}
