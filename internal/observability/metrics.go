package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	securityDenialsTotal  *prometheus.CounterVec
	approvalsTotal        *prometheus.CounterVec
	auditAppendsTotal     prometheus.Counter
	reactIterations       prometheus.Histogram
	queryDuration         prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			securityDenialsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "security_denials_total",
					Help: "Total security denials by reason.",
				},
				[]string{"reason"},
			),
			approvalsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "approvals_total",
					Help: "Total approval round-trips by outcome.",
				},
				[]string{"outcome"},
			),
			auditAppendsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "audit_appends_total",
					Help: "Total audit trail appends.",
				},
			),
			reactIterations: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "react_iterations",
					Help:    "Iterations consumed per ReAct cycle.",
					Buckets: []float64{0, 1, 2, 3, 4, 5, 8, 12},
				},
			),
			queryDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "query_duration_seconds",
					Help:    "End-to-end query processing duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
		}

		prometheus.MustRegister(
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.securityDenialsTotal,
			m.approvalsTotal,
			m.auditAppendsTotal,
			m.reactIterations,
			m.queryDuration,
		)

		metricsInst = m
	})
	return metricsInst
}

// EnsureRegistered forces metric registration. Safe to call from every
// component constructor.
func EnsureRegistered() {
	getMetrics()
}

// RecordToolExecution records one tool execution outcome.
func RecordToolExecution(toolName string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(toolName, status).Inc()
	m.toolExecutionDuration.WithLabelValues(toolName).Observe(duration.Seconds())
}

// RecordSecurityDenial records a denial by reason ("permission",
// "injection", "approval").
func RecordSecurityDenial(reason string) {
	getMetrics().securityDenialsTotal.WithLabelValues(reason).Inc()
}

// RecordApproval records an approval round-trip outcome.
func RecordApproval(outcome string) {
	getMetrics().approvalsTotal.WithLabelValues(outcome).Inc()
}

// RecordAuditAppend counts one audit append.
func RecordAuditAppend() {
	getMetrics().auditAppendsTotal.Inc()
}

// RecordQuery records one completed query and its iteration count.
func RecordQuery(duration time.Duration, iterations int) {
	m := getMetrics()
	m.queryDuration.Observe(duration.Seconds())
	m.reactIterations.Observe(float64(iterations))
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}
