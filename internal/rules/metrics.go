// internal/rules/metrics.go
package rules

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the Engine. A nil *Metrics records nothing.
type Metrics struct {
	executionsTotal   *prometheus.CounterVec
	rulesFiredTotal   *prometheus.CounterVec
	actionErrorsTotal *prometheus.CounterVec
	conditionFailures *prometheus.CounterVec
	executionDuration prometheus.Histogram
	rulesLoaded       prometheus.Gauge
}

// NewMetrics creates engine metrics and registers them with reg.
// Returns nil when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		executionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rulekeeper",
			Subsystem: "engine",
			Name:      "executions_total",
			Help:      "Total ExecuteRules calls",
		}, []string{"result"}),

		rulesFiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rulekeeper",
			Subsystem: "engine",
			Name:      "rules_fired_total",
			Help:      "Rules whose condition held during execution",
		}, []string{"rule_type"}),

		actionErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rulekeeper",
			Subsystem: "engine",
			Name:      "action_errors_total",
			Help:      "Action failures that aborted an execution",
		}, []string{"rule_type"}),

		conditionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rulekeeper",
			Subsystem: "engine",
			Name:      "condition_failures_total",
			Help:      "Condition errors treated as false",
		}, []string{"rule_type"}),

		executionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rulekeeper",
			Subsystem: "engine",
			Name:      "execution_duration_seconds",
			Help:      "Time spent in ExecuteRules",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),

		rulesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rulekeeper",
			Subsystem: "engine",
			Name:      "rules_loaded",
			Help:      "Number of rules held by the engine",
		}),
	}

	reg.MustRegister(
		m.executionsTotal,
		m.rulesFiredTotal,
		m.actionErrorsTotal,
		m.conditionFailures,
		m.executionDuration,
		m.rulesLoaded,
	)
	return m
}

func (m *Metrics) recordExecution(start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.executionsTotal.WithLabelValues(result).Inc()
	m.executionDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) recordFired(ruleType string) {
	if m == nil {
		return
	}
	m.rulesFiredTotal.WithLabelValues(ruleType).Inc()
}

func (m *Metrics) recordActionError(ruleType string) {
	if m == nil {
		return
	}
	m.actionErrorsTotal.WithLabelValues(ruleType).Inc()
}

func (m *Metrics) recordConditionFailure(ruleType string) {
	if m == nil {
		return
	}
	m.conditionFailures.WithLabelValues(ruleType).Inc()
}

func (m *Metrics) setRulesLoaded(n int) {
	if m == nil {
		return
	}
	m.rulesLoaded.Set(float64(n))
}
