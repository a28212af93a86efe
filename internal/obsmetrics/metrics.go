// Package obsmetrics exposes the engine's Prometheus instrumentation,
// grounded on the teacher's pkg/observability/metrics.go counter/histogram
// registration style (one struct of pre-registered collectors, labeled by
// component/operation, handed out via a single constructor).
package obsmetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector the engine emits. A nil *Metrics is
// legal everywhere it's accepted — callers guard with m.ok() so
// instrumentation can be disabled without branching at every call site.
type Metrics struct {
	reg *prometheus.Registry

	OperationDuration *prometheus.HistogramVec
	OperationTotal    *prometheus.CounterVec
	BatchPending      *prometheus.GaugeVec
	ConnectionsTotal  *prometheus.CounterVec
	CostCallsTotal    *prometheus.CounterVec
	CostTokensTotal   *prometheus.CounterVec
	DecayApplied      *prometheus.CounterVec
}

// New registers and returns a fresh collector set against reg. Pass
// prometheus.NewRegistry() for an isolated registry (tests) or
// prometheus.DefaultRegisterer's registry in production.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		reg: reg,
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentmem",
			Name:      "operation_duration_seconds",
			Help:      "Latency of memory engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"component", "operation"}),
		OperationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentmem",
			Name:      "operation_total",
			Help:      "Count of memory engine operations by outcome.",
		}, []string{"component", "operation", "outcome"}),
		BatchPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "agentmem",
			Name:      "decay_batch_pending",
			Help:      "Coalesced decay updates waiting to be flushed.",
		}, []string{"agent_id"}),
		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentmem",
			Name:      "connections_discovered_total",
			Help:      "Memory connections discovered, by triage tier.",
		}, []string{"tier", "type"}),
		CostCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentmem",
			Name:      "llm_calls_total",
			Help:      "LLM calls issued by the engine, by component.",
		}, []string{"component"}),
		CostTokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentmem",
			Name:      "llm_tokens_total",
			Help:      "LLM tokens consumed by the engine, by component.",
		}, []string{"component"}),
		DecayApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentmem",
			Name:      "decay_applied_total",
			Help:      "Resonance decay updates applied, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(
		m.OperationDuration, m.OperationTotal, m.BatchPending,
		m.ConnectionsTotal, m.CostCallsTotal, m.CostTokensTotal, m.DecayApplied,
	)
	return m
}

func (m *Metrics) ok() bool { return m != nil }

func (m *Metrics) ObserveOperation(component, operation string, seconds float64, outcome string) {
	if !m.ok() {
		return
	}
	m.OperationDuration.WithLabelValues(component, operation).Observe(seconds)
	m.OperationTotal.WithLabelValues(component, operation, outcome).Inc()
}

func (m *Metrics) SetBatchPending(agentID string, n int) {
	if !m.ok() {
		return
	}
	m.BatchPending.WithLabelValues(agentID).Set(float64(n))
}

func (m *Metrics) RecordConnection(tier, connType string) {
	if !m.ok() {
		return
	}
	m.ConnectionsTotal.WithLabelValues(tier, connType).Inc()
}

func (m *Metrics) RecordCost(component string, calls, tokens int) {
	if !m.ok() {
		return
	}
	m.CostCallsTotal.WithLabelValues(component).Add(float64(calls))
	m.CostTokensTotal.WithLabelValues(component).Add(float64(tokens))
}

func (m *Metrics) RecordDecay(reason string) {
	if !m.ok() {
		return
	}
	m.DecayApplied.WithLabelValues(reason).Inc()
}
