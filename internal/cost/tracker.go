// Package cost implements the engine's LLM call/token budget accounting
// (spec §4.C15), consumed by the connection manager's triage escalation
// and the PRIME orchestrator. Grounded on the teacher's
// pkg/observability/metrics.go atomic-counter style (Prometheus counters
// wrapping plain int64 state), generalized here to saturating counters so
// a runaway batch cannot wrap an int64 back through zero.
package cost

import (
	"math"
	"sync/atomic"
)

// Tracker accumulates LLM calls, tokens and dollar cost for a single
// batch/request scope. A zero Tracker is ready to use.
type Tracker struct {
	calls  int64
	tokens int64
	costMicros int64 // cost in micro-dollars, to keep the counter integral
}

func New() *Tracker { return &Tracker{} }

// RecordCall adds one LLM call with the given token usage and cost.
func (t *Tracker) RecordCall(tokens int, costUSD float64) {
	addSaturating(&t.calls, 1)
	addSaturating(&t.tokens, int64(tokens))
	addSaturating(&t.costMicros, int64(costUSD*1_000_000))
}

func (t *Tracker) Calls() int64  { return atomic.LoadInt64(&t.calls) }
func (t *Tracker) Tokens() int64 { return atomic.LoadInt64(&t.tokens) }
func (t *Tracker) CostUSD() float64 {
	return float64(atomic.LoadInt64(&t.costMicros)) / 1_000_000
}

// BudgetExceeded reports whether calls made so far have reached
// maxCallsPerBatch (0 means unlimited).
func (t *Tracker) BudgetExceeded(maxCallsPerBatch int) bool {
	if maxCallsPerBatch <= 0 {
		return false
	}
	return t.Calls() >= int64(maxCallsPerBatch)
}

func addSaturating(addr *int64, delta int64) {
	for {
		old := atomic.LoadInt64(addr)
		next := old + delta
		if delta > 0 && next < old { // overflow
			next = math.MaxInt64
		}
		if atomic.CompareAndSwapInt64(addr, old, next) {
			return
		}
	}
}
