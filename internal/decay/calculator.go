// Package decay implements on-demand exponential resonance decay (spec
// §4.C4/C5). Calculate is a pure, deterministic function over a memory
// snapshot and the current time — no I/O, no locking, no randomness —
// mirroring the teacher's domain/services/similarity_calculator.go style of
// keeping scoring math as free functions over plain inputs, decoupled from
// persistence. The batch processor that coalesces and flushes the results
// this package computes lives in batch.go, grounded on the retry/backoff
// shape of internal/repository/retry.go.
package decay

import (
	"math"
	"time"

	"agentmem/internal/memdomain"
)

// Config carries the tunables spec §4.C4 names. Zero-value Config is
// invalid; callers should build it from memconfig.DecayConfig.
type Config struct {
	MinUpdateInterval     time.Duration
	ReinforceWindow       time.Duration
	SignificanceThreshold float64
}

// Result is the outcome of evaluating decay for a single memory at a point
// in time (§4.C4 calculate(memory, now) -> {new_resonance, should_update,
// reinforced}).
type Result struct {
	MemoryID      string
	NewResonance  float64
	ShouldUpdate  bool
	Reinforced    bool
	AccessedAt    time.Time
	AccessCount   int64
}

// Calculate evaluates the 6-step decay algorithm for one memory as of now.
// It never mutates m; the caller applies the result via
// memdomain.Memory.ApplyDecayResult.
func Calculate(m *memdomain.Memory, now time.Time, cfg Config) Result {
	res := Result{
		MemoryID:     m.ID().String(),
		NewResonance: m.StoredResonance(),
		AccessedAt:   m.LastAccessedAt(),
		AccessCount:  m.AccessCount(),
	}

	// Step 1: archived memories never decay or reinforce.
	if m.Status() == memdomain.Archived {
		return res
	}

	// Step 2: suppress recomputation if accessed more recently than
	// min_update_interval ago, to bound write amplification under bursty
	// access (coalescing relies on this).
	sinceAccessGate := now.Sub(m.LastAccessedAt())
	if sinceAccessGate < cfg.MinUpdateInterval {
		return res
	}

	// Step 3: reinforcement — an access within reinforce_window of the last
	// access nudges resonance back toward 1.0 instead of decaying it,
	// modeling spaced-repetition style strengthening.
	sinceAccess := now.Sub(m.LastAccessedAt())
	if m.Reinforceable() && sinceAccess <= cfg.ReinforceWindow && sinceAccess >= 0 {
		reinforced := reinforce(m.StoredResonance())
		res.NewResonance = reinforced
		res.Reinforced = true
		res.AccessedAt = now
		res.ShouldUpdate = significant(m.StoredResonance(), reinforced, cfg.SignificanceThreshold)
		return res
	}

	// Step 4: never_decay memories hold resonance at 1.0 indefinitely.
	if m.NeverDecay() {
		if m.StoredResonance() >= 1.0 {
			return res
		}
		res.NewResonance = 1.0
		res.ShouldUpdate = significant(m.StoredResonance(), 1.0, cfg.SignificanceThreshold)
		return res
	}

	// Step 5: exponential decay against the memory's effective half-life.
	ageDays := now.Sub(m.CreatedAt()).Hours() / 24
	halfLife := m.HalfLifeDays()
	if halfLife <= 0 {
		halfLife = m.Type().DefaultHalfLifeDays()
	}
	decayed := math.Exp(-math.Ln2 * ageDays / halfLife)
	decayed = clamp01(decayed)

	// Step 6: only report should_update when the change clears
	// significance_threshold, so the batch processor never flushes noise.
	res.NewResonance = decayed
	res.ShouldUpdate = significant(m.StoredResonance(), decayed, cfg.SignificanceThreshold)
	return res
}

// CalculateBatch applies Calculate to every memory in ms, returning only
// the results in the same order (callers filter on ShouldUpdate).
func CalculateBatch(ms []*memdomain.Memory, now time.Time, cfg Config) []Result {
	out := make([]Result, len(ms))
	for i, m := range ms {
		out[i] = Calculate(m, now, cfg)
	}
	return out
}

// reinforce nudges resonance halfway to 1.0, an exponential-approach
// formulation that keeps repeated reinforcement from overshooting 1.0.
func reinforce(current float64) float64 {
	return clamp01(current + (1.0-current)*0.5)
}

func significant(old, new, threshold float64) bool {
	return math.Abs(new-old) >= threshold
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
