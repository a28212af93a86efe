package memdomain

import "agentmem/internal/apperr"

// Importance is assigned at creation and never decays (invariant 3:
// importance ∈ [0,1]; writes outside range are rejected).
type Importance struct{ value float64 }

func NewImportance(v float64) (Importance, error) {
	if v < 0 || v > 1 {
		return Importance{}, apperr.Invalidf(component, "importance %.4f out of range [0,1]", v)
	}
	return Importance{value: v}, nil
}

func (i Importance) Float64() float64 { return i.value }

// Resonance is the dynamic salience score; it decays with time and is
// reinforced by access. Invariant 2 requires callers to always observe the
// lazily-computed value, never the stored one directly — this value object
// only enforces the [0,1] range, the decay package owns the lazy
// computation.
type Resonance struct{ value float64 }

func NewResonance(v float64) (Resonance, error) {
	if v < 0 || v > 1 {
		return Resonance{}, apperr.Invalidf(component, "resonance %.4f out of range [0,1]", v)
	}
	return Resonance{value: v}, nil
}

// FullResonance is the initial resonance assigned to every new memory.
func FullResonance() Resonance { return Resonance{value: 1.0} }

func (r Resonance) Float64() float64 { return r.value }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
