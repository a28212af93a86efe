// Package temporal implements the cancellable background temporal-pattern
// analysis task (spec §4.C8): derives a compact temporal_insights object
// for a memory from the user's broader memory set and writes it back into
// the source memory's metadata. Grounded on the teacher's
// internal/service/llm background-task cancellation pattern (a context
// passed down to every step, checked before any I/O).
package temporal

import (
	"context"
	"math"
	"sort"
	"time"

	"agentmem/internal/apperr"
	"agentmem/internal/capability"
	"agentmem/internal/memdomain"
)

const component = "temporal"

// Insights is the advisory object written into memdomain.MetaTemporalInsights.
// Recall's temporal score dimension (§4.C12) reads back only RecencyScore
// (averaged with its own recency term); the histograms and burstiness are
// not read by recall.
type Insights struct {
	HourOfDayHistogram [24]int   `json:"hour_of_day_histogram"`
	DayOfWeekHistogram [7]int    `json:"day_of_week_histogram"`
	RecencyScore       float64   `json:"recency_score"`
	AccessBurstiness   float64   `json:"access_burstiness"`
	AnalyzedAt         time.Time `json:"analyzed_at"`
}

// Analyzer runs one analysis task per call to Analyze; the caller
// (MemoryManager.Store, which runs it in a goroutine) is responsible for
// scheduling it off the request path and for cancelling ctx on shutdown.
type Analyzer struct {
	store capability.StorageProvider
}

func New(store capability.StorageProvider) *Analyzer {
	return &Analyzer{store: store}
}

// Analyze computes temporal insights for target using the user's other
// memories of the same type as corpus, and writes the result into
// target's metadata. It checks ctx before the single write it performs, so
// a cancelled task never mutates storage (spec §4.C8 cancellation
// contract).
func (a *Analyzer) Analyze(ctx context.Context, userID, agentID string, target *memdomain.Memory, now time.Time) error {
	typ := target.Type()
	corpus, err := a.store.Recall(ctx, userID, agentID, "", capability.RecallOptions{Type: &typ})
	if err != nil {
		return apperr.Wrap(apperr.Transient, component, "load corpus for temporal analysis", err)
	}

	insights := compute(corpus, target, now)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	target.SetMetadata(memdomain.MetaTemporalInsights, insights, now)
	if err := a.store.Update(ctx, target); err != nil {
		return apperr.Wrap(apperr.Transient, component, "persist temporal insights", err).WithMemoryID(target.ID().String())
	}
	return nil
}

func compute(corpus []*memdomain.Memory, target *memdomain.Memory, now time.Time) Insights {
	var ins Insights
	ins.AnalyzedAt = now

	accessTimes := make([]time.Time, 0, len(corpus))
	for _, m := range corpus {
		t := m.LastAccessedAt()
		ins.HourOfDayHistogram[t.Hour()]++
		ins.DayOfWeekHistogram[int(t.Weekday())]++
		accessTimes = append(accessTimes, t)
	}

	age := now.Sub(target.CreatedAt())
	ins.RecencyScore = recencyScore(age)
	ins.AccessBurstiness = burstiness(accessTimes)
	return ins
}

// recencyScore decays exponentially with a 7-day half-life, a fixed
// constant independent of the memory's own decay half-life since this is
// an advisory recall signal, not the authoritative resonance value.
func recencyScore(age time.Duration) float64 {
	days := age.Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Exp2(-days / 7)
}

func burstiness(times []time.Time) float64 {
	if len(times) < 2 {
		return 0
	}
	sorted := append([]time.Time(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	var gaps []float64
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, sorted[i].Sub(sorted[i-1]).Seconds())
	}
	mean := meanOf(gaps)
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, g := range gaps {
		variance += (g - mean) * (g - mean)
	}
	variance /= float64(len(gaps))
	return math.Sqrt(variance) / mean // coefficient of variation
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
