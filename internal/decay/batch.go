package decay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agentmem/internal/apperr"
	"agentmem/internal/capability"
)

const component = "decay"

// pendingUpdate is a coalesced write: repeated Enqueue calls for the same
// memory id replace the previous entry rather than appending, so a memory
// touched a hundred times between flushes still produces exactly one
// write (§4.C5 coalescing invariant).
type pendingUpdate struct {
	update capability.MemoryUpdate
}

// BatchProcessor coalesces decay results into a bounded pending set and
// flushes them to a BatchUpdateOps-capable storage provider, either on a
// timer or on demand. Grounded on the retry/backoff and bounded-queue
// shape of internal/repository/retry.go, adapted here to a write-behind
// cache rather than a read-path retrier.
type BatchProcessor struct {
	store      capability.BatchUpdateOps
	maxPending int
	maxBatch   int

	mu        sync.Mutex
	pending   map[string]pendingUpdate
	order     []string // FIFO eviction order for overflow handling
	evictions int64    // S4: exactly one eviction counter increments per dropped update

	flushMu sync.Mutex // serializes concurrent Flush calls
}

func NewBatchProcessor(store capability.BatchUpdateOps, maxPending, maxBatch int) *BatchProcessor {
	if maxBatch <= 0 {
		maxBatch = 100
	}
	if maxPending <= 0 {
		maxPending = 10000
	}
	return &BatchProcessor{
		store:      store,
		maxPending: maxPending,
		maxBatch:   maxBatch,
		pending:    make(map[string]pendingUpdate),
	}
}

// Enqueue stages a decay result for the next flush. If the memory already
// has a pending update it is replaced (coalesced), not duplicated. When the
// pending set is at capacity and a genuinely new memory id arrives, the
// oldest pending entry is evicted and an apperr.Overflow error is returned
// so callers can account for dropped updates rather than silently losing
// them.
func (b *BatchProcessor) Enqueue(r Result) error {
	if !r.ShouldUpdate {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	update := toUpdate(r)

	existing, exists := b.pending[r.MemoryID]
	if exists {
		// Coalescing replaces the pending write, but access_count must be
		// merged as a max rather than overwritten: a stale recompute racing
		// behind a fresher one must never move the persisted count backwards
		// (§4.C5 add-merge).
		if existing.update.AccessCount > update.AccessCount {
			update.AccessCount = existing.update.AccessCount
		}
		b.pending[r.MemoryID] = pendingUpdate{update: update}
		return nil
	}

	if len(b.pending) >= b.maxPending {
		oldest := b.order[0]
		b.order = b.order[1:]
		delete(b.pending, oldest)
		b.pending[r.MemoryID] = pendingUpdate{update: update}
		b.order = append(b.order, r.MemoryID)
		b.evictions++
		return apperr.New(apperr.Overflow, component, "pending decay queue full; evicted oldest update").WithMemoryID(oldest)
	}

	b.order = append(b.order, r.MemoryID)
	b.pending[r.MemoryID] = pendingUpdate{update: update}
	return nil
}

func toUpdate(r Result) capability.MemoryUpdate {
	return capability.MemoryUpdate{
		MemoryID:       r.MemoryID,
		Resonance:      r.NewResonance,
		LastAccessedAt: r.AccessedAt,
		AccessCount:    r.AccessCount,
	}
}

// Pending reports the current coalesced queue depth, for metrics.
func (b *BatchProcessor) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Evictions reports the cumulative count of pending updates dropped to
// overflow (§4.C5 S4), for callers that enqueue without inspecting each
// call's error return.
func (b *BatchProcessor) Evictions() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evictions
}

// Flush drains up to maxBatch pending updates per call, repeating until the
// queue is empty or ctx is cancelled. Concurrent Flush calls are serialized
// so two overlapping timers never double-flush the same generation of
// updates; a caller blocked on flushMu simply waits for the in-flight flush
// to finish instead of racing it.
func (b *BatchProcessor) Flush(ctx context.Context) (capability.BatchUpdateResult, error) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	var total capability.BatchUpdateResult
	var failedChunks int
	for {
		chunk := b.drain(b.maxBatch)
		if len(chunk) == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
		res, err := b.store.BatchUpdateMemories(ctx, chunk)
		if err != nil {
			// A transport error on one chunk must not block the rest: the
			// remaining drained chunks still get a flush attempt, and this
			// chunk's failure is surfaced in total.Errors rather than
			// aborting the loop.
			failedChunks++
			total.Failed += len(chunk)
			total.Errors = append(total.Errors, apperr.Wrap(apperr.Transient, component, "flush decay batch chunk", err))
			continue
		}
		total.Succeeded += res.Succeeded
		total.Failed += res.Failed
		total.Errors = append(total.Errors, res.Errors...)
	}
	if failedChunks > 0 {
		return total, apperr.New(apperr.Transient, component, fmt.Sprintf("%d decay batch chunk(s) failed to flush", failedChunks))
	}
	return total, nil
}

func (b *BatchProcessor) drain(n int) []capability.MemoryUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > len(b.order) {
		n = len(b.order)
	}
	if n == 0 {
		return nil
	}
	ids := b.order[:n]
	b.order = b.order[n:]
	out := make([]capability.MemoryUpdate, 0, n)
	for _, id := range ids {
		out = append(out, b.pending[id].update)
		delete(b.pending, id)
	}
	return out
}

// Runner drives periodic Flush calls until ctx is cancelled, the lazy-decay
// analogue of the teacher's background goroutine lifecycle pattern used by
// its connection/temporal workers.
func (b *BatchProcessor) Runner(ctx context.Context, interval time.Duration) func() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_, _ = b.Flush(context.Background())
				return
			case <-ticker.C:
				_, _ = b.Flush(ctx)
			}
		}
	}()
	return func() { <-done }
}
