package services

import (
	"iter"
	"sync"
	"time"

	"pulse/internal/models"
)

// RingBuffer keeps the most recent samples in arrival order.
//
// Eviction is batched: when an append pushes the length past capacity the
// oldest half of the buffer is dropped at once instead of one sample at a
// time. Under sustained high throughput this discards more history than a
// strict FIFO would, which widens the error of window percentiles. This is
// an accepted approximation.
type RingBuffer struct {
	mu       sync.RWMutex
	samples  []models.Sample
	capacity int
	onEvict  func(n int)
}

// NewRingBuffer creates a buffer holding at most capacity samples
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &RingBuffer{
		samples:  make([]models.Sample, 0, capacity),
		capacity: capacity,
	}
}

// Append adds a sample, evicting the oldest half when over capacity
func (rb *RingBuffer) Append(s models.Sample) {
	rb.mu.Lock()
	rb.samples = append(rb.samples, s)
	evicted := 0
	if len(rb.samples) > rb.capacity {
		evicted = len(rb.samples) / 2
		if len(rb.samples)-evicted > rb.capacity {
			evicted = len(rb.samples) - rb.capacity
		}
		kept := make([]models.Sample, len(rb.samples)-evicted, rb.capacity)
		copy(kept, rb.samples[evicted:])
		rb.samples = kept
	}
	onEvict := rb.onEvict
	rb.mu.Unlock()

	if evicted > 0 && onEvict != nil {
		onEvict(evicted)
	}
}

// Len returns the number of buffered samples
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.samples)
}

// Capacity returns the configured bound
func (rb *RingBuffer) Capacity() int {
	return rb.capacity
}

// snapshot copies the current contents under the read lock so callers can
// sort and scan without holding up writers
func (rb *RingBuffer) snapshot() []models.Sample {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	out := make([]models.Sample, len(rb.samples))
	copy(out, rb.samples)
	return out
}

// SnapshotSince yields samples at or after cutoff that are visible to tenant.
// Each call takes a fresh copy of the buffer.
func (rb *RingBuffer) SnapshotSince(cutoff time.Time, tenant string) iter.Seq[models.Sample] {
	return func(yield func(models.Sample) bool) {
		for _, s := range rb.snapshot() {
			if s.Timestamp.Before(cutoff) || !s.VisibleTo(tenant) {
				continue
			}
			if !yield(s) {
				return
			}
		}
	}
}

// Recent returns up to n of the newest samples visible to tenant, oldest first
func (rb *RingBuffer) Recent(n int, tenant string) []models.Sample {
	if n <= 0 {
		return []models.Sample{}
	}
	all := rb.snapshot()
	out := make([]models.Sample, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		if all[i].VisibleTo(tenant) {
			out = append(out, all[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
