// Package history provides the bounded, time-ordered log of produced
// responses that the metrics aggregator and choreography engine read.
package history

import (
	"sync"

	"github.com/soullab/oracle-choreography/core"
)

// DefaultCapacity bounds a session's retained response records.
const DefaultCapacity = 20

// Ring is a fixed-capacity FIFO of response records. One append happens per
// completed turn; concurrent readers observe either the pre- or post-append
// state, never a partially written record.
type Ring struct {
	mu       sync.RWMutex
	records  []core.ResponseRecord
	capacity int
}

// NewRing creates a ring with the given capacity. Non-positive capacities
// fall back to DefaultCapacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{capacity: capacity}
}

// Append adds a record, evicting the oldest when at capacity.
func (r *Ring) Append(record core.ResponseRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) == r.capacity {
		copy(r.records, r.records[1:])
		r.records[len(r.records)-1] = record
		return
	}
	r.records = append(r.records, record)
}

// Tail returns the n most recent records in chronological order. n is
// clamped to the current size.
func (r *Ring) Tail(n int) []core.ResponseRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n > len(r.records) {
		n = len(r.records)
	}
	if n <= 0 {
		return nil
	}
	out := make([]core.ResponseRecord, n)
	copy(out, r.records[len(r.records)-n:])
	return out
}

// All returns a chronological copy of every retained record.
func (r *Ring) All() []core.ResponseRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.ResponseRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Len returns the current number of retained records.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Capacity returns the configured maximum size.
func (r *Ring) Capacity() int {
	return r.capacity
}
