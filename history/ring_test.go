package history

import (
	"fmt"
	"testing"

	"github.com/soullab/oracle-choreography/core"
)

func record(i int) core.ResponseRecord {
	return core.ResponseRecord{
		ID:      fmt.Sprintf("rec-%d", i),
		AgentID: fmt.Sprintf("agent-%d", i%3),
		UserID:  "user-1",
	}
}

func TestRing_CapacityNeverExceeded(t *testing.T) {
	r := NewRing(5)
	for i := 0; i < 50; i++ {
		r.Append(record(i))
		if r.Len() > 5 {
			t.Fatalf("after %d appends, length %d exceeds capacity", i+1, r.Len())
		}
	}
	if r.Len() != 5 {
		t.Errorf("Len = %d, want 5", r.Len())
	}
}

func TestRing_EvictionIsFIFO(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Append(record(i))
	}
	all := r.All()
	want := []string{"rec-2", "rec-3", "rec-4"}
	for i, rec := range all {
		if rec.ID != want[i] {
			t.Errorf("records[%d].ID = %s, want %s", i, rec.ID, want[i])
		}
	}
}

func TestRing_TailClampsToSize(t *testing.T) {
	r := NewRing(10)
	r.Append(record(0))
	r.Append(record(1))

	tail := r.Tail(5)
	if len(tail) != 2 {
		t.Fatalf("Tail(5) returned %d records, want 2", len(tail))
	}
	if tail[0].ID != "rec-0" || tail[1].ID != "rec-1" {
		t.Errorf("Tail order wrong: %s, %s", tail[0].ID, tail[1].ID)
	}

	if got := r.Tail(0); got != nil {
		t.Errorf("Tail(0) = %v, want nil", got)
	}
}

func TestRing_TailReturnsMostRecent(t *testing.T) {
	r := NewRing(10)
	for i := 0; i < 8; i++ {
		r.Append(record(i))
	}
	tail := r.Tail(3)
	want := []string{"rec-5", "rec-6", "rec-7"}
	for i, rec := range tail {
		if rec.ID != want[i] {
			t.Errorf("tail[%d].ID = %s, want %s", i, rec.ID, want[i])
		}
	}
}

func TestRing_DefaultCapacity(t *testing.T) {
	r := NewRing(0)
	if r.Capacity() != DefaultCapacity {
		t.Errorf("Capacity = %d, want %d", r.Capacity(), DefaultCapacity)
	}
}

func TestRing_AllReturnsCopy(t *testing.T) {
	r := NewRing(5)
	r.Append(record(0))
	all := r.All()
	all[0].ID = "mutated"
	if r.All()[0].ID != "rec-0" {
		t.Error("All must return a copy, not the backing slice")
	}
}
