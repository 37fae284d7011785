package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestInMemoryRecorder_Counts(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncIdentifierIssued()
			m.IncIdentifierCollision()
			m.ObserveAllocationDuration(time.Millisecond)
		}()
	}
	wg.Wait()

	m.IncFloorAdvanced()
	m.IncAllocationFailed("capacity_exhausted")
	m.IncAllocationFailed("retry_limit")
	m.IncAllocationFailed("something_else")
	m.IncAuditEventPublished("success")
	m.IncAuditEventPublished("dropped")
	m.IncAuditEventProcessed("success")
	m.IncAuditEventProcessed("dead_lettered")
	m.IncAuditEventProcessed("failed")
	m.SetAuditQueueDepth(7)
	m.SetAuditQueueDepth(3)

	s := m.Snapshot()
	checks := []struct {
		name      string
		got, want uint64
	}{
		{"issued", s.IdentifiersIssued, 20},
		{"collisions", s.IdentifierCollisions, 20},
		{"duration count", s.AllocationDurationCount, 20},
		{"floors", s.FloorsAdvanced, 1},
		{"capacity", s.AllocationsCapacityFailed, 1},
		{"retry", s.AllocationsRetryFailed, 1},
		{"storage", s.AllocationsStorageFailed, 1},
		{"published", s.AuditPublished, 1},
		{"dropped", s.AuditDropped, 1},
		{"processed", s.AuditProcessed, 1},
		{"dead lettered", s.AuditDeadLettered, 1},
		{"failed", s.AuditFailed, 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
	if s.AllocationDurationTotalNs != int64(20*time.Millisecond) {
		t.Errorf("duration total = %d", s.AllocationDurationTotalNs)
	}
	if s.AuditQueueDepth != 3 {
		t.Errorf("queue depth = %d, want last value 3", s.AuditQueueDepth)
	}
}

func TestNoopRecorder_SatisfiesRecorder(t *testing.T) {
	t.Parallel()

	var r Recorder = NewNoop()
	r.IncIdentifierIssued()
	r.IncAllocationFailed("retry_limit")
	r.SetAuditQueueDepth(1)
}
