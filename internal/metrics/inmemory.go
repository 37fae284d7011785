package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	IdentifiersIssued         uint64
	IdentifierCollisions      uint64
	FloorsAdvanced            uint64
	AllocationsCapacityFailed uint64
	AllocationsRetryFailed    uint64
	AllocationsStorageFailed  uint64
	AllocationDurationCount   uint64
	AllocationDurationTotalNs int64
	UsersRegistered           uint64
	UsersDeleted              uint64
	UserCacheHits             uint64
	UserCacheMisses           uint64
	AuditPublished            uint64
	AuditDropped              uint64
	AuditProcessed            uint64
	AuditFailed               uint64
	AuditDeadLettered         uint64
	AuditQueueDepth           int64
}

// InMemoryRecorder stores metrics in memory.
type InMemoryRecorder struct {
	identifiersIssued         uint64
	identifierCollisions      uint64
	floorsAdvanced            uint64
	allocationsCapacityFailed uint64
	allocationsRetryFailed    uint64
	allocationsStorageFailed  uint64
	allocationDurationCount   uint64
	allocationDurationTotalNs int64
	usersRegistered           uint64
	usersDeleted              uint64
	userCacheHits             uint64
	userCacheMisses           uint64
	auditPublished            uint64
	auditDropped              uint64
	auditProcessed            uint64
	auditFailed               uint64
	auditDeadLettered         uint64
	auditQueueDepth           int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		IdentifiersIssued:         atomic.LoadUint64(&m.identifiersIssued),
		IdentifierCollisions:      atomic.LoadUint64(&m.identifierCollisions),
		FloorsAdvanced:            atomic.LoadUint64(&m.floorsAdvanced),
		AllocationsCapacityFailed: atomic.LoadUint64(&m.allocationsCapacityFailed),
		AllocationsRetryFailed:    atomic.LoadUint64(&m.allocationsRetryFailed),
		AllocationsStorageFailed:  atomic.LoadUint64(&m.allocationsStorageFailed),
		AllocationDurationCount:   atomic.LoadUint64(&m.allocationDurationCount),
		AllocationDurationTotalNs: atomic.LoadInt64(&m.allocationDurationTotalNs),
		UsersRegistered:           atomic.LoadUint64(&m.usersRegistered),
		UsersDeleted:              atomic.LoadUint64(&m.usersDeleted),
		UserCacheHits:             atomic.LoadUint64(&m.userCacheHits),
		UserCacheMisses:           atomic.LoadUint64(&m.userCacheMisses),
		AuditPublished:            atomic.LoadUint64(&m.auditPublished),
		AuditDropped:              atomic.LoadUint64(&m.auditDropped),
		AuditProcessed:            atomic.LoadUint64(&m.auditProcessed),
		AuditFailed:               atomic.LoadUint64(&m.auditFailed),
		AuditDeadLettered:         atomic.LoadUint64(&m.auditDeadLettered),
		AuditQueueDepth:           atomic.LoadInt64(&m.auditQueueDepth),
	}
}

// IncIdentifierIssued increments the issued identifier counter.
func (m *InMemoryRecorder) IncIdentifierIssued() {
	atomic.AddUint64(&m.identifiersIssued, 1)
}

// IncIdentifierCollision increments the collision counter.
func (m *InMemoryRecorder) IncIdentifierCollision() {
	atomic.AddUint64(&m.identifierCollisions, 1)
}

// IncFloorAdvanced increments the floor advancement counter.
func (m *InMemoryRecorder) IncFloorAdvanced() {
	atomic.AddUint64(&m.floorsAdvanced, 1)
}

// IncAllocationFailed increments the failure counter for reason.
// Unknown reasons count as storage failures.
func (m *InMemoryRecorder) IncAllocationFailed(reason string) {
	switch reason {
	case "capacity_exhausted":
		atomic.AddUint64(&m.allocationsCapacityFailed, 1)
	case "retry_limit":
		atomic.AddUint64(&m.allocationsRetryFailed, 1)
	default:
		atomic.AddUint64(&m.allocationsStorageFailed, 1)
	}
}

// ObserveAllocationDuration records allocation duration.
func (m *InMemoryRecorder) ObserveAllocationDuration(duration time.Duration) {
	atomic.AddUint64(&m.allocationDurationCount, 1)
	atomic.AddInt64(&m.allocationDurationTotalNs, duration.Nanoseconds())
}

// IncUserRegistered increments the registration counter.
func (m *InMemoryRecorder) IncUserRegistered() {
	atomic.AddUint64(&m.usersRegistered, 1)
}

// IncUserDeleted increments the deletion counter.
func (m *InMemoryRecorder) IncUserDeleted() {
	atomic.AddUint64(&m.usersDeleted, 1)
}

// IncUserCacheHit increments the user cache hit counter.
func (m *InMemoryRecorder) IncUserCacheHit() {
	atomic.AddUint64(&m.userCacheHits, 1)
}

// IncUserCacheMiss increments the user cache miss counter.
func (m *InMemoryRecorder) IncUserCacheMiss() {
	atomic.AddUint64(&m.userCacheMisses, 1)
}

// IncAuditEventPublished counts publish outcomes.
func (m *InMemoryRecorder) IncAuditEventPublished(result string) {
	if result == "success" {
		atomic.AddUint64(&m.auditPublished, 1)
		return
	}
	atomic.AddUint64(&m.auditDropped, 1)
}

// IncAuditEventProcessed counts worker outcomes.
func (m *InMemoryRecorder) IncAuditEventProcessed(result string) {
	switch result {
	case "success":
		atomic.AddUint64(&m.auditProcessed, 1)
	case "dead_lettered":
		atomic.AddUint64(&m.auditDeadLettered, 1)
	default:
		atomic.AddUint64(&m.auditFailed, 1)
	}
}

// SetAuditQueueDepth records pending plus unread stream entries.
func (m *InMemoryRecorder) SetAuditQueueDepth(depth int64) {
	atomic.StoreInt64(&m.auditQueueDepth, depth)
}
