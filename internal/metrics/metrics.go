// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Identifier allocation metrics
	IncIdentifierIssued()
	IncIdentifierCollision()
	IncFloorAdvanced()
	IncAllocationFailed(reason string) // reason: "capacity_exhausted", "retry_limit", "storage"
	ObserveAllocationDuration(duration time.Duration)

	// User metrics
	IncUserRegistered()
	IncUserDeleted()
	IncUserCacheHit()
	IncUserCacheMiss()

	// Audit stream metrics
	IncAuditEventPublished(result string) // result: "success", "dropped"
	IncAuditEventProcessed(result string) // result: "success", "failed", "dead_lettered"
	SetAuditQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
