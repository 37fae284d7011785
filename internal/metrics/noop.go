package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncIdentifierIssued is a no-op.
func (n *NoopRecorder) IncIdentifierIssued() {}

// IncIdentifierCollision is a no-op.
func (n *NoopRecorder) IncIdentifierCollision() {}

// IncFloorAdvanced is a no-op.
func (n *NoopRecorder) IncFloorAdvanced() {}

// IncAllocationFailed is a no-op.
func (n *NoopRecorder) IncAllocationFailed(reason string) {}

// ObserveAllocationDuration is a no-op.
func (n *NoopRecorder) ObserveAllocationDuration(duration time.Duration) {}

// IncUserRegistered is a no-op.
func (n *NoopRecorder) IncUserRegistered() {}

// IncUserDeleted is a no-op.
func (n *NoopRecorder) IncUserDeleted() {}

// IncUserCacheHit is a no-op.
func (n *NoopRecorder) IncUserCacheHit() {}

// IncUserCacheMiss is a no-op.
func (n *NoopRecorder) IncUserCacheMiss() {}

// IncAuditEventPublished is a no-op.
func (n *NoopRecorder) IncAuditEventPublished(result string) {}

// IncAuditEventProcessed is a no-op.
func (n *NoopRecorder) IncAuditEventProcessed(result string) {}

// SetAuditQueueDepth is a no-op.
func (n *NoopRecorder) SetAuditQueueDepth(depth int64) {}
