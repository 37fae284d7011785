package handler

import (
	"fmt"
	"net/http"

	"github.com/prolearn/prolearn/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "prolearn_identifiers_issued_total %d\n", snap.IdentifiersIssued)
	writeMetric(w, "prolearn_identifier_collisions_total %d\n", snap.IdentifierCollisions)
	writeMetric(w, "prolearn_identifier_floor_advances_total %d\n", snap.FloorsAdvanced)

	writeMetric(w, "prolearn_identifier_allocation_failures_total{reason=\"capacity_exhausted\"} %d\n", snap.AllocationsCapacityFailed)
	writeMetric(w, "prolearn_identifier_allocation_failures_total{reason=\"retry_limit\"} %d\n", snap.AllocationsRetryFailed)
	writeMetric(w, "prolearn_identifier_allocation_failures_total{reason=\"storage\"} %d\n", snap.AllocationsStorageFailed)

	writeMetric(w, "prolearn_identifier_allocation_duration_seconds_count %d\n", snap.AllocationDurationCount)
	writeMetric(w, "prolearn_identifier_allocation_duration_seconds_sum %.6f\n", float64(snap.AllocationDurationTotalNs)/1e9)

	writeMetric(w, "prolearn_users_registered_total %d\n", snap.UsersRegistered)
	writeMetric(w, "prolearn_users_deleted_total %d\n", snap.UsersDeleted)
	writeMetric(w, "prolearn_user_cache_hits_total %d\n", snap.UserCacheHits)
	writeMetric(w, "prolearn_user_cache_misses_total %d\n", snap.UserCacheMisses)

	writeMetric(w, "prolearn_audit_events_published_total{result=\"success\"} %d\n", snap.AuditPublished)
	writeMetric(w, "prolearn_audit_events_published_total{result=\"dropped\"} %d\n", snap.AuditDropped)
	writeMetric(w, "prolearn_audit_events_processed_total{result=\"success\"} %d\n", snap.AuditProcessed)
	writeMetric(w, "prolearn_audit_events_processed_total{result=\"failed\"} %d\n", snap.AuditFailed)
	writeMetric(w, "prolearn_audit_events_processed_total{result=\"dead_lettered\"} %d\n", snap.AuditDeadLettered)
	writeMetric(w, "prolearn_audit_queue_depth %d\n", snap.AuditQueueDepth)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
