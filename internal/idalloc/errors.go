package idalloc

import "errors"

// Allocation errors. Callers match them with errors.Is.
var (
	// ErrCapacityExhausted means every issuable letter pair of the year is
	// used up. Not retryable.
	ErrCapacityExhausted = errors.New("identifier capacity exhausted for year")

	// ErrRetryLimitExceeded means no free slot was found within the attempt
	// budget. The caller may retry the whole operation later.
	ErrRetryLimitExceeded = errors.New("identifier allocation retry limit exceeded")

	// ErrCorruptCursor means the persisted floor violates the cursor invariant.
	ErrCorruptCursor = errors.New("identifier cursor is corrupt")

	// ErrInvalidYear is returned for years outside 0..99.
	ErrInvalidYear = errors.New("invalid allocation year")
)

// Failure reasons reported to metrics.
const (
	ReasonCapacityExhausted = "capacity_exhausted"
	ReasonRetryLimit        = "retry_limit"
	ReasonStorage           = "storage"
)

// FailureReason classifies an allocation error for metrics and logs.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrCapacityExhausted):
		return ReasonCapacityExhausted
	case errors.Is(err, ErrRetryLimitExceeded):
		return ReasonRetryLimit
	default:
		return ReasonStorage
	}
}
