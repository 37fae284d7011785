package idalloc

import "context"

// Store persists identifier cursors and the set of issued identifiers.
type Store interface {
	// WithYearLock runs fn while holding an exclusive lock on the cursor of
	// year, creating the cursor at InitialFloor first if it does not exist.
	// Work done through the CursorTx is committed when fn returns nil and
	// rolled back otherwise.
	WithYearLock(ctx context.Context, year int, fn func(ctx context.Context, tx CursorTx) error) error
}

// CursorTx is the transactional view of one year's cursor handed to
// WithYearLock callbacks.
type CursorTx interface {
	// Floor returns the current letter-pair floor.
	Floor(ctx context.Context) (string, error)
	// SetFloor persists a new floor.
	SetFloor(ctx context.Context, floor string) error
	// Exists reports whether code was already issued.
	Exists(ctx context.Context, code string) (bool, error)
	// Issue records code as issued.
	Issue(ctx context.Context, code string) error
	// CountAtFloor returns how many identifiers of the locked year were
	// issued under floor.
	CountAtFloor(ctx context.Context, floor string) (int, error)
}
