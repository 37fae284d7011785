package idalloc

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/prolearn/prolearn/internal/metrics"
)

// Default retry policy.
const (
	DefaultMaxAttempts  = 50
	DefaultAdvanceEvery = 5
)

// Policy bounds the random slot search.
type Policy struct {
	// MaxAttempts is the total number of candidates tried per call.
	MaxAttempts int
	// AdvanceEvery is the number of collisions at one floor that moves the
	// floor forward.
	AdvanceEvery int
}

// DefaultPolicy returns the standard 50 attempts / advance every 5 policy.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, AdvanceEvery: DefaultAdvanceEvery}
}

func (p Policy) normalize() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.AdvanceEvery < 1 {
		p.AdvanceEvery = DefaultAdvanceEvery
	}
	return p
}

// SlotSource draws a slot in [MinSlot, MaxSlot].
type SlotSource func() (int, error)

// Allocator mints unique identifiers backed by a Store.
type Allocator struct {
	store   Store
	policy  Policy
	now     func() time.Time
	slot    SlotSource
	metrics metrics.Recorder
	logger  *slog.Logger
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithPolicy overrides the retry policy.
func WithPolicy(p Policy) Option {
	return func(a *Allocator) { a.policy = p.normalize() }
}

// WithClock overrides the clock used to derive the allocation year.
func WithClock(now func() time.Time) Option {
	return func(a *Allocator) { a.now = now }
}

// WithSlotSource overrides the random slot source.
func WithSlotSource(src SlotSource) Option {
	return func(a *Allocator) { a.slot = src }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(a *Allocator) { a.metrics = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Allocator) { a.logger = l }
}

// New creates an Allocator.
func New(store Store, opts ...Option) *Allocator {
	a := &Allocator{
		store:   store,
		policy:  DefaultPolicy(),
		now:     time.Now,
		slot:    cryptoSlot,
		metrics: metrics.NewNoop(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = metrics.NewNoop()
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Policy returns the active retry policy.
func (a *Allocator) Policy() Policy {
	return a.policy
}

// Allocate mints an identifier for the current year.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	return a.AllocateForYear(ctx, YearOf(a.now()))
}

// AllocateForYear mints an identifier for the two-digit year.
//
// The whole search runs under the year's cursor lock. Floors whose slots are
// all issued are skipped without spending attempts, so a year with no free
// floor left fails with ErrCapacityExhausted. Every AdvanceEvery collisions
// at the current floor the floor moves forward. Floor changes are persisted
// inside the same transaction and any error rolls them back.
func (a *Allocator) AllocateForYear(ctx context.Context, year int) (string, error) {
	if year < 0 || year > 99 {
		return "", fmt.Errorf("%w: %d", ErrInvalidYear, year)
	}

	start := time.Now()
	defer func() {
		a.metrics.ObserveAllocationDuration(time.Since(start))
	}()

	var code string
	err := a.store.WithYearLock(ctx, year, func(ctx context.Context, tx CursorTx) error {
		var err error
		code, err = a.search(ctx, tx, year)
		return err
	})
	if err != nil {
		reason := FailureReason(err)
		a.metrics.IncAllocationFailed(reason)
		a.logger.WarnContext(ctx, "identifier allocation failed",
			slog.Int("year", year),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return "", err
	}

	a.metrics.IncIdentifierIssued()
	return code, nil
}

func (a *Allocator) search(ctx context.Context, tx CursorTx, year int) (string, error) {
	floor, err := tx.Floor(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read cursor: %w", err)
	}
	if !ValidFloor(floor) {
		return "", fmt.Errorf("%w: year %02d floor %q", ErrCorruptCursor, year, floor)
	}
	if floor, err = a.skipFullFloors(ctx, tx, year, floor); err != nil {
		return "", err
	}

	collisions := 0
	for attempt := 1; attempt <= a.policy.MaxAttempts; attempt++ {
		n, err := a.slot()
		if err != nil {
			return "", fmt.Errorf("failed to draw slot: %w", err)
		}
		if n < MinSlot || n > MaxSlot {
			return "", fmt.Errorf("slot %d out of range", n)
		}

		candidate := Format(year, floor, n)
		exists, err := tx.Exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check identifier: %w", err)
		}
		if !exists {
			if err := tx.Issue(ctx, candidate); err != nil {
				return "", fmt.Errorf("failed to issue identifier: %w", err)
			}
			return candidate, nil
		}

		a.metrics.IncIdentifierCollision()
		collisions++
		if collisions%a.policy.AdvanceEvery != 0 {
			continue
		}

		next, err := a.advance(ctx, tx, year, floor)
		if err != nil {
			return "", err
		}
		if floor, err = a.skipFullFloors(ctx, tx, year, next); err != nil {
			return "", err
		}
		collisions = 0
	}

	return "", fmt.Errorf("%w: %d attempts for year %02d", ErrRetryLimitExceeded, a.policy.MaxAttempts, year)
}

// skipFullFloors moves past every floor from floor onwards that has no free
// slot and returns the first floor that still has one.
func (a *Allocator) skipFullFloors(ctx context.Context, tx CursorTx, year int, floor string) (string, error) {
	for {
		n, err := tx.CountAtFloor(ctx, floor)
		if err != nil {
			return "", fmt.Errorf("failed to count floor %q: %w", floor, err)
		}
		if n < SlotsPerFloor {
			return floor, nil
		}
		if floor, err = a.advance(ctx, tx, year, floor); err != nil {
			return "", err
		}
	}
}

// advance persists the floor after floor.
func (a *Allocator) advance(ctx context.Context, tx CursorTx, year int, floor string) (string, error) {
	next, err := NextFloor(floor)
	if err != nil {
		return "", fmt.Errorf("%w: year %02d at floor %q", err, year, floor)
	}
	if err := tx.SetFloor(ctx, next); err != nil {
		return "", fmt.Errorf("failed to advance cursor: %w", err)
	}
	a.metrics.IncFloorAdvanced()
	a.logger.DebugContext(ctx, "identifier floor advanced",
		slog.Int("year", year),
		slog.String("from", floor),
		slog.String("to", next),
	)
	return next, nil
}

// cryptoSlot returns a uniformly distributed slot using crypto/rand.
func cryptoSlot() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(MaxSlot))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()) + MinSlot, nil
}
