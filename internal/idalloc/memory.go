package idalloc

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store. Each year has its own lock, so
// different years never block each other. Changes made inside a callback
// are staged and only applied when the callback succeeds.
type MemoryStore struct {
	mu     sync.Mutex // guards years, floors, issued, counts
	years  map[int]*sync.Mutex
	floors map[int]string
	issued map[string]struct{}
	counts map[floorKey]int
}

type floorKey struct {
	year  int
	floor string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		years:  make(map[int]*sync.Mutex),
		floors: make(map[int]string),
		issued: make(map[string]struct{}),
		counts: make(map[floorKey]int),
	}
}

// Seed marks codes as already issued.
func (s *MemoryStore) Seed(codes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range codes {
		s.add(c)
	}
}

// add records c as issued. Callers hold s.mu.
func (s *MemoryStore) add(code string) {
	if _, ok := s.issued[code]; ok {
		return
	}
	s.issued[code] = struct{}{}
	if id, err := Parse(code); err == nil {
		s.counts[floorKey{id.Year, id.Floor}]++
	}
}

// SetFloor forces the cursor of year to floor.
func (s *MemoryStore) SetFloor(year int, floor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.floors[year] = floor
}

// Floor returns the committed floor of year and whether the cursor exists.
func (s *MemoryStore) Floor(year int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.floors[year]
	return f, ok
}

// Issued returns all issued codes in sorted order.
func (s *MemoryStore) Issued() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.issued))
	for c := range s.issued {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (s *MemoryStore) yearLock(year int) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.years[year]
	if !ok {
		l = &sync.Mutex{}
		s.years[year] = l
	}
	if _, ok := s.floors[year]; !ok {
		s.floors[year] = InitialFloor
	}
	return l
}

// WithYearLock implements Store.
func (s *MemoryStore) WithYearLock(ctx context.Context, year int, fn func(ctx context.Context, tx CursorTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l := s.yearLock(year)
	l.Lock()
	defer l.Unlock()

	floor, _ := s.Floor(year)
	tx := &memoryTx{store: s, year: year, floor: floor, staged: make(map[string]struct{})}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.floors[year] = tx.floor
	for c := range tx.staged {
		s.add(c)
	}
	return nil
}

type memoryTx struct {
	store  *MemoryStore
	year   int
	floor  string
	staged map[string]struct{}
}

func (t *memoryTx) Floor(ctx context.Context) (string, error) {
	return t.floor, ctx.Err()
}

func (t *memoryTx) SetFloor(ctx context.Context, floor string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.floor = floor
	return nil
}

func (t *memoryTx) Exists(ctx context.Context, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, ok := t.staged[code]; ok {
		return true, nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	_, ok := t.store.issued[code]
	return ok, nil
}

func (t *memoryTx) Issue(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.staged[code] = struct{}{}
	return nil
}

func (t *memoryTx) CountAtFloor(ctx context.Context, floor string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	prefix := fmt.Sprintf("%s%02d%s", Prefix, t.year, floor)
	n := 0
	for c := range t.staged {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return n + t.store.counts[floorKey{t.year, floor}], nil
}
