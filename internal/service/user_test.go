package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prolearn/prolearn/internal/cache"
	"github.com/prolearn/prolearn/internal/idalloc"
	"github.com/prolearn/prolearn/internal/metrics"
	"github.com/prolearn/prolearn/internal/model"
	"github.com/prolearn/prolearn/internal/repository"
)

type fakeUserStore struct {
	mu        sync.Mutex
	byCode    map[string]*model.User
	createErr error
	lookups   int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byCode: make(map[string]*model.User)}
}

func (f *fakeUserStore) CreateUser(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, u := range f.byCode {
		if u.Email == user.Email {
			return repository.ErrEmailExists
		}
	}
	f.byCode[user.Code] = user
	return nil
}

func (f *fakeUserStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byCode {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUserStore) GetUserByCode(ctx context.Context, code string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if u, ok := f.byCode[code]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUserStore) DeleteUserByCode(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byCode[code]; !ok {
		return repository.ErrUserNotFound
	}
	delete(f.byCode, code)
	return nil
}

type fakeAllocator struct {
	codes []string
	err   error
	calls int
}

func (f *fakeAllocator) Allocate(ctx context.Context) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	code := f.codes[0]
	f.codes = f.codes[1:]
	return code, nil
}

type fakeCache struct {
	users    map[string]*model.User
	negative map[string]bool
	negErr   error
	setErr   error
}

func newFakeCache() *fakeCache {
	return &fakeCache{users: make(map[string]*model.User), negative: make(map[string]bool)}
}

func (f *fakeCache) GetUser(ctx context.Context, code string) (*model.User, error) {
	if u, ok := f.users[code]; ok {
		return u, nil
	}
	return nil, cache.ErrCacheMiss
}

func (f *fakeCache) SetUser(ctx context.Context, user *model.User) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.users[user.Code] = user
	delete(f.negative, user.Code)
	return nil
}

func (f *fakeCache) DeleteUser(ctx context.Context, code string) error {
	delete(f.users, code)
	delete(f.negative, code)
	return nil
}

func (f *fakeCache) IsNegativelyCached(ctx context.Context, code string) (bool, error) {
	if f.negErr != nil {
		return false, f.negErr
	}
	return f.negative[code], nil
}

func (f *fakeCache) SetNegativeCache(ctx context.Context, code string) error {
	f.negative[code] = true
	return nil
}

func newTestUserService(store UserStore, alloc CodeAllocator, c UserCache, rec metrics.Recorder) *UserService {
	svc := NewUserService(store, alloc, c, rec, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.hashPassword = func(p string) (string, error) { return "hashed:" + p, nil }
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func validInput() RegisterInput {
	return RegisterInput{Email: "Ada@Example.com ", Name: " Ada Lovelace ", Password: "analytical"}
}

func TestRegister_Success(t *testing.T) {
	t.Parallel()

	store := newFakeUserStore()
	alloc := &fakeAllocator{codes: []string{"prln26aa042"}}
	rec := metrics.NewInMemory()
	svc := newTestUserService(store, alloc, newFakeCache(), rec)

	user, err := svc.Register(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if user.Code != "prln26aa042" {
		t.Errorf("code = %q", user.Code)
	}
	if user.Email != "ada@example.com" {
		t.Errorf("email = %q, want normalized", user.Email)
	}
	if user.Name != "Ada Lovelace" {
		t.Errorf("name = %q", user.Name)
	}
	if user.Role != model.RoleStudent {
		t.Errorf("role = %q, want student default", user.Role)
	}
	if user.PasswordHash != "hashed:analytical" {
		t.Errorf("password hash = %q", user.PasswordHash)
	}
	if len(user.ID) != 26 {
		t.Errorf("id %q is not a ULID", user.ID)
	}
	if _, ok := store.byCode["prln26aa042"]; !ok {
		t.Error("user not stored")
	}
	if got := rec.Snapshot().UsersRegistered; got != 1 {
		t.Errorf("UsersRegistered = %d, want 1", got)
	}
}

func TestRegister_ValidationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*RegisterInput)
		wantErr error
	}{
		{"empty email", func(in *RegisterInput) { in.Email = "" }, ErrInvalidEmail},
		{"no at", func(in *RegisterInput) { in.Email = "ada.example.com" }, ErrInvalidEmail},
		{"no tld", func(in *RegisterInput) { in.Email = "ada@example" }, ErrInvalidEmail},
		{"long email", func(in *RegisterInput) { in.Email = strings.Repeat("a", 250) + "@x.io" }, ErrInvalidEmail},
		{"blank name", func(in *RegisterInput) { in.Name = "   " }, ErrInvalidName},
		{"long name", func(in *RegisterInput) { in.Name = strings.Repeat("n", 101) }, ErrInvalidName},
		{"short password", func(in *RegisterInput) { in.Password = "1234567" }, ErrPasswordTooShort},
		{"unknown role", func(in *RegisterInput) { in.Role = "dean" }, ErrInvalidRole},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			alloc := &fakeAllocator{codes: []string{"prln26aa001"}}
			svc := newTestUserService(newFakeUserStore(), alloc, nil, nil)

			in := validInput()
			tt.mutate(&in)
			_, err := svc.Register(context.Background(), in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if alloc.calls != 0 {
				t.Fatalf("allocator called %d times on invalid input", alloc.calls)
			}
		})
	}
}

func TestRegister_RoleCaseInsensitive(t *testing.T) {
	t.Parallel()

	svc := newTestUserService(newFakeUserStore(), &fakeAllocator{codes: []string{"prln26aa001"}}, nil, nil)
	in := validInput()
	in.Role = "HOD"
	user, err := svc.Register(context.Background(), in)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Role != model.RoleHOD {
		t.Fatalf("role = %q", user.Role)
	}
}

func TestRegister_DuplicateEmailSkipsAllocation(t *testing.T) {
	t.Parallel()

	store := newFakeUserStore()
	store.byCode["prln26aa001"] = &model.User{Code: "prln26aa001", Email: "ada@example.com"}
	alloc := &fakeAllocator{codes: []string{"prln26aa002"}}
	svc := newTestUserService(store, alloc, nil, nil)

	_, err := svc.Register(context.Background(), validInput())
	if !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
	if alloc.calls != 0 {
		t.Fatal("allocator should not run for a known email")
	}
}

func TestRegister_EmailRaceMapsToConflict(t *testing.T) {
	t.Parallel()

	store := newFakeUserStore()
	store.createErr = repository.ErrEmailExists
	svc := newTestUserService(store, &fakeAllocator{codes: []string{"prln26aa002"}}, nil, nil)

	_, err := svc.Register(context.Background(), validInput())
	if !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
}

func TestRegister_AllocatorErrorsAbort(t *testing.T) {
	t.Parallel()

	for _, allocErr := range []error{idalloc.ErrCapacityExhausted, idalloc.ErrRetryLimitExceeded} {
		store := newFakeUserStore()
		svc := newTestUserService(store, &fakeAllocator{err: allocErr}, nil, nil)

		_, err := svc.Register(context.Background(), validInput())
		if !errors.Is(err, allocErr) {
			t.Fatalf("expected %v, got %v", allocErr, err)
		}
		if len(store.byCode) != 0 {
			t.Fatal("no user should be stored when allocation fails")
		}
	}
}

func TestRegister_WithRealAllocator(t *testing.T) {
	t.Parallel()

	mem := idalloc.NewMemoryStore()
	alloc := idalloc.New(mem, idalloc.WithClock(func() time.Time {
		return time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	}))
	store := newFakeUserStore()
	svc := newTestUserService(store, alloc, nil, nil)

	user, err := svc.Register(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !strings.HasPrefix(user.Code, "prln26aa") || !idalloc.Valid(user.Code) {
		t.Fatalf("unexpected code %q", user.Code)
	}
	if issued := mem.Issued(); len(issued) != 1 || issued[0] != user.Code {
		t.Fatalf("ledger = %v", issued)
	}
}

func TestGetByCode_CacheAside(t *testing.T) {
	t.Parallel()

	store := newFakeUserStore()
	store.byCode["prln26aa001"] = &model.User{Code: "prln26aa001", Email: "a@b.io"}
	c := newFakeCache()
	rec := metrics.NewInMemory()
	svc := newTestUserService(store, nil, c, rec)
	ctx := context.Background()

	if _, err := svc.GetByCode(ctx, "prln26aa001"); err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	if _, err := svc.GetByCode(ctx, "prln26aa001"); err != nil {
		t.Fatalf("second lookup: %v", err)
	}

	if store.lookups != 1 {
		t.Fatalf("store lookups = %d, want 1", store.lookups)
	}
	snap := rec.Snapshot()
	if snap.UserCacheMisses != 1 || snap.UserCacheHits != 1 {
		t.Fatalf("hits=%d misses=%d", snap.UserCacheHits, snap.UserCacheMisses)
	}
}

func TestGetByCode_NegativeCache(t *testing.T) {
	t.Parallel()

	store := newFakeUserStore()
	c := newFakeCache()
	svc := newTestUserService(store, nil, c, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.GetByCode(ctx, "prln26aa404"); !errors.Is(err, ErrUserNotFound) {
			t.Fatalf("lookup %d: expected ErrUserNotFound, got %v", i, err)
		}
	}
	if store.lookups != 1 {
		t.Fatalf("store lookups = %d, want 1", store.lookups)
	}
}

func TestRegister_ClearsNegativeCacheForIssuedCode(t *testing.T) {
	t.Parallel()

	store := newFakeUserStore()
	c := newFakeCache()
	svc := newTestUserService(store, &fakeAllocator{codes: []string{"prln26aa042"}}, c, nil)
	ctx := context.Background()

	if _, err := svc.GetByCode(ctx, "prln26aa042"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("lookup before register: expected ErrUserNotFound, got %v", err)
	}

	if _, err := svc.Register(ctx, validInput()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	user, err := svc.GetByCode(ctx, "prln26aa042")
	if err != nil {
		t.Fatalf("lookup after register: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Errorf("email = %q", user.Email)
	}
}

func TestRegister_CacheWriteFailureIsLogged(t *testing.T) {
	t.Parallel()

	var logs strings.Builder
	c := newFakeCache()
	c.setErr = errors.New("redis down")
	svc := newTestUserService(newFakeUserStore(), &fakeAllocator{codes: []string{"prln26aa043"}}, c, nil)
	svc.logger = slog.New(slog.NewTextHandler(&logs, nil))

	if _, err := svc.Register(context.Background(), validInput()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !strings.Contains(logs.String(), "user cache write failed") {
		t.Errorf("expected cache write warning, got %q", logs.String())
	}
}

func TestGetByCode_NegativeCacheErrorFallsThrough(t *testing.T) {
	t.Parallel()

	var logs strings.Builder
	store := newFakeUserStore()
	store.byCode["prln26aa001"] = &model.User{Code: "prln26aa001", Email: "a@b.io"}
	c := newFakeCache()
	c.negErr = errors.New("redis down")
	svc := newTestUserService(store, nil, c, nil)
	svc.logger = slog.New(slog.NewTextHandler(&logs, nil))

	if _, err := svc.GetByCode(context.Background(), "prln26aa001"); err != nil {
		t.Fatalf("GetByCode: %v", err)
	}
	if store.lookups != 1 {
		t.Fatalf("store lookups = %d, want 1", store.lookups)
	}
	if !strings.Contains(logs.String(), "negative cache read failed") {
		t.Errorf("expected negative cache warning, got %q", logs.String())
	}
}

func TestGetByCode_InvalidCode(t *testing.T) {
	t.Parallel()

	svc := newTestUserService(newFakeUserStore(), nil, nil, nil)
	for _, code := range []string{"", "prln26pa001", "prln26aa000", "PRLN26AA001", "prln2026aa001"} {
		if _, err := svc.GetByCode(context.Background(), code); !errors.Is(err, ErrInvalidCode) {
			t.Errorf("GetByCode(%q): expected ErrInvalidCode, got %v", code, err)
		}
	}
}

func TestDelete_EvictsCacheAndKeepsLedger(t *testing.T) {
	t.Parallel()

	mem := idalloc.NewMemoryStore()
	alloc := idalloc.New(mem, idalloc.WithSlotSource(func() (int, error) { return 1, nil }))
	store := newFakeUserStore()
	c := newFakeCache()
	svc := newTestUserService(store, alloc, c, nil)
	ctx := context.Background()

	user, err := svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.GetByCode(ctx, user.Code); err != nil {
		t.Fatalf("GetByCode: %v", err)
	}

	if err := svc.Delete(ctx, user.Code); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := c.users[user.Code]; ok {
		t.Fatal("cache entry not evicted")
	}
	if err := svc.Delete(ctx, user.Code); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("second delete: expected ErrUserNotFound, got %v", err)
	}

	// The deleted code stays in the ledger, so the next registration
	// collides on it and moves to the next floor.
	in := validInput()
	in.Email = "grace@example.com"
	next, err := svc.Register(ctx, in)
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}
	if next.Code == user.Code {
		t.Fatalf("deleted code %q was reissued", user.Code)
	}
	id, err := idalloc.Parse(next.Code)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id.Floor != "ab" || id.Slot != 1 {
		t.Fatalf("next code = %q, want floor ab slot 1", next.Code)
	}
}
