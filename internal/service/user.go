// Package service provides business logic for the application.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/prolearn/prolearn/internal/audit"
	"github.com/prolearn/prolearn/internal/auth"
	"github.com/prolearn/prolearn/internal/cache"
	"github.com/prolearn/prolearn/internal/idalloc"
	"github.com/prolearn/prolearn/internal/metrics"
	"github.com/prolearn/prolearn/internal/model"
	"github.com/prolearn/prolearn/internal/repository"
)

// Service errors.
var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrInvalidName      = errors.New("name must be 1-100 characters")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrInvalidRole      = errors.New("invalid role")
	ErrInvalidCode      = errors.New("invalid user code")
	ErrEmailExists      = errors.New("email already registered")
	ErrUserNotFound     = errors.New("user not found")
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const (
	maxEmailLength    = 254
	maxNameLength     = 100
	minPasswordLength = 8
)

// UserStore persists users.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByCode(ctx context.Context, code string) (*model.User, error)
	DeleteUserByCode(ctx context.Context, code string) error
}

// CodeAllocator mints user codes.
type CodeAllocator interface {
	Allocate(ctx context.Context) (string, error)
}

// UserCache is the read-through cache for user lookups.
type UserCache interface {
	GetUser(ctx context.Context, code string) (*model.User, error)
	SetUser(ctx context.Context, user *model.User) error
	DeleteUser(ctx context.Context, code string) error
	IsNegativelyCached(ctx context.Context, code string) (bool, error)
	SetNegativeCache(ctx context.Context, code string) error
}

// EventPublisher records identity changes on the audit stream.
type EventPublisher interface {
	PublishAsync(event audit.Event)
}

type nopPublisher struct{}

func (nopPublisher) PublishAsync(audit.Event) {}

// UserService handles registration and user lookups.
type UserService struct {
	store     UserStore
	allocator CodeAllocator
	cache     UserCache
	events    EventPublisher
	metrics   metrics.Recorder
	logger    *slog.Logger

	hashPassword func(string) (string, error)
	now          func() time.Time
}

// NewUserService creates a new UserService. cache may be nil.
func NewUserService(store UserStore, allocator CodeAllocator, userCache UserCache, recorder metrics.Recorder, logger *slog.Logger) *UserService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		store:        store,
		allocator:    allocator,
		cache:        userCache,
		events:       nopPublisher{},
		metrics:      recorder,
		logger:       logger,
		hashPassword: auth.HashPassword,
		now:          time.Now,
	}
}

// SetEventPublisher routes registration and deletion events to p.
func (s *UserService) SetEventPublisher(p EventPublisher) {
	if p != nil {
		s.events = p
	}
}

// RegisterInput defines input for registering a user.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
	Role     string
}

// Register validates input, mints a code and stores the user.
// Allocation errors are returned wrapped; nothing is stored in that case.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	name := strings.TrimSpace(input.Name)

	if len(email) > maxEmailLength || !emailRegex.MatchString(email) {
		return nil, ErrInvalidEmail
	}
	if n := utf8.RuneCountInString(name); n < 1 || n > maxNameLength {
		return nil, ErrInvalidName
	}
	if utf8.RuneCountInString(input.Password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}

	role := model.RoleStudent
	if input.Role != "" {
		role = model.Role(strings.ToLower(input.Role))
		if !role.IsValid() {
			return nil, ErrInvalidRole
		}
	}

	// Checked before allocating so a duplicate does not burn a code.
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hash, err := s.hashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	code, err := s.allocator.Allocate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate user code: %w", err)
	}

	user := &model.User{
		ID:           ulid.MustNew(ulid.Timestamp(s.now()), rand.Reader).String(),
		Code:         code,
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC().Truncate(time.Second),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			// Lost a race with a concurrent registration. The code stays
			// in the ledger and is not reused.
			s.logger.WarnContext(ctx, "registration lost email race",
				slog.String("code", code),
			)
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// The code may have been looked up before it was issued.
	if s.cache != nil {
		if err := s.cache.SetUser(ctx, user); err != nil {
			s.logger.WarnContext(ctx, "user cache write failed", slog.String("error", err.Error()))
		}
	}

	s.metrics.IncUserRegistered()
	s.events.PublishAsync(audit.UserRegistered(user))
	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("code", user.Code),
		slog.String("role", string(user.Role)),
	)

	return user, nil
}

// GetByCode returns a user by code, reading through the cache.
func (s *UserService) GetByCode(ctx context.Context, code string) (*model.User, error) {
	if !idalloc.Valid(code) {
		return nil, ErrInvalidCode
	}

	if s.cache != nil {
		cached, err := s.cache.GetUser(ctx, code)
		if err == nil {
			s.metrics.IncUserCacheHit()
			return cached, nil
		}
		if errors.Is(err, cache.ErrCacheMiss) {
			s.metrics.IncUserCacheMiss()
			neg, err := s.cache.IsNegativelyCached(ctx, code)
			if err != nil {
				s.logger.WarnContext(ctx, "negative cache read failed", slog.String("error", err.Error()))
			} else if neg {
				return nil, ErrUserNotFound
			}
		} else {
			s.logger.WarnContext(ctx, "user cache read failed", slog.String("error", err.Error()))
		}
	}

	user, err := s.store.GetUserByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			if s.cache != nil {
				_ = s.cache.SetNegativeCache(ctx, code)
			}
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetUser(ctx, user); err != nil {
			s.logger.WarnContext(ctx, "user cache write failed", slog.String("error", err.Error()))
		}
	}

	return user, nil
}

// Delete removes a user. The code is never reissued.
func (s *UserService) Delete(ctx context.Context, code string) error {
	if !idalloc.Valid(code) {
		return ErrInvalidCode
	}

	if err := s.store.DeleteUserByCode(ctx, code); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	s.metrics.IncUserDeleted()
	s.events.PublishAsync(audit.UserDeleted(code))

	if s.cache != nil {
		if err := s.cache.DeleteUser(ctx, code); err != nil {
			s.logger.WarnContext(ctx, "user cache evict failed", slog.String("error", err.Error()))
		}
	}

	return nil
}
