package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prolearn/prolearn/internal/audit"
	"github.com/prolearn/prolearn/internal/idalloc"
	"github.com/prolearn/prolearn/internal/model"
	"github.com/prolearn/prolearn/internal/repository"
)

// Identifier service errors.
var (
	ErrCursorNotFound = errors.New("identifier cursor not found")
	ErrInvalidYear    = errors.New("year must be between 0 and 99")
	ErrEmptyImport    = errors.New("no identifiers to import")
	ErrImportTooLarge = errors.New("too many identifiers in one import")
)

// MaxImportBatch caps one import request.
const MaxImportBatch = 10000

// IdentifierStore exposes cursor state and the issued ledger.
type IdentifierStore interface {
	GetCursor(ctx context.Context, year int) (*model.IdentifierCursor, error)
	ListCursors(ctx context.Context) ([]*model.IdentifierCursor, error)
	ImportIssued(ctx context.Context, codes []string) (int64, error)
	IssuedExist(ctx context.Context, codes []string) (map[string]bool, error)
}

// YearAllocator mints codes for the current or an explicit year.
type YearAllocator interface {
	CodeAllocator
	AllocateForYear(ctx context.Context, year int) (string, error)
}

// IdentifierService backs the operator endpoints.
type IdentifierService struct {
	store     IdentifierStore
	allocator YearAllocator
	events    EventPublisher
	logger    *slog.Logger
}

// NewIdentifierService creates a new IdentifierService.
func NewIdentifierService(store IdentifierStore, allocator YearAllocator, logger *slog.Logger) *IdentifierService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentifierService{store: store, allocator: allocator, events: nopPublisher{}, logger: logger}
}

// SetEventPublisher routes mint and import events to p.
func (s *IdentifierService) SetEventPublisher(p EventPublisher) {
	if p != nil {
		s.events = p
	}
}

// Mint allocates a bare identifier. A nil year uses the current year.
func (s *IdentifierService) Mint(ctx context.Context, year *int) (string, error) {
	var (
		code string
		err  error
	)
	switch {
	case year == nil:
		code, err = s.allocator.Allocate(ctx)
	case *year < 0 || *year > 99:
		return "", ErrInvalidYear
	default:
		code, err = s.allocator.AllocateForYear(ctx, *year)
	}
	if err != nil {
		return "", err
	}

	s.events.PublishAsync(audit.IdentifierMinted(code))
	return code, nil
}

// Cursor returns the cursor for year.
func (s *IdentifierService) Cursor(ctx context.Context, year int) (*model.IdentifierCursor, error) {
	if year < 0 || year > 99 {
		return nil, ErrInvalidYear
	}
	cursor, err := s.store.GetCursor(ctx, year)
	if err != nil {
		if errors.Is(err, repository.ErrCursorNotFound) {
			return nil, ErrCursorNotFound
		}
		return nil, err
	}
	return cursor, nil
}

// Cursors lists every cursor.
func (s *IdentifierService) Cursors(ctx context.Context) ([]*model.IdentifierCursor, error) {
	return s.store.ListCursors(ctx)
}

// ImportResult reports an import outcome.
type ImportResult struct {
	Submitted     int      `json:"submitted"`
	Imported      int64    `json:"imported"`
	AlreadyIssued int      `json:"already_issued"`
	Invalid       []string `json:"invalid,omitempty"`
}

// Import records legacy codes in the ledger. Malformed codes are reported
// and skipped; duplicates are ignored.
func (s *IdentifierService) Import(ctx context.Context, codes []string) (*ImportResult, error) {
	if len(codes) == 0 {
		return nil, ErrEmptyImport
	}
	if len(codes) > MaxImportBatch {
		return nil, ErrImportTooLarge
	}

	result := &ImportResult{Submitted: len(codes)}
	seen := make(map[string]struct{}, len(codes))
	valid := make([]string, 0, len(codes))
	for _, code := range codes {
		if !idalloc.Valid(code) {
			result.Invalid = append(result.Invalid, code)
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		valid = append(valid, code)
	}

	if len(valid) > 0 {
		existing, err := s.store.IssuedExist(ctx, valid)
		if err != nil {
			return nil, fmt.Errorf("failed to check ledger: %w", err)
		}
		result.AlreadyIssued = len(existing)

		n, err := s.store.ImportIssued(ctx, valid)
		if err != nil {
			return nil, fmt.Errorf("failed to import identifiers: %w", err)
		}
		result.Imported = n
	}
	if result.Imported > 0 {
		s.events.PublishAsync(audit.IdentifiersImported(result.Imported))
	}

	s.logger.InfoContext(ctx, "identifiers imported",
		slog.Int("submitted", result.Submitted),
		slog.Int64("imported", result.Imported),
		slog.Int("already_issued", result.AlreadyIssued),
		slog.Int("invalid", len(result.Invalid)),
	)

	return result, nil
}
