package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/prolearn/prolearn/internal/idalloc"
	"github.com/prolearn/prolearn/internal/model"
)

// ErrCursorNotFound is returned when a year has no cursor yet.
var ErrCursorNotFound = errors.New("identifier cursor not found")

var _ idalloc.Store = (*Repository)(nil)

// WithYearLock implements idalloc.Store.
//
// The cursor row is created if missing and then locked with SELECT ... FOR
// UPDATE, so concurrent allocations for the same year queue on the row
// while other years proceed. The lock is released on commit or rollback.
func (r *Repository) WithYearLock(ctx context.Context, year int, fn func(ctx context.Context, tx idalloc.CursorTx) error) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO identifier_cursors (year, letter_sequence)
			VALUES ($1, $2)
			ON CONFLICT (year) DO NOTHING
		`, year, idalloc.InitialFloor)
		if err != nil {
			return fmt.Errorf("failed to create identifier cursor: %w", err)
		}

		var floor string
		err = tx.QueryRow(ctx, `
			SELECT letter_sequence
			FROM identifier_cursors
			WHERE year = $1
			FOR UPDATE
		`, year).Scan(&floor)
		if err != nil {
			return fmt.Errorf("failed to lock identifier cursor: %w", err)
		}

		return fn(ctx, &cursorTx{tx: tx, year: year, floor: floor})
	})
}

// cursorTx is the locked view of one year's cursor.
type cursorTx struct {
	tx    pgx.Tx
	year  int
	floor string
}

func (c *cursorTx) Floor(ctx context.Context) (string, error) {
	return c.floor, nil
}

func (c *cursorTx) SetFloor(ctx context.Context, floor string) error {
	_, err := c.tx.Exec(ctx, `
		UPDATE identifier_cursors
		SET letter_sequence = $2, updated_at = NOW()
		WHERE year = $1
	`, c.year, floor)
	if err != nil {
		return fmt.Errorf("failed to update identifier cursor: %w", err)
	}
	c.floor = floor
	return nil
}

func (c *cursorTx) Exists(ctx context.Context, code string) (bool, error) {
	query := `
		SELECT EXISTS(SELECT 1 FROM issued_identifiers WHERE code = $1)
		    OR EXISTS(SELECT 1 FROM users WHERE code = $1)
	`

	var exists bool
	if err := c.tx.QueryRow(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check identifier existence: %w", err)
	}
	return exists, nil
}

func (c *cursorTx) Issue(ctx context.Context, code string) error {
	_, err := c.tx.Exec(ctx, `
		INSERT INTO issued_identifiers (code, year, source)
		VALUES ($1, $2, $3)
	`, code, c.year, model.IssuedSourceAllocator)
	if err != nil {
		return fmt.Errorf("failed to record issued identifier: %w", err)
	}
	return nil
}

// CountAtFloor counts ledger entries for the locked year under floor. Users
// created before the ledger existed are backfilled into it, so the ledger
// alone is authoritative here.
func (c *cursorTx) CountAtFloor(ctx context.Context, floor string) (int, error) {
	var n int
	err := c.tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM issued_identifiers
		WHERE code BETWEEN $1 AND $2
	`, idalloc.Format(c.year, floor, idalloc.MinSlot), idalloc.Format(c.year, floor, idalloc.MaxSlot)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count issued identifiers at floor: %w", err)
	}
	return n, nil
}

// GetCursor returns the cursor for a two-digit year.
func (r *Repository) GetCursor(ctx context.Context, year int) (*model.IdentifierCursor, error) {
	query := `
		SELECT year, letter_sequence, updated_at
		FROM identifier_cursors
		WHERE year = $1
	`

	var cursor model.IdentifierCursor
	err := r.pool.QueryRow(ctx, query, year).Scan(
		&cursor.Year,
		&cursor.LetterSequence,
		&cursor.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCursorNotFound
		}
		return nil, fmt.Errorf("failed to get identifier cursor: %w", err)
	}

	return &cursor, nil
}

// ListCursors returns every cursor ordered by year.
func (r *Repository) ListCursors(ctx context.Context) ([]*model.IdentifierCursor, error) {
	query := `
		SELECT year, letter_sequence, updated_at
		FROM identifier_cursors
		ORDER BY year
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list identifier cursors: %w", err)
	}
	defer rows.Close()

	var cursors []*model.IdentifierCursor
	for rows.Next() {
		var cursor model.IdentifierCursor
		if err := rows.Scan(&cursor.Year, &cursor.LetterSequence, &cursor.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan identifier cursor: %w", err)
		}
		cursors = append(cursors, &cursor)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating identifier cursors: %w", err)
	}

	return cursors, nil
}
