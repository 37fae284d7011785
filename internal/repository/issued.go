package repository

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/prolearn/prolearn/internal/idalloc"
	"github.com/prolearn/prolearn/internal/model"
)

// ImportIssued records externally issued codes in the ledger so the
// allocator never hands them out. Codes must already be valid; duplicates
// are ignored. It returns the number of newly recorded codes.
func (r *Repository) ImportIssued(ctx context.Context, codes []string) (int64, error) {
	if len(codes) == 0 {
		return 0, nil
	}

	years := make([]int64, len(codes))
	for i, code := range codes {
		id, err := idalloc.Parse(code)
		if err != nil {
			return 0, fmt.Errorf("failed to import %q: %w", code, err)
		}
		years[i] = int64(id.Year)
	}

	query := `
		INSERT INTO issued_identifiers (code, year, source)
		SELECT c, y, $3
		FROM unnest($1::text[], $2::smallint[]) AS t(c, y)
		ON CONFLICT (code) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query, pq.Array(codes), pq.Array(years), model.IssuedSourceImport)
	if err != nil {
		return 0, fmt.Errorf("failed to import issued identifiers: %w", err)
	}

	return tag.RowsAffected(), nil
}

// IssuedExist returns the subset of codes present in the ledger.
func (r *Repository) IssuedExist(ctx context.Context, codes []string) (map[string]bool, error) {
	found := make(map[string]bool, len(codes))
	if len(codes) == 0 {
		return found, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT code FROM issued_identifiers WHERE code = ANY($1)
	`, pq.Array(codes))
	if err != nil {
		return nil, fmt.Errorf("failed to query issued identifiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan issued identifier: %w", err)
		}
		found[code] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating issued identifiers: %w", err)
	}

	return found, nil
}

// CountIssued returns the number of ledger entries for a year.
func (r *Repository) CountIssued(ctx context.Context, year int) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM issued_identifiers WHERE year = $1
	`, year).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count issued identifiers: %w", err)
	}
	return n, nil
}
