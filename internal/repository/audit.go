package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/prolearn/prolearn/internal/model"
)

// MaxAuditListLimit caps ListAuditEvents.
const MaxAuditListLimit = 500

// InsertAuditEvents stores a batch of audit events. Events whose EventID is
// already stored are skipped, so redelivered stream messages are harmless.
func (r *Repository) InsertAuditEvents(ctx context.Context, events []*model.AuditEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	var (
		ids      = make([]string, len(events))
		eventIDs = make([]string, len(events))
		actions  = make([]string, len(events))
		codes    = make([]string, len(events))
		userIDs  = make([]string, len(events))
		counts   = make([]int64, len(events))
		times    = make([]time.Time, len(events))
	)
	for i, e := range events {
		ids[i] = e.ID
		eventIDs[i] = e.EventID
		actions[i] = string(e.Action)
		codes[i] = e.Code
		userIDs[i] = e.UserID
		counts[i] = e.Count
		times[i] = e.OccurredAt.UTC()
	}

	query := `
		INSERT INTO audit_events (id, event_id, action, code, user_id, count, occurred_at)
		SELECT id, event_id, action, NULLIF(code, ''), NULLIF(user_id, ''), count, occurred_at
		FROM unnest($1::text[], $2::text[], $3::text[], $4::text[], $5::text[], $6::bigint[], $7::timestamptz[])
			AS t(id, event_id, action, code, user_id, count, occurred_at)
		ON CONFLICT (event_id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		pq.Array(ids),
		pq.Array(eventIDs),
		pq.Array(actions),
		pq.Array(codes),
		pq.Array(userIDs),
		pq.Array(counts),
		times,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert audit events: %w", err)
	}

	return tag.RowsAffected(), nil
}

// ListAuditEvents returns the newest events first. A non-empty code limits
// the result to that identifier.
func (r *Repository) ListAuditEvents(ctx context.Context, code string, limit int) ([]*model.AuditEvent, error) {
	if limit <= 0 || limit > MaxAuditListLimit {
		limit = MaxAuditListLimit
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, action, COALESCE(code, ''), COALESCE(user_id, ''), count, occurred_at, created_at
		FROM audit_events
		WHERE ($1 = '' OR code = $1)
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2
	`, code, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*model.AuditEvent
	for rows.Next() {
		e := &model.AuditEvent{}
		var action string
		if err := rows.Scan(&e.ID, &e.EventID, &action, &e.Code, &e.UserID, &e.Count, &e.OccurredAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Action = model.AuditAction(action)
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}
