// Package audit streams identity changes through Redis and persists them
// as an append-only trail.
package audit

import (
	"fmt"
	"time"

	"github.com/prolearn/prolearn/internal/idalloc"
	"github.com/prolearn/prolearn/internal/model"
)

const maxUserIDLength = 64

// Event is the compact stream encoding of an audit event.
type Event struct {
	Action     model.AuditAction `json:"a"`
	Code       string            `json:"c,omitempty"`
	UserID     string            `json:"u,omitempty"`
	Count      int64             `json:"n,omitempty"`
	OccurredAt int64             `json:"t"` // Unix milliseconds
}

// UserRegistered builds the event for a new registration.
func UserRegistered(user *model.User) Event {
	return Event{Action: model.AuditUserRegistered, Code: user.Code, UserID: user.ID, OccurredAt: now()}
}

// UserDeleted builds the event for a deleted user. The code stays retired.
func UserDeleted(code string) Event {
	return Event{Action: model.AuditUserDeleted, Code: code, OccurredAt: now()}
}

// IdentifierMinted builds the event for a bare operator mint.
func IdentifierMinted(code string) Event {
	return Event{Action: model.AuditIdentifierMinted, Code: code, OccurredAt: now()}
}

// IdentifiersImported builds the event for a legacy import batch.
func IdentifiersImported(count int64) Event {
	return Event{Action: model.AuditIdentifiersImported, Count: count, OccurredAt: now()}
}

func now() int64 {
	return time.Now().UnixMilli()
}

// Validate checks a decoded event before it is persisted.
func (e Event) Validate() error {
	if !e.Action.IsValid() {
		return fmt.Errorf("unknown action %q", e.Action)
	}
	if e.OccurredAt <= 0 {
		return fmt.Errorf("occurred_at must be set")
	}
	if len(e.UserID) > maxUserIDLength {
		return fmt.Errorf("user_id too long")
	}

	switch e.Action {
	case model.AuditIdentifiersImported:
		if e.Count < 0 {
			return fmt.Errorf("count must not be negative")
		}
	case model.AuditUserRegistered:
		if e.UserID == "" {
			return fmt.Errorf("user_id is required")
		}
		fallthrough
	default:
		if !idalloc.Valid(e.Code) {
			return fmt.Errorf("invalid code %q", e.Code)
		}
	}
	return nil
}

// toModel converts a stream entry into the persisted form.
func (e Event) toModel(id, streamID string) *model.AuditEvent {
	return &model.AuditEvent{
		ID:         id,
		EventID:    streamID,
		Action:     e.Action,
		Code:       e.Code,
		UserID:     e.UserID,
		Count:      e.Count,
		OccurredAt: time.UnixMilli(e.OccurredAt).UTC(),
	}
}
