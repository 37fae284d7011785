package model

import "time"

// AuditAction names a recorded identity change.
type AuditAction string

const (
	AuditUserRegistered      AuditAction = "user.registered"
	AuditUserDeleted         AuditAction = "user.deleted"
	AuditIdentifierMinted    AuditAction = "identifier.minted"
	AuditIdentifiersImported AuditAction = "identifiers.imported"
)

// ValidAuditActions lists every known action.
var ValidAuditActions = []AuditAction{
	AuditUserRegistered,
	AuditUserDeleted,
	AuditIdentifierMinted,
	AuditIdentifiersImported,
}

// IsValid checks if the action is known.
func (a AuditAction) IsValid() bool {
	for _, v := range ValidAuditActions {
		if a == v {
			return true
		}
	}
	return false
}

// AuditEvent is one persisted entry of the identity audit trail.
type AuditEvent struct {
	ID      string `json:"id"`       // ULID
	EventID string `json:"event_id"` // Redis stream ID, idempotency key

	Action AuditAction `json:"action"`
	Code   string      `json:"code,omitempty"`    // identifier involved, empty for imports
	UserID string      `json:"user_id,omitempty"` // set for user actions
	Count  int64       `json:"count,omitempty"`   // identifiers recorded by an import

	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}
