package dto

import (
	"time"

	"github.com/prolearn/prolearn/internal/model"
)

// AuditEventResponse is one audit trail entry.
type AuditEventResponse struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	Code       string    `json:"code,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	Count      int64     `json:"count,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AuditEventListResponse lists audit events, newest first.
type AuditEventListResponse struct {
	Data []AuditEventResponse `json:"data"`
}

// ToAuditEventListResponse converts audit events.
func ToAuditEventListResponse(events []*model.AuditEvent) *AuditEventListResponse {
	data := make([]AuditEventResponse, 0, len(events))
	for _, e := range events {
		data = append(data, AuditEventResponse{
			ID:         e.ID,
			Action:     string(e.Action),
			Code:       e.Code,
			UserID:     e.UserID,
			Count:      e.Count,
			OccurredAt: e.OccurredAt,
		})
	}
	return &AuditEventListResponse{Data: data}
}
