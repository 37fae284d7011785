package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prolearn/prolearn/internal/handler/dto"
	"github.com/prolearn/prolearn/internal/idalloc"
	"github.com/prolearn/prolearn/internal/model"
)

const defaultAuditLimit = 50

// AuditLister reads the audit trail.
type AuditLister interface {
	ListAuditEvents(ctx context.Context, code string, limit int) ([]*model.AuditEvent, error)
}

// AuditHandler serves the audit trail to operators.
type AuditHandler struct {
	store  AuditLister
	logger *slog.Logger
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(store AuditLister, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{store: store, logger: logger}
}

// List handles GET /api/v1/admin/audit-events?code=&limit=.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	code := q.Get("code")
	if code != "" && !idalloc.Valid(code) {
		writeError(w, http.StatusBadRequest, "INVALID_CODE", "invalid user code")
		return
	}

	limit := defaultAuditLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	events, err := h.store.ListAuditEvents(r.Context(), code, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToAuditEventListResponse(events))
}
