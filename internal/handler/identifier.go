package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/prolearn/prolearn/internal/handler/dto"
	"github.com/prolearn/prolearn/internal/model"
	"github.com/prolearn/prolearn/internal/service"
)

// IdentifierService is the subset of service.IdentifierService used by
// IdentifierHandler.
type IdentifierService interface {
	Mint(ctx context.Context, year *int) (string, error)
	Cursor(ctx context.Context, year int) (*model.IdentifierCursor, error)
	Cursors(ctx context.Context) ([]*model.IdentifierCursor, error)
	Import(ctx context.Context, codes []string) (*service.ImportResult, error)
}

// IdentifierHandler serves the operator endpoints.
type IdentifierHandler struct {
	svc    IdentifierService
	logger *slog.Logger
}

// NewIdentifierHandler creates a new IdentifierHandler.
func NewIdentifierHandler(svc IdentifierService, logger *slog.Logger) *IdentifierHandler {
	return &IdentifierHandler{svc: svc, logger: logger}
}

// ListCursors handles GET /api/v1/admin/identifier-cursors.
func (h *IdentifierHandler) ListCursors(w http.ResponseWriter, r *http.Request) {
	cursors, err := h.svc.Cursors(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToCursorListResponse(cursors))
}

// GetCursor handles GET /api/v1/admin/identifier-cursors/{year}.
func (h *IdentifierHandler) GetCursor(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "year must be a number")
		return
	}

	cursor, err := h.svc.Cursor(r.Context(), year)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToCursorResponse(cursor))
}

// Mint handles POST /api/v1/admin/identifiers.
func (h *IdentifierHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req dto.MintRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	code, err := h.svc.Mint(r.Context(), req.Year)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "identifier minted", slog.String("code", code))
	writeJSON(w, http.StatusCreated, dto.MintResponse{Code: code})
}

// Import handles POST /api/v1/admin/identifiers/import.
func (h *IdentifierHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req dto.ImportRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.Import(r.Context(), req.Codes)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
