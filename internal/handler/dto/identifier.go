package dto

import (
	"time"

	"github.com/prolearn/prolearn/internal/model"
)

// MintRequest is the body of POST /api/v1/admin/identifiers. A missing
// year uses the current year.
type MintRequest struct {
	Year *int `json:"year,omitempty"`
}

// MintResponse carries a freshly minted identifier.
type MintResponse struct {
	Code string `json:"code"`
}

// ImportRequest is the body of POST /api/v1/admin/identifiers/import.
type ImportRequest struct {
	Codes []string `json:"codes"`
}

// CursorResponse is one year's cursor.
type CursorResponse struct {
	Year           int       `json:"year"`
	LetterSequence string    `json:"letter_sequence"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CursorListResponse lists cursors.
type CursorListResponse struct {
	Data []CursorResponse `json:"data"`
}

// ToCursorResponse converts an IdentifierCursor model.
func ToCursorResponse(c *model.IdentifierCursor) CursorResponse {
	return CursorResponse{
		Year:           c.Year,
		LetterSequence: c.LetterSequence,
		UpdatedAt:      c.UpdatedAt,
	}
}

// ToCursorListResponse converts a cursor slice.
func ToCursorListResponse(cursors []*model.IdentifierCursor) *CursorListResponse {
	data := make([]CursorResponse, 0, len(cursors))
	for _, c := range cursors {
		data = append(data, ToCursorResponse(c))
	}
	return &CursorListResponse{Data: data}
}
