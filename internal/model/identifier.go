package model

import "time"

// IdentifierCursor is the persisted letter-pair floor for one allocation year.
type IdentifierCursor struct {
	Year           int       `json:"year"`
	LetterSequence string    `json:"letter_sequence"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IssuedIdentifier is an entry of the issued-identifier ledger.
// Entries are never deleted, so codes are never recycled.
type IssuedIdentifier struct {
	Code     string    `json:"code"`
	Year     int       `json:"year"`
	Source   string    `json:"source"`
	IssuedAt time.Time `json:"issued_at"`
}

// Ledger sources.
const (
	IssuedSourceAllocator = "allocator"
	IssuedSourceImport    = "import"
)
