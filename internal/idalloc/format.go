// Package idalloc mints human-readable user identifiers of the form
// prln{YY}{LL}{NNN}.
//
// YY is the two-digit allocation year, LL a two-letter floor that never
// starts with the reserved letter 'p', and NNN a slot in 001..999 drawn at
// random within the floor.
package idalloc

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Identifier layout.
const (
	Prefix       = "prln"
	InitialFloor = "aa"
	MinSlot      = 1
	MaxSlot      = 999

	// SlotsPerFloor is the number of identifiers one floor can hold.
	SlotsPerFloor = MaxSlot - MinSlot + 1

	// ReservedLetter marks a floor block that is never issued.
	ReservedLetter = 'p'
)

// ErrInvalidIdentifier is returned by Parse for malformed codes.
var ErrInvalidIdentifier = errors.New("invalid identifier format")

var identifierRegex = regexp.MustCompile(`^prln(\d{2})([a-z]{2})(\d{3})$`)

// Identifier is a parsed minted identifier.
type Identifier struct {
	Year  int
	Floor string
	Slot  int
}

// String renders the identifier in its canonical form.
func (id Identifier) String() string {
	return Format(id.Year, id.Floor, id.Slot)
}

// Format builds an identifier from its parts. It does not validate them.
func Format(year int, floor string, slot int) string {
	return fmt.Sprintf("%s%02d%s%03d", Prefix, year, floor, slot)
}

// Parse validates code and splits it into its parts.
func Parse(code string) (Identifier, error) {
	m := identifierRegex.FindStringSubmatch(code)
	if m == nil {
		return Identifier{}, ErrInvalidIdentifier
	}
	if !ValidFloor(m[2]) {
		return Identifier{}, ErrInvalidIdentifier
	}

	year, _ := strconv.Atoi(m[1])
	slot, _ := strconv.Atoi(m[3])
	if slot < MinSlot {
		return Identifier{}, ErrInvalidIdentifier
	}

	return Identifier{Year: year, Floor: m[2], Slot: slot}, nil
}

// Valid reports whether code is a well-formed identifier.
func Valid(code string) bool {
	_, err := Parse(code)
	return err == nil
}

// YearOf returns the two-digit allocation year for t.
func YearOf(t time.Time) int {
	return t.Year() % 100
}
