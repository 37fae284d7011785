package idalloc

import (
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		year  int
		floor string
		slot  int
		want  string
	}{
		{26, "aa", 42, "prln26aa042"},
		{5, "qa", 1, "prln05qa001"},
		{99, "zz", 999, "prln99zz999"},
	}

	for _, tt := range tests {
		if got := Format(tt.year, tt.floor, tt.slot); got != tt.want {
			t.Errorf("Format(%d, %q, %d) = %q, want %q", tt.year, tt.floor, tt.slot, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		code    string
		want    Identifier
		wantErr bool
	}{
		{"valid", "prln26aa042", Identifier{Year: 26, Floor: "aa", Slot: 42}, false},
		{"upper bound", "prln26zz999", Identifier{Year: 26, Floor: "zz", Slot: 999}, false},
		{"zero slot", "prln26aa000", Identifier{}, true},
		{"reserved floor", "prln26pa123", Identifier{}, true},
		{"uppercase", "PRLN26AA042", Identifier{}, true},
		{"short slot", "prln26aa42", Identifier{}, true},
		{"wrong prefix", "prlx26aa042", Identifier{}, true},
		{"trailing", "prln26aa0421", Identifier{}, true},
		{"empty", "", Identifier{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Parse(tt.code)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) expected error", tt.code)
				}
				if Valid(tt.code) {
					t.Errorf("Valid(%q) = true, want false", tt.code)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.code, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.code, got, tt.want)
			}
			if got.String() != tt.code {
				t.Errorf("String() = %q, want %q", got.String(), tt.code)
			}
		})
	}
}

func TestYearOf(t *testing.T) {
	t.Parallel()

	if got := YearOf(time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)); got != 26 {
		t.Errorf("YearOf(2026) = %d, want 26", got)
	}
	if got := YearOf(time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)); got != 0 {
		t.Errorf("YearOf(2100) = %d, want 0", got)
	}
}
