package idalloc

// ValidFloor reports whether floor is two lowercase letters outside the
// reserved block.
func ValidFloor(floor string) bool {
	if len(floor) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		if floor[i] < 'a' || floor[i] > 'z' {
			return false
		}
	}
	return floor[0] != ReservedLetter
}

// NextFloor advances floor by one letter pair. The second letter moves
// first and carries into the first on rollover (az -> ba). A result in the
// reserved block snaps to qa. Advancing past zz returns ErrCapacityExhausted.
func NextFloor(floor string) (string, error) {
	if len(floor) != 2 {
		return "", ErrCorruptCursor
	}

	first, second := floor[0], floor[1]
	if second < 'z' {
		second++
	} else {
		if first == 'z' {
			return "", ErrCapacityExhausted
		}
		first++
		second = 'a'
	}

	if first == ReservedLetter {
		first, second = ReservedLetter+1, 'a'
	}

	return string([]byte{first, second}), nil
}

// FloorCapacity is the number of issuable letter pairs in one year.
const FloorCapacity = 26*26 - 26
