package queue

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Position is a 1-based queue position that was checked against the queue
// length when it was made. The zero value is not a valid position.
type Position struct {
	n int
}

// ParsePosition validates n against a queue of the given length.
func ParsePosition(n, length int) (Position, error) {
	if length <= 0 {
		return Position{}, ErrQueueEmpty
	}
	if n < 1 || n > length {
		return Position{}, &RangeError{Position: n, Len: length}
	}
	return Position{n: n}, nil
}

func (p Position) Int() int    { return p.n }
func (p Position) Index() int  { return p.n - 1 }
func (p Position) Valid() bool { return p.n > 0 }

func (p Position) String() string { return strconv.Itoa(p.n) }

// ParsePositionList parses user input such as "2, 4-6, 9" into sorted,
// de-duplicated positions.
func ParsePositionList(s string, length int) ([]Position, error) {
	if length <= 0 {
		return nil, ErrQueueEmpty
	}
	seen := make(map[int]struct{})
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		lo, hi, err := parseSpan(part)
		if err != nil {
			return nil, err
		}
		for n := lo; n <= hi; n++ {
			if n < 1 || n > length {
				return nil, &RangeError{Position: n, Len: length}
			}
			seen[n] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("%w: no positions given", ErrBadPosition)
	}
	out := make([]Position, 0, len(seen))
	for n := range seen {
		out = append(out, Position{n: n})
	}
	slices.SortFunc(out, func(a, b Position) int { return a.n - b.n })
	return out, nil
}

func parseSpan(part string) (int, int, error) {
	a, b, isRange := strings.Cut(part, "-")
	lo, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, fmt.Errorf("%w %q", ErrBadPosition, part)
	}
	if !isRange {
		return lo, lo, nil
	}
	hi, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, 0, fmt.Errorf("%w range %q", ErrBadPosition, part)
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo, hi, nil
}
