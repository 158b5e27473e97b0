// Package quarter models quarterly rent periods and the ordered axis a
// period slider indexes into.
package quarter

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Quarter is a calendar quarter such as "2019 Q1".
type Quarter struct {
	Year int
	Q    int
}

// String returns the canonical "YYYY Qn" form.
func (q Quarter) String() string {
	return fmt.Sprintf("%04d Q%d", q.Year, q.Q)
}

// Compact returns the whitespace-free "YYYYQn" form.
func (q Quarter) Compact() string {
	return fmt.Sprintf("%04dQ%d", q.Year, q.Q)
}

// Compare orders quarters by year, then quarter number.
func (q Quarter) Compare(o Quarter) int {
	switch {
	case q.Year != o.Year:
		if q.Year < o.Year {
			return -1
		}
		return 1
	case q.Q != o.Q:
		if q.Q < o.Q {
			return -1
		}
		return 1
	}
	return 0
}

// Before reports whether q sorts strictly before o.
func (q Quarter) Before(o Quarter) bool {
	return q.Compare(o) < 0
}

// Next returns the quarter immediately after q.
func (q Quarter) Next() Quarter {
	if q.Q == 4 {
		return Quarter{Year: q.Year + 1, Q: 1}
	}
	return Quarter{Year: q.Year, Q: q.Q + 1}
}

// Valid reports whether q has a usable year and a quarter number in 1..4.
func (q Quarter) Valid() bool {
	return q.Year >= 1 && q.Year <= 9999 && q.Q >= 1 && q.Q <= 4
}

// Parse reads a label like "2019 Q1", "2019Q1" or "2019 q1".
func Parse(label string) (Quarter, error) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, label)

	i := strings.IndexByte(s, 'Q')
	if i <= 0 || i == len(s)-1 {
		return Quarter{}, fmt.Errorf("quarter %q: want \"YYYY Qn\"", label)
	}
	year, err := strconv.Atoi(s[:i])
	if err != nil {
		return Quarter{}, fmt.Errorf("quarter %q: bad year: %w", label, err)
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return Quarter{}, fmt.Errorf("quarter %q: bad quarter number: %w", label, err)
	}
	q := Quarter{Year: year, Q: n}
	if !q.Valid() {
		return Quarter{}, fmt.Errorf("quarter %q: out of range", label)
	}
	return q, nil
}
