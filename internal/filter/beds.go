package filter

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Beds is a set of bedroom counts kept sorted ascending without duplicates.
// An empty Beds is a valid "show nothing" selection.
type Beds []int

// NewBeds normalizes counts: non-positive values are dropped.
func NewBeds(counts ...int) Beds {
	out := make(Beds, 0, len(counts))
	for _, c := range counts {
		if c > 0 {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Empty reports whether no bedroom count is selected.
func (b Beds) Empty() bool { return len(b) == 0 }

// Contains reports whether n is selected.
func (b Beds) Contains(n int) bool {
	_, ok := slices.BinarySearch(b, n)
	return ok
}

// Equal reports whether both selections hold the same counts.
func (b Beds) Equal(o Beds) bool { return slices.Equal(b, o) }

// Clone returns an independent copy.
func (b Beds) Clone() Beds { return slices.Clone(b) }

// String joins the counts with "+", or "None" when empty.
func (b Beds) String() string {
	if len(b) == 0 {
		return "None"
	}
	parts := make([]string, len(b))
	for i, n := range b {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, "+")
}

// Labels formats each count with format, e.g. "%d bed" -> "2 bed".
func (b Beds) Labels(format string) []string {
	out := make([]string, len(b))
	for i, n := range b {
		out[i] = fmt.Sprintf(format, n)
	}
	return out
}
