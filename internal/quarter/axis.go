package quarter

import "fmt"

// InvalidRangeError is returned by Build when the endpoints are malformed
// or out of order.
type InvalidRangeError struct {
	Start  string
	End    string
	Reason string
	Err    error
}

func (e *InvalidRangeError) Error() string {
	msg := fmt.Sprintf("invalid quarter range %q..%q: %s", e.Start, e.End, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidRangeError) Unwrap() error { return e.Err }

// Axis is an immutable, strictly increasing, gapless run of quarters.
type Axis struct {
	quarters []Quarter
	index    map[Quarter]int
}

// Build returns every quarter from start to end inclusive.
func Build(start, end string) (Axis, error) {
	from, err := Parse(start)
	if err != nil {
		return Axis{}, &InvalidRangeError{Start: start, End: end, Reason: "malformed start", Err: err}
	}
	to, err := Parse(end)
	if err != nil {
		return Axis{}, &InvalidRangeError{Start: start, End: end, Reason: "malformed end", Err: err}
	}
	if to.Before(from) {
		return Axis{}, &InvalidRangeError{Start: start, End: end, Reason: "start is after end"}
	}

	n := (to.Year-from.Year)*4 + (to.Q - from.Q) + 1
	a := Axis{
		quarters: make([]Quarter, 0, n),
		index:    make(map[Quarter]int, n),
	}
	for q := from; !to.Before(q); q = q.Next() {
		a.index[q] = len(a.quarters)
		a.quarters = append(a.quarters, q)
	}
	return a, nil
}

// Len returns the number of quarters on the axis.
func (a Axis) Len() int { return len(a.quarters) }

// At returns the quarter at position i. ok is false when i is out of range.
func (a Axis) At(i int) (Quarter, bool) {
	if i < 0 || i >= len(a.quarters) {
		return Quarter{}, false
	}
	return a.quarters[i], true
}

// Index returns the position of q, or -1.
func (a Axis) Index(q Quarter) int {
	if i, ok := a.index[q]; ok {
		return i
	}
	return -1
}

// First returns the earliest quarter. The zero Quarter for an empty axis.
func (a Axis) First() Quarter {
	if len(a.quarters) == 0 {
		return Quarter{}
	}
	return a.quarters[0]
}

// Last returns the latest quarter. The zero Quarter for an empty axis.
func (a Axis) Last() Quarter {
	if len(a.quarters) == 0 {
		return Quarter{}
	}
	return a.quarters[len(a.quarters)-1]
}

// Labels returns the canonical labels in order.
func (a Axis) Labels() []string {
	out := make([]string, len(a.quarters))
	for i, q := range a.quarters {
		out[i] = q.String()
	}
	return out
}
