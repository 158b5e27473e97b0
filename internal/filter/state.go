// Package filter holds the current period/bedroom selection and compiles it
// into a predicate over ward features.
package filter

import (
	"fmt"

	"github.com/joeblew999/plat-rentmap/internal/quarter"
)

// EmptyPolicy decides what an empty bedroom selection means.
type EmptyPolicy string

const (
	// EmptyNone keeps an empty selection; the predicate matches nothing.
	EmptyNone EmptyPolicy = "none"
	// EmptyAll replaces an empty selection with the default set.
	EmptyAll EmptyPolicy = "all"
	// EmptyBySource keeps an explicit clear and restores defaults when the
	// empty state came from individual toggles.
	EmptyBySource EmptyPolicy = "by-source"
)

// ParseEmptyPolicy maps a config value to a policy. "" means EmptyNone.
func ParseEmptyPolicy(s string) (EmptyPolicy, error) {
	switch EmptyPolicy(s) {
	case "", EmptyNone:
		return EmptyNone, nil
	case EmptyAll, EmptyBySource:
		return EmptyPolicy(s), nil
	}
	return "", fmt.Errorf("unknown empty bedroom policy %q", s)
}

// Source says which UI action produced a bedroom selection.
type Source int

const (
	// SourceToggle is a read of the independent bedroom toggles.
	SourceToggle Source = iota
	// SourceClear is an explicit "clear" action.
	SourceClear
	// SourceSelectAll is an explicit "select all" action.
	SourceSelectAll
)

func (s Source) String() string {
	switch s {
	case SourceClear:
		return "clear"
	case SourceSelectAll:
		return "all"
	}
	return "toggle"
}

// ParseSource maps "toggle", "clear" and "all" to a Source.
func ParseSource(s string) (Source, error) {
	switch s {
	case "", "toggle":
		return SourceToggle, nil
	case "clear":
		return SourceClear, nil
	case "all":
		return SourceSelectAll, nil
	}
	return SourceToggle, fmt.Errorf("unknown bedroom selection source %q", s)
}

// State is the current selection. The quarter is always one of the axis
// values.
type State struct {
	axis     quarter.Axis
	index    int
	beds     Beds
	defaults Beds
	policy   EmptyPolicy
}

// NewState starts at the first quarter with the default beds selected.
func NewState(axis quarter.Axis, defaults Beds, policy EmptyPolicy) (*State, error) {
	if axis.Len() == 0 {
		return nil, fmt.Errorf("filter state: empty quarter axis")
	}
	if defaults.Empty() {
		return nil, fmt.Errorf("filter state: no default bedroom options")
	}
	if policy == "" {
		policy = EmptyNone
	}
	return &State{
		axis:     axis,
		beds:     defaults.Clone(),
		defaults: defaults.Clone(),
		policy:   policy,
	}, nil
}

// SetQuarter selects the quarter at index i. Out-of-range indices fall
// back to 0; slider controls can report a stale index mid-drag.
func (s *State) SetQuarter(i int) quarter.Quarter {
	if i < 0 || i >= s.axis.Len() {
		i = 0
	}
	s.index = i
	return s.Quarter()
}

// SetBeds replaces the bedroom selection, applying the empty policy.
func (s *State) SetBeds(sel Beds, src Source) Beds {
	sel = NewBeds(sel...)
	if src == SourceSelectAll {
		sel = s.defaults.Clone()
	}
	if sel.Empty() && s.restoreDefaults(src) {
		sel = s.defaults.Clone()
	}
	s.beds = sel
	return s.Beds()
}

func (s *State) restoreDefaults(src Source) bool {
	switch s.policy {
	case EmptyAll:
		return true
	case EmptyBySource:
		return src == SourceToggle
	}
	return false
}

// Quarter returns the selected quarter.
func (s *State) Quarter() quarter.Quarter {
	q, _ := s.axis.At(s.index)
	return q
}

// QuarterIndex returns the selected axis position.
func (s *State) QuarterIndex() int { return s.index }

// Beds returns a copy of the selected bedroom counts.
func (s *State) Beds() Beds { return s.beds.Clone() }

// Defaults returns a copy of the full bedroom option set.
func (s *State) Defaults() Beds { return s.defaults.Clone() }

// Axis returns the quarter axis the state indexes into.
func (s *State) Axis() quarter.Axis { return s.axis }

// Policy returns the empty-selection policy in force.
func (s *State) Policy() EmptyPolicy { return s.policy }
