package filter

import (
	"testing"

	"github.com/joeblew999/plat-rentmap/internal/quarter"
)

func newState(t *testing.T, policy EmptyPolicy) *State {
	t.Helper()
	axis, err := quarter.Build("2019 Q1", "2023 Q4")
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewState(axis, NewBeds(1, 2, 3), policy)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewBedsNormalizes(t *testing.T) {
	b := NewBeds(3, 1, 3, 0, -2, 2)
	if b.String() != "1+2+3" {
		t.Fatalf("beds=%s, want 1+2+3", b)
	}
	if !b.Contains(2) || b.Contains(4) {
		t.Fatalf("Contains wrong for %v", b)
	}
	if NewBeds().String() != "None" {
		t.Fatalf("empty beds=%s, want None", NewBeds())
	}
}

func TestSetQuarterFallsBackToFirst(t *testing.T) {
	s := newState(t, EmptyNone)
	if got := s.SetQuarter(4).String(); got != "2020 Q1" {
		t.Fatalf("SetQuarter(4)=%s, want 2020 Q1", got)
	}
	for _, i := range []int{-1, 20, 999} {
		s.SetQuarter(7)
		if got := s.SetQuarter(i).String(); got != "2019 Q1" {
			t.Fatalf("SetQuarter(%d)=%s, want 2019 Q1", i, got)
		}
		if s.QuarterIndex() != 0 {
			t.Fatalf("index=%d, want 0", s.QuarterIndex())
		}
	}
	if got := s.SetQuarter(19).String(); got != "2023 Q4" {
		t.Fatalf("SetQuarter(19)=%s, want 2023 Q4", got)
	}
}

func TestSetBedsEmptyPolicies(t *testing.T) {
	tests := []struct {
		policy EmptyPolicy
		src    Source
		want   string
	}{
		{EmptyNone, SourceToggle, "None"},
		{EmptyNone, SourceClear, "None"},
		{EmptyAll, SourceToggle, "1+2+3"},
		{EmptyAll, SourceClear, "1+2+3"},
		{EmptyBySource, SourceToggle, "1+2+3"},
		{EmptyBySource, SourceClear, "None"},
	}
	for _, tt := range tests {
		s := newState(t, tt.policy)
		if got := s.SetBeds(nil, tt.src).String(); got != tt.want {
			t.Fatalf("policy=%s src=%s: beds=%s, want %s", tt.policy, tt.src, got, tt.want)
		}
	}
}

func TestSetBedsSelectAllAndSubset(t *testing.T) {
	s := newState(t, EmptyNone)
	if got := s.SetBeds(NewBeds(3, 2), SourceToggle).String(); got != "2+3" {
		t.Fatalf("beds=%s, want 2+3", got)
	}
	if got := s.SetBeds(nil, SourceSelectAll).String(); got != "1+2+3" {
		t.Fatalf("select all=%s, want 1+2+3", got)
	}
	b := s.Beds()
	b[0] = 99
	if s.Beds()[0] != 1 {
		t.Fatal("Beds should return a copy")
	}
}

func TestParsePolicyAndSource(t *testing.T) {
	if p, err := ParseEmptyPolicy(""); err != nil || p != EmptyNone {
		t.Fatalf("ParseEmptyPolicy(\"\")=%v,%v", p, err)
	}
	if _, err := ParseEmptyPolicy("maybe"); err == nil {
		t.Fatal("want error for unknown policy")
	}
	if s, err := ParseSource("clear"); err != nil || s != SourceClear {
		t.Fatalf("ParseSource(clear)=%v,%v", s, err)
	}
	if _, err := ParseSource("drag"); err == nil {
		t.Fatal("want error for unknown source")
	}
}

func TestNewStateRejectsEmptyInputs(t *testing.T) {
	axis, _ := quarter.Build("2019 Q1", "2019 Q4")
	if _, err := NewState(quarter.Axis{}, NewBeds(1), EmptyNone); err == nil {
		t.Fatal("want error for empty axis")
	}
	if _, err := NewState(axis, NewBeds(), EmptyNone); err == nil {
		t.Fatal("want error for empty defaults")
	}
}
