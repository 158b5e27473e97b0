package session

import (
	"encoding/json"
	"fmt"

	"github.com/joeblew999/plat-rentmap/internal/expr"
	"github.com/joeblew999/plat-rentmap/internal/highlight"
	"github.com/joeblew999/plat-rentmap/internal/mapview"
	"github.com/joeblew999/plat-rentmap/internal/resolver"
	"github.com/joeblew999/plat-rentmap/internal/style"
)

// Snapshot is a read-only view of the session after an operation.
type Snapshot struct {
	Quarter       string          `json:"quarter" doc:"Selected quarter" example:"2020 Q1"`
	QuarterIndex  int             `json:"quarterIndex" doc:"Position of the quarter on the axis"`
	Beds          []int           `json:"beds" doc:"Selected bedroom counts, ascending"`
	Policy        string          `json:"policy" doc:"Empty bedroom selection policy" enum:"none,all,by-source"`
	Legend        string          `json:"legend" doc:"Legend summary" example:"Quarter: 2020 Q1, Bed: 1+2+3"`
	LegendVisible bool            `json:"legendVisible" doc:"Whether the legend is shown"`
	Status        string          `json:"status" doc:"User-visible status message, empty when healthy"`
	Ready         bool            `json:"ready" doc:"Whether layer setup has run"`
	WardsLayer    string          `json:"wardsLayer,omitempty" doc:"Resolved thematic layer id"`
	StopsLayer    string          `json:"stopsLayer,omitempty" doc:"Resolved stops layer id"`
	StopsVisible  bool            `json:"stopsVisible" doc:"Whether the stops layer is visible"`
	BedsMode      string          `json:"bedsMode" doc:"Bedroom field encoding in use" enum:"auto,string,numeric"`
	Highlight     string          `json:"highlight" doc:"Highlight state" enum:"idle,hovering,layer-missing"`
	Hovered       string          `json:"hovered,omitempty" doc:"Hovered feature id"`
	Filter        json.RawMessage `json:"filter,omitempty" doc:"Compiled thematic filter as a map expression"`
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() Snapshot {
	beds := s.state.Beds()
	snap := Snapshot{
		Quarter:       s.state.Quarter().String(),
		QuarterIndex:  s.state.QuarterIndex(),
		Beds:          append([]int{}, beds...),
		Policy:        string(s.state.Policy()),
		Legend:        s.legendText(),
		LegendVisible: s.legendVisible,
		Status:        s.status,
		Ready:         s.started,
		BedsMode:      string(s.compiler.Schema().BedsMode),
		Highlight:     s.highlight.State().String(),
		Hovered:       s.highlight.Hovered(),
	}
	if s.res != nil && s.res.Wards != nil {
		snap.WardsLayer = s.res.Wards.ID
		if b, err := json.Marshal(s.compiler.Compile(s.state)); err == nil {
			snap.Filter = b
		}
	}
	if s.res != nil && s.res.Stops != nil {
		snap.StopsLayer = s.res.Stops.ID
		v, err := s.backend.Visibility(s.res.Stops.ID)
		snap.StopsVisible = err == nil && v != mapview.Hidden
	}
	return snap
}

// LayerInfo is a style layer annotated with the role the resolver gave it.
type LayerInfo struct {
	style.Layer
	Role string `json:"role,omitempty" doc:"Resolved role" enum:"wards,stops,highlight"`
}

// Layers lists the live style layers in draw order.
func (s *Session) Layers() ([]LayerInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	layers, err := s.backend.Layers()
	if err != nil {
		return nil, err
	}
	out := make([]LayerInfo, len(layers))
	for i, l := range layers {
		out[i] = LayerInfo{Layer: l, Role: s.roleOf(l.ID)}
	}
	return out, nil
}

func (s *Session) roleOf(id string) string {
	switch {
	case s.res == nil:
		return ""
	case s.res.Wards != nil && s.res.Wards.ID == id:
		return string(resolver.RoleWards)
	case s.res.Stops != nil && s.res.Stops.ID == id:
		return string(resolver.RoleStops)
	case s.highlight.State() != highlight.LayerMissing && s.highlight.LayerID() == id:
		return "highlight"
	}
	return ""
}

// Filters is the pair of predicates currently derived from the state.
type Filters struct {
	Layer          string          `json:"layer,omitempty" doc:"Thematic layer id"`
	Filter         json.RawMessage `json:"filter" doc:"Thematic filter expression"`
	Fingerprint    string          `json:"fingerprint" doc:"xxhash64 of the filter expression"`
	HighlightLayer string          `json:"highlightLayer,omitempty" doc:"Highlight layer id"`
	Highlight      json.RawMessage `json:"highlight" doc:"Highlight filter expression"`
}

// Filters compiles the current state without touching the backend.
func (s *Session) Filters() (Filters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.compiler.Compile(s.state)
	fb, err := json.Marshal(f)
	if err != nil {
		return Filters{}, err
	}
	hb, err := json.Marshal(s.highlight.Predicate())
	if err != nil {
		return Filters{}, err
	}
	out := Filters{
		Filter:      fb,
		Fingerprint: fmt.Sprintf("%016x", expr.Fingerprint(f)),
		Highlight:   hb,
	}
	if s.res != nil && s.res.Wards != nil {
		out.Layer = s.res.Wards.ID
	}
	if s.highlight.State() != highlight.LayerMissing {
		out.HighlightLayer = s.highlight.LayerID()
	}
	return out, nil
}
