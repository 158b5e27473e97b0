// Package highlight keeps the hover outline layer's predicate in step with
// the thematic filter.
package highlight

import (
	"github.com/joeblew999/plat-rentmap/internal/expr"
	"github.com/joeblew999/plat-rentmap/internal/mapview"
)

// State is the controller's hover state.
type State int

const (
	Idle State = iota
	Hovering
	LayerMissing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Hovering:
		return "hovering"
	case LayerMissing:
		return "layer-missing"
	}
	return "unknown"
}

// FilterSetter applies a predicate to a layer.
type FilterSetter interface {
	SetFilter(layerID string, f expr.Node) error
}

// Controller owns the highlight layer's predicate. While hovering it is
// id == hovered AND the current thematic filter, so a feature the filter
// hides is never drawn as highlighted.
type Controller struct {
	sink    FilterSetter
	layerID string
	idField string

	state   State
	hovered string
	filter  expr.Node
}

// New returns an Idle controller for the overlay layerID.
func New(sink FilterSetter, layerID, idField string, filter expr.Node) *Controller {
	return &Controller{sink: sink, layerID: layerID, idField: idField, filter: filter}
}

// Missing returns a controller for a session without a thematic layer.
// Every transition is a no-op.
func Missing() *Controller {
	return &Controller{state: LayerMissing}
}

func (c *Controller) State() State { return c.state }

// Hovered is the hovered feature id, empty unless Hovering.
func (c *Controller) Hovered() string { return c.hovered }

// LayerID is the overlay layer the controller drives.
func (c *Controller) LayerID() string { return c.layerID }

// Predicate is the highlight layer's current filter.
func (c *Controller) Predicate() expr.Node {
	if c.state != Hovering {
		return expr.False()
	}
	return expr.All(expr.Eq(expr.Field(c.idField), expr.Value(c.hovered)), c.filter)
}

// MoveEvent hovers the topmost feature of ev.
func (c *Controller) MoveEvent(ev mapview.PointerEvent) error {
	if c.state == LayerMissing || len(ev.Features) == 0 {
		return nil
	}
	return c.Move(mapview.FeatureID(ev.Features[0], c.idField))
}

// Move enters Hovering(id). An empty id is treated as a leave.
func (c *Controller) Move(id string) error {
	if c.state == LayerMissing {
		return nil
	}
	if id == "" {
		return c.Leave()
	}
	c.state, c.hovered = Hovering, id
	return c.apply()
}

// Leave returns to Idle and forgets the hovered id.
func (c *Controller) Leave() error {
	if c.state == LayerMissing {
		return nil
	}
	c.state, c.hovered = Idle, ""
	return c.apply()
}

// Refilter records a new thematic filter, re-deriving the predicate when
// hovering.
func (c *Controller) Refilter(f expr.Node) error {
	if c.state == LayerMissing {
		return nil
	}
	c.filter = f
	if c.state != Hovering {
		return nil
	}
	return c.apply()
}

// Sync pushes the current predicate to the layer. Setup calls it so a
// highlight layer shipped with the style starts out matching nothing.
func (c *Controller) Sync() error {
	if c.state == LayerMissing {
		return nil
	}
	return c.apply()
}

func (c *Controller) apply() error {
	return c.sink.SetFilter(c.layerID, c.Predicate())
}
