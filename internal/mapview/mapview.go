// Package mapview is the boundary to the map-rendering collaborator.
//
// The session only talks to a Backend. Memory evaluates everything in
// process for headless use and tests; Remote forwards commands to a
// browser map and is fed style and pointer callbacks over HTTP.
package mapview

import (
	"errors"
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-rentmap/internal/expr"
	"github.com/joeblew999/plat-rentmap/internal/style"
)

// ErrStyleNotReady is returned by layer queries issued before style-ready.
var ErrStyleNotReady = errors.New("map style not ready")

// ErrNoLayer is returned for operations on a layer the style lacks.
var ErrNoLayer = errors.New("layer not found")

// EventKind is a layer-scoped pointer event.
type EventKind string

const (
	PointerMove  EventKind = "move"
	PointerLeave EventKind = "leave"
	Click        EventKind = "click"
)

// PointerEvent carries the features under the pointer, topmost first.
type PointerEvent struct {
	Kind     EventKind
	Layer    string
	Features []*geojson.Feature
	LngLat   orb.Point
}

// Handler receives pointer events.
type Handler func(PointerEvent)

// Visibility is a layer's layout visibility.
type Visibility string

const (
	Visible Visibility = "visible"
	Hidden  Visibility = "none"
)

// Popup is a positioned markup overlay.
type Popup struct {
	At           orb.Point `json:"lngLat"`
	HTML         string    `json:"html"`
	CloseButton  bool      `json:"closeButton"`
	CloseOnClick bool      `json:"closeOnClick"`
}

// Camera is a viewport target.
type Camera struct {
	Center orb.Point `json:"center"`
	Zoom   float64   `json:"zoom"`
}

// Backend is what the session needs from the map.
type Backend interface {
	// OnStyleReady runs fn once the style has loaded, immediately if it
	// already has.
	OnStyleReady(fn func())
	Layers() ([]style.Layer, error)
	HasLayer(id string) bool
	// SetFilter fully replaces the layer's filter.
	SetFilter(layerID string, f expr.Node) error
	Visibility(layerID string) (Visibility, error)
	SetVisibility(layerID string, v Visibility) error
	// RenderedCount is the number of the layer's features currently drawn
	// in the viewport.
	RenderedCount(layerID string) (int, error)
	SampleProperties(layerID string, limit int) ([]map[string]any, error)
	On(kind EventKind, layerID string, h Handler)
	AddLayer(spec style.LayerSpec, beforeID string) error
	ShowPopup(p Popup) error
	FlyTo(c Camera) error
}

type handlerKey struct {
	kind  EventKind
	layer string
}

// handlers is a registry of layer-scoped pointer handlers and style-ready
// callbacks shared by the backends.
type handlers struct {
	mu      sync.Mutex
	byKey   map[handlerKey][]Handler
	ready   bool
	onReady []func()
	reload  []func()
}

func (h *handlers) on(kind EventKind, layer string, fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byKey == nil {
		h.byKey = make(map[handlerKey][]Handler)
	}
	k := handlerKey{kind, layer}
	h.byKey[k] = append(h.byKey[k], fn)
}

func (h *handlers) dispatch(ev PointerEvent) int {
	h.mu.Lock()
	fns := append([]Handler(nil), h.byKey[handlerKey{ev.Kind, ev.Layer}]...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
	return len(fns)
}

func (h *handlers) onStyleReady(fn func()) {
	h.mu.Lock()
	if !h.ready {
		h.onReady = append(h.onReady, fn)
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	fn()
}

func (h *handlers) fireReady() {
	h.mu.Lock()
	if h.ready {
		h.mu.Unlock()
		return
	}
	h.ready = true
	fns := h.onReady
	h.onReady = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (h *handlers) onReload(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reload = append(h.reload, fn)
}

func (h *handlers) fireReload() {
	h.mu.Lock()
	fns := append([]func(){}, h.reload...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (h *handlers) isReady() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready
}

// declaredVisibility is the visibility each layer's layout declares.
func declaredVisibility(layers []style.Layer) map[string]Visibility {
	out := make(map[string]Visibility, len(layers))
	for _, l := range layers {
		if l.Hidden() {
			out[l.ID] = Hidden
		} else {
			out[l.ID] = Visible
		}
	}
	return out
}

// FeatureID returns the feature's id property, else its GeoJSON id.
func FeatureID(f *geojson.Feature, idField string) string {
	if f == nil {
		return ""
	}
	if v, ok := f.Properties[idField]; ok && v != nil {
		return stringify(v)
	}
	if f.ID != nil {
		return stringify(f.ID)
	}
	return ""
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
