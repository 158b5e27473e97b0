package mapview

import (
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-rentmap/internal/expr"
	"github.com/joeblew999/plat-rentmap/internal/style"
)

// Call records one mutating backend call.
type Call struct {
	Op    string
	Layer string
}

// Memory is an in-process Backend over a style document and GeoJSON
// sources keyed by style source id. Until Ready is called it behaves like
// a map whose style is still loading.
type Memory struct {
	handlers

	mu         sync.Mutex
	layers     []style.Layer
	sources    map[string]*geojson.FeatureCollection
	filters    map[string]expr.Node
	visibility map[string]Visibility
	viewport   orb.Bound
	clipped    bool
	countErr   error
	popups     []Popup
	camera     Camera
	calls      []Call
}

// NewMemory builds a backend for doc. sources may be nil.
func NewMemory(doc *style.Document, sources map[string]*geojson.FeatureCollection) *Memory {
	m := &Memory{
		sources:    make(map[string]*geojson.FeatureCollection),
		filters:    make(map[string]expr.Node),
		visibility: make(map[string]Visibility),
	}
	if doc != nil {
		m.layers = append(m.layers, doc.Layers...)
		m.visibility = declaredVisibility(doc.Layers)
	}
	for id, fc := range sources {
		m.sources[id] = fc
	}
	return m
}

// Ready marks the style as loaded and runs the style-ready callbacks.
func (m *Memory) Ready() { m.fireReady() }

// SetViewport restricts rendered counts to features intersecting b.
func (m *Memory) SetViewport(b orb.Bound) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewport = b
	m.clipped = true
}

// FailCounts makes RenderedCount return err, or succeed again when nil.
func (m *Memory) FailCounts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.countErr = err
}

// Emit delivers ev to the handlers subscribed to its kind and layer and
// returns how many ran.
func (m *Memory) Emit(ev PointerEvent) int { return m.dispatch(ev) }

func (m *Memory) OnStyleReady(fn func()) { m.onStyleReady(fn) }

func (m *Memory) On(kind EventKind, layerID string, h Handler) { m.on(kind, layerID, h) }

func (m *Memory) Layers() ([]style.Layer, error) {
	if !m.isReady() {
		return nil, ErrStyleNotReady
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]style.Layer(nil), m.layers...), nil
}

func (m *Memory) HasLayer(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.layer(id)
	return ok
}

func (m *Memory) layer(id string) (style.Layer, bool) {
	for _, l := range m.layers {
		if l.ID == id {
			return l, true
		}
	}
	return style.Layer{}, false
}

func (m *Memory) SetFilter(layerID string, f expr.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.layer(layerID); !ok {
		return fmt.Errorf("set filter on %q: %w", layerID, ErrNoLayer)
	}
	m.filters[layerID] = f
	m.calls = append(m.calls, Call{Op: "set-filter", Layer: layerID})
	return nil
}

func (m *Memory) Visibility(layerID string) (Visibility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.layer(layerID); !ok {
		return "", fmt.Errorf("visibility of %q: %w", layerID, ErrNoLayer)
	}
	if v, ok := m.visibility[layerID]; ok {
		return v, nil
	}
	return Visible, nil
}

func (m *Memory) SetVisibility(layerID string, v Visibility) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.layer(layerID); !ok {
		return fmt.Errorf("set visibility of %q: %w", layerID, ErrNoLayer)
	}
	m.visibility[layerID] = v
	m.calls = append(m.calls, Call{Op: "set-visibility", Layer: layerID})
	return nil
}

func (m *Memory) RenderedCount(layerID string) (int, error) {
	feats, err := m.RenderedFeatures(layerID)
	if err != nil {
		return 0, err
	}
	return len(feats), nil
}

// RenderedFeatures returns the layer's features that pass its filter and
// intersect the viewport. Hidden layers render nothing.
func (m *Memory) RenderedFeatures(layerID string) ([]*geojson.Feature, error) {
	if !m.isReady() {
		return nil, ErrStyleNotReady
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return nil, m.countErr
	}
	l, ok := m.layer(layerID)
	if !ok {
		return nil, fmt.Errorf("rendered features of %q: %w", layerID, ErrNoLayer)
	}
	if m.visibility[layerID] == Hidden {
		return nil, nil
	}
	fc := m.sources[l.Source]
	if fc == nil {
		return nil, nil
	}
	f := m.filters[layerID]
	var out []*geojson.Feature
	for _, feat := range fc.Features {
		if m.clipped && (feat.Geometry == nil || !feat.Geometry.Bound().Intersects(m.viewport)) {
			continue
		}
		if !expr.Matches(f, feat.Properties) {
			continue
		}
		out = append(out, feat)
	}
	return out, nil
}

func (m *Memory) SampleProperties(layerID string, limit int) ([]map[string]any, error) {
	if !m.isReady() {
		return nil, ErrStyleNotReady
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.layer(layerID)
	if !ok {
		return nil, fmt.Errorf("sample %q: %w", layerID, ErrNoLayer)
	}
	fc := m.sources[l.Source]
	if fc == nil {
		return nil, nil
	}
	var out []map[string]any
	for _, feat := range fc.Features {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, feat.Properties)
	}
	return out, nil
}

func (m *Memory) AddLayer(spec style.LayerSpec, beforeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.layer(spec.ID); ok {
		return fmt.Errorf("add layer %q: already exists", spec.ID)
	}
	pos := len(m.layers)
	if beforeID != "" {
		for i, l := range m.layers {
			if l.ID == beforeID {
				pos = i
				break
			}
		}
	}
	m.layers = append(m.layers, style.Layer{})
	copy(m.layers[pos+1:], m.layers[pos:])
	m.layers[pos] = spec.Descriptor()
	if spec.Filter != nil {
		m.filters[spec.ID] = spec.Filter
	}
	m.calls = append(m.calls, Call{Op: "add-layer", Layer: spec.ID})
	return nil
}

func (m *Memory) ShowPopup(p Popup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.popups = append(m.popups, p)
	m.calls = append(m.calls, Call{Op: "popup"})
	return nil
}

func (m *Memory) FlyTo(c Camera) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.camera = c
	m.calls = append(m.calls, Call{Op: "fly-to"})
	return nil
}

// Filter returns the filter currently applied to a layer.
func (m *Memory) Filter(layerID string) expr.Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filters[layerID]
}

// Popups returns every popup shown so far.
func (m *Memory) Popups() []Popup {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Popup(nil), m.popups...)
}

// Camera returns the last fly-to target.
func (m *Memory) Camera() Camera {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.camera
}

// Calls returns the mutating calls in order.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CountCalls counts recorded calls with op on layer.
func (m *Memory) CountCalls(op, layer string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Op == op && c.Layer == layer {
			n++
		}
	}
	return n
}
