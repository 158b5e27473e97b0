package mapview

import (
	"fmt"
	"sync"

	"github.com/joeblew999/plat-rentmap/internal/expr"
	"github.com/joeblew999/plat-rentmap/internal/style"
)

// Command is one instruction for the browser map.
type Command struct {
	Op         string           `json:"op"`
	Layer      string           `json:"layer,omitempty"`
	Filter     expr.Node        `json:"filter,omitempty"`
	Visibility Visibility       `json:"visibility,omitempty"`
	Spec       *style.LayerSpec `json:"spec,omitempty"`
	Before     string           `json:"before,omitempty"`
	Popup      *Popup           `json:"popup,omitempty"`
	Camera     *Camera          `json:"camera,omitempty"`
}

// Command ops.
const (
	OpSetFilter     = "set-filter"
	OpSetVisibility = "set-visibility"
	OpAddLayer      = "add-layer"
	OpPopup         = "popup"
	OpFlyTo         = "fly-to"
)

// StyleReport is what the browser posts once its style has loaded.
type StyleReport struct {
	Layers   []style.Layer               `json:"layers"`
	Rendered map[string]int              `json:"rendered,omitempty"`
	Samples  map[string][]map[string]any `json:"samples,omitempty"`
}

// Remote is a Backend whose map lives in a browser. Commands go out through
// send; layer state comes back through Report.
type Remote struct {
	handlers

	send func(Command)

	mu         sync.Mutex
	layers     []style.Layer
	rendered   map[string]int
	samples    map[string][]map[string]any
	visibility map[string]Visibility
}

// NewRemote returns a backend that emits commands with send.
func NewRemote(send func(Command)) *Remote {
	return &Remote{
		send:       send,
		rendered:   make(map[string]int),
		samples:    make(map[string][]map[string]any),
		visibility: make(map[string]Visibility),
	}
}

// Report stores the browser's layer snapshot, including the visibility
// each layer was loaded with. The first report fires the style-ready
// callbacks. A later one comes from a freshly loaded map, after a reload or
// from another tab, so the snapshot replaces the old one and the reload
// callbacks run.
func (r *Remote) Report(rep StyleReport) {
	r.mu.Lock()
	r.layers = append([]style.Layer(nil), rep.Layers...)
	r.visibility = declaredVisibility(rep.Layers)
	for id, n := range rep.Rendered {
		r.rendered[id] = n
	}
	for id, s := range rep.Samples {
		r.samples[id] = s
	}
	r.mu.Unlock()
	if r.isReady() {
		r.fireReload()
		return
	}
	r.fireReady()
}

// Dispatch delivers a browser pointer event to subscribed handlers.
func (r *Remote) Dispatch(ev PointerEvent) int { return r.dispatch(ev) }

// Ready reports whether a style report has arrived.
func (r *Remote) Ready() bool { return r.isReady() }

func (r *Remote) OnStyleReady(fn func()) { r.onStyleReady(fn) }

// OnReload runs fn for every style report after the first.
func (r *Remote) OnReload(fn func()) { r.onReload(fn) }

func (r *Remote) On(kind EventKind, layerID string, h Handler) { r.on(kind, layerID, h) }

func (r *Remote) Layers() ([]style.Layer, error) {
	if !r.isReady() {
		return nil, ErrStyleNotReady
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]style.Layer(nil), r.layers...), nil
}

func (r *Remote) HasLayer(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasLayer(id)
}

func (r *Remote) hasLayer(id string) bool {
	for _, l := range r.layers {
		if l.ID == id {
			return true
		}
	}
	return false
}

func (r *Remote) SetFilter(layerID string, f expr.Node) error {
	if !r.HasLayer(layerID) {
		return fmt.Errorf("set filter on %q: %w", layerID, ErrNoLayer)
	}
	r.send(Command{Op: OpSetFilter, Layer: layerID, Filter: f})
	return nil
}

func (r *Remote) Visibility(layerID string) (Visibility, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasLayer(layerID) {
		return "", fmt.Errorf("visibility of %q: %w", layerID, ErrNoLayer)
	}
	if v, ok := r.visibility[layerID]; ok {
		return v, nil
	}
	return Visible, nil
}

func (r *Remote) SetVisibility(layerID string, v Visibility) error {
	r.mu.Lock()
	if !r.hasLayer(layerID) {
		r.mu.Unlock()
		return fmt.Errorf("set visibility of %q: %w", layerID, ErrNoLayer)
	}
	r.visibility[layerID] = v
	r.mu.Unlock()
	r.send(Command{Op: OpSetVisibility, Layer: layerID, Visibility: v})
	return nil
}

func (r *Remote) RenderedCount(layerID string) (int, error) {
	if !r.isReady() {
		return 0, ErrStyleNotReady
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rendered[layerID]
	if !ok {
		return 0, fmt.Errorf("rendered count of %q: not reported", layerID)
	}
	return n, nil
}

func (r *Remote) SampleProperties(layerID string, limit int) ([]map[string]any, error) {
	if !r.isReady() {
		return nil, ErrStyleNotReady
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.samples[layerID]
	if limit > 0 && len(s) > limit {
		s = s[:limit]
	}
	return append([]map[string]any(nil), s...), nil
}

func (r *Remote) AddLayer(spec style.LayerSpec, beforeID string) error {
	r.mu.Lock()
	if r.hasLayer(spec.ID) {
		r.mu.Unlock()
		return fmt.Errorf("add layer %q: already exists", spec.ID)
	}
	r.layers = append(r.layers, spec.Descriptor())
	r.mu.Unlock()
	r.send(Command{Op: OpAddLayer, Layer: spec.ID, Spec: &spec, Before: beforeID})
	return nil
}

func (r *Remote) ShowPopup(p Popup) error {
	r.send(Command{Op: OpPopup, Popup: &p})
	return nil
}

func (r *Remote) FlyTo(c Camera) error {
	r.send(Command{Op: OpFlyTo, Camera: &c})
	return nil
}
