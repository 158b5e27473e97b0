// Package style reads the layer list of a Mapbox GL style document.
package style

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joeblew999/plat-rentmap/internal/expr"
)

// GeometryType is a style layer type.
type GeometryType string

const (
	Fill       GeometryType = "fill"
	Line       GeometryType = "line"
	Symbol     GeometryType = "symbol"
	Circle     GeometryType = "circle"
	Heatmap    GeometryType = "heatmap"
	Raster     GeometryType = "raster"
	Background GeometryType = "background"
)

// Layer is a read-only snapshot of one style layer.
type Layer struct {
	ID          string       `json:"id" doc:"Style layer id" example:"glasgow-wards-rent copy"`
	Type        GeometryType `json:"type" doc:"Layer geometry type" example:"fill"`
	Source      string       `json:"source,omitempty" doc:"Source id"`
	SourceLayer string       `json:"source-layer,omitempty" doc:"Vector tile source layer, empty for GeoJSON sources"`
	Layout      *Layout      `json:"layout,omitempty" doc:"Layout properties the map engine reads"`
}

// Layout is the subset of a layer's layout properties in use.
type Layout struct {
	Visibility string `json:"visibility,omitempty" enum:"visible,none" doc:"Initial visibility, visible when absent"`
}

// Hidden reports whether the style declares the layer hidden.
func (l Layer) Hidden() bool { return l.Layout != nil && l.Layout.Visibility == "none" }

// Source is a style source entry. Only GeoJSON data references are used.
type Source struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Document is the subset of a style document the resolver needs.
type Document struct {
	Version int               `json:"version"`
	Name    string            `json:"name,omitempty"`
	Sources map[string]Source `json:"sources,omitempty"`
	Layers  []Layer           `json:"layers"`
}

// Parse decodes a style document. Unknown keys are ignored.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing style: %w", err)
	}
	for i, l := range doc.Layers {
		if l.ID == "" {
			return nil, fmt.Errorf("parsing style: layer %d has no id", i)
		}
	}
	return &doc, nil
}

// Load reads and parses a style document from disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading style: %w", err)
	}
	return Parse(data)
}

// Layer returns the layer with id.
func (d *Document) Layer(id string) (Layer, bool) {
	for _, l := range d.Layers {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}

// LayerSpec describes an overlay layer to add to the live style.
type LayerSpec struct {
	ID          string         `json:"id"`
	Type        GeometryType   `json:"type"`
	Source      string         `json:"source"`
	SourceLayer string         `json:"source-layer,omitempty"`
	Paint       map[string]any `json:"paint,omitempty"`
	Filter      expr.Node      `json:"filter,omitempty"`
}

// Descriptor returns the snapshot form of the spec.
func (s LayerSpec) Descriptor() Layer {
	return Layer{ID: s.ID, Type: s.Type, Source: s.Source, SourceLayer: s.SourceLayer}
}
