// Package interaction turns clicks on the thematic layer into attribute
// popups.
package interaction

import (
	"fmt"

	"github.com/joeblew999/plat-rentmap/internal/mapview"
	"github.com/joeblew999/plat-rentmap/internal/templates"
)

// Fields names the attributes shown in a popup.
type Fields struct {
	// Name is tried in order; the first non-empty value wins.
	Name        []string
	DefaultName string
	Bedrooms    string
	Period      string
	Median      string
	Mean        string
	Count       string
	Min         string
	Max         string
}

// DefaultFields matches the Glasgow ward rent tileset.
func DefaultFields() Fields {
	return Fields{
		Name:        []string{"WD23NM", "WARD"},
		DefaultName: "Ward",
		Bedrooms:    "BEDROOMS",
		Period:      "YEARLY_QUARTER",
		Median:      "median",
		Mean:        "mean",
		Count:       "count",
		Min:         "min",
		Max:         "max",
	}
}

// Summarize projects feature properties onto the popup template.
func Summarize(props map[string]any, fields Fields, f Formatter) templates.Popup {
	return templates.Popup{
		Name:     name(props, fields),
		Bedrooms: f.Raw(props[fields.Bedrooms]),
		Quarter:  f.Raw(props[fields.Period]),
		Median:   f.Number(props[fields.Median]),
		Mean:     f.Number(props[fields.Mean]),
		Count:    f.Number(props[fields.Count]),
		Min:      f.Number(props[fields.Min]),
		Max:      f.Number(props[fields.Max]),
	}
}

func name(props map[string]any, fields Fields) string {
	for _, k := range fields.Name {
		switch v := props[k].(type) {
		case nil:
		case string:
			if v != "" {
				return v
			}
		default:
			return fmt.Sprint(v)
		}
	}
	return fields.DefaultName
}

// PopupShower displays a popup on the map.
type PopupShower interface {
	ShowPopup(p mapview.Popup) error
}

// Controller renders a popup for the first feature under a click.
type Controller struct {
	popups PopupShower
	render *templates.Renderer
	fields Fields
	format Formatter
}

func NewController(m PopupShower, r *templates.Renderer, fields Fields, f Formatter) *Controller {
	return &Controller{popups: m, render: r, fields: fields, format: f}
}

// Click shows a popup at the click position. It reports false when the
// click hit no feature.
func (c *Controller) Click(ev mapview.PointerEvent) (bool, error) {
	if len(ev.Features) == 0 || ev.Features[0] == nil {
		return false, nil
	}
	data := Summarize(ev.Features[0].Properties, c.fields, c.format)
	html, err := c.render.Render("popup", data)
	if err != nil {
		return false, fmt.Errorf("render popup: %w", err)
	}
	err = c.popups.ShowPopup(mapview.Popup{
		At:           ev.LngLat,
		HTML:         html,
		CloseButton:  true,
		CloseOnClick: true,
	})
	if err != nil {
		return false, fmt.Errorf("show popup: %w", err)
	}
	return true, nil
}
