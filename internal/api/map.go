package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-rentmap/internal/filter"
	"github.com/joeblew999/plat-rentmap/internal/humastar"
	"github.com/joeblew999/plat-rentmap/internal/mapview"
	"github.com/joeblew999/plat-rentmap/internal/quarter"
	"github.com/joeblew999/plat-rentmap/internal/session"
)

// MapBody is the session snapshot plus the actions valid in its state.
type MapBody struct {
	session.Snapshot
}

// Actions implements humastar.Actor. Toggling stops is only offered once a
// stops layer has been resolved.
func (b MapBody) Actions() []humastar.Action {
	actions := []humastar.Action{
		humastar.Put("set-quarter", "/api/v1/map/quarter", "Select a quarter", "/schemas/QuarterRequest.json"),
		humastar.Put("set-beds", "/api/v1/map/beds", "Select bedroom counts", "/schemas/BedsRequest.json"),
		humastar.Post("clear-beds", "/api/v1/map/beds/clear", "Clear the bedroom selection"),
		humastar.Post("select-all-beds", "/api/v1/map/beds/all", "Select every bedroom count"),
	}
	if b.StopsLayer != "" {
		actions = append(actions, humastar.Post("toggle-stops", "/api/v1/map/stops/toggle", "Show or hide bus stops"))
	}
	return append(actions,
		humastar.Post("reset-view", "/api/v1/map/view/reset", "Fly back to the home view"),
		humastar.Post("toggle-legend", "/api/v1/map/legend/toggle", "Show or hide the legend"),
	)
}

type MapOutput struct {
	Body MapBody
}

// QuarterRequest selects a quarter by axis index or by label.
type QuarterRequest struct {
	Index *int   `json:"index,omitempty" doc:"Axis position; out-of-range values select the first quarter"`
	Label string `json:"label,omitempty" doc:"Quarter label" example:"2020 Q1"`
}

type QuarterInput struct {
	Body QuarterRequest
}

// BedsRequest replaces the bedroom selection.
type BedsRequest struct {
	Beds   []int  `json:"beds" doc:"Selected bedroom counts" example:"[2,3]"`
	Source string `json:"source,omitempty" doc:"Control that produced the selection" enum:"toggle,clear,all"`
}

type BedsInput struct {
	Body BedsRequest
}

type QuarterItem struct {
	Index int    `json:"index" doc:"Axis position"`
	Label string `json:"label" doc:"Quarter label" example:"2019 Q1"`
}

type QuartersBody struct {
	Quarters []QuarterItem `json:"quarters" doc:"Selectable quarters in slider order"`
	Selected int           `json:"selected" doc:"Index of the selected quarter"`
}

type LayersOutput struct {
	Body humastar.PageBody[session.LayerInfo]
}

// RegisterMap registers the map state routes.
func (h *APIHandler) RegisterMap(api huma.API) {
	if h.svc.Session == nil {
		return
	}
	tags := huma.OperationTags("map")
	huma.Get(api, "/api/v1/map", h.GetMap, tags)
	huma.Put(api, "/api/v1/map/quarter", h.PutQuarter, tags)
	huma.Put(api, "/api/v1/map/beds", h.PutBeds, tags)
	huma.Post(api, "/api/v1/map/beds/clear", h.ClearBeds, tags)
	huma.Post(api, "/api/v1/map/beds/all", h.SelectAllBeds, tags)
	huma.Post(api, "/api/v1/map/stops/toggle", h.ToggleStops, tags)
	huma.Post(api, "/api/v1/map/view/reset", h.ResetView, tags)
	huma.Post(api, "/api/v1/map/legend/toggle", h.ToggleLegend, tags)
	huma.Get(api, "/api/v1/map/layers", h.GetLayers, tags)
	huma.Get(api, "/api/v1/map/filter", h.GetFilter, tags)
	huma.Get(api, "/api/v1/quarters", h.GetQuarters, tags)
}

func mapOut(s session.Snapshot) *MapOutput {
	return &MapOutput{Body: MapBody{Snapshot: s}}
}

func (h *APIHandler) GetMap(ctx context.Context, input *struct{}) (*MapOutput, error) {
	return mapOut(h.svc.Session.Snapshot()), nil
}

func (h *APIHandler) PutQuarter(ctx context.Context, input *QuarterInput) (*MapOutput, error) {
	req := input.Body
	switch {
	case req.Index != nil:
		return mapOut(h.svc.Session.SetQuarterByIndex(*req.Index)), nil
	case req.Label != "":
		q, err := quarter.Parse(req.Label)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		for i, l := range h.svc.Session.Axis() {
			if l == q.String() {
				return mapOut(h.svc.Session.SetQuarterByIndex(i)), nil
			}
		}
		return nil, huma.Error400BadRequest("quarter " + q.String() + " is outside the configured range")
	}
	return nil, huma.Error400BadRequest("index or label is required")
}

func (h *APIHandler) PutBeds(ctx context.Context, input *BedsInput) (*MapOutput, error) {
	src, err := filter.ParseSource(input.Body.Source)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return mapOut(h.svc.Session.SetBeds(filter.NewBeds(input.Body.Beds...), src)), nil
}

func (h *APIHandler) ClearBeds(ctx context.Context, input *struct{}) (*MapOutput, error) {
	return mapOut(h.svc.Session.ClearBeds()), nil
}

func (h *APIHandler) SelectAllBeds(ctx context.Context, input *struct{}) (*MapOutput, error) {
	return mapOut(h.svc.Session.SelectAllBeds()), nil
}

func (h *APIHandler) ToggleStops(ctx context.Context, input *struct{}) (*MapOutput, error) {
	return mapOut(h.svc.Session.ToggleStops()), nil
}

func (h *APIHandler) ResetView(ctx context.Context, input *struct{}) (*MapOutput, error) {
	return mapOut(h.svc.Session.ResetView()), nil
}

func (h *APIHandler) ToggleLegend(ctx context.Context, input *struct{}) (*MapOutput, error) {
	return mapOut(h.svc.Session.ToggleLegend()), nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *humastar.PageInput) (*LayersOutput, error) {
	layers, err := h.svc.Session.Layers()
	if errors.Is(err, mapview.ErrStyleNotReady) {
		return nil, huma.Error503ServiceUnavailable("Map style not loaded")
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list layers", err)
	}
	return &LayersOutput{Body: humastar.Page(layers, *input)}, nil
}

func (h *APIHandler) GetFilter(ctx context.Context, input *struct{}) (*struct{ Body session.Filters }, error) {
	f, err := h.svc.Session.Filters()
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to compile filters", err)
	}
	return &struct{ Body session.Filters }{Body: f}, nil
}

func (h *APIHandler) GetQuarters(ctx context.Context, input *struct{}) (*struct{ Body QuartersBody }, error) {
	labels := h.svc.Session.Axis()
	items := make([]QuarterItem, len(labels))
	for i, l := range labels {
		items[i] = QuarterItem{Index: i, Label: l}
	}
	body := QuartersBody{Quarters: items, Selected: h.svc.Session.Snapshot().QuarterIndex}
	return &struct{ Body QuartersBody }{Body: body}, nil
}
