// Package viewer contains the Datastar SSE handlers and browser callbacks
// for the map viewer page.
package viewer

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-rentmap/internal/filter"
	"github.com/joeblew999/plat-rentmap/internal/humastar"
	"github.com/joeblew999/plat-rentmap/internal/service"
	"github.com/joeblew999/plat-rentmap/internal/session"
	"github.com/joeblew999/plat-rentmap/internal/templates"
)

// Custom DOM events dispatched on the viewer page.
const (
	CommandEvent = "rentmap-command"
	StateEvent   = "rentmap-state"
)

// Handler streams session changes to the viewer and applies its controls.
type Handler struct {
	humastar.Handler
	session *session.Session
	bus     *service.EventBus
	log     zerolog.Logger
}

func NewHandler(s *session.Session, bus *service.EventBus, r *templates.Renderer, log zerolog.Logger) *Handler {
	return &Handler{
		Handler: humastar.Handler{Renderer: r},
		session: s,
		bus:     bus,
		log:     log,
	}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	tags := huma.OperationTags("viewer")
	huma.Get(api, "/api/v1/viewer/events", h.Events, tags)
	huma.Post(api, "/api/v1/viewer/quarter", h.Quarter, tags)
	huma.Post(api, "/api/v1/viewer/beds", h.Beds, tags)
	huma.Post(api, "/api/v1/viewer/controls/{control}", h.Control, tags)
}

// Events forwards map commands as custom events and patches the legend,
// status and quarter label whenever the session state changes.
func (h *Handler) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		ch := h.bus.Subscribe()
		defer h.bus.Unsubscribe(ch)
		h.log.Debug().Int("subscribers", h.bus.Subscribers()).Msg("viewer connected")

		h.patch(sse, h.session.Snapshot())
		for {
			select {
			case <-ctx.Done():
				h.log.Debug().Msg("viewer disconnected")
				return
			case ev := <-ch:
				if ev.Resource != "map" || ev.ID != h.session.ID() {
					continue
				}
				switch ev.Action {
				case "command":
					if err := sse.Event(CommandEvent, ev.Payload); err != nil {
						h.log.Debug().Err(err).Msg("viewer stream closed")
						return
					}
				case "state", "status":
					if snap, ok := ev.Payload.(session.Snapshot); ok {
						h.patch(sse, snap)
					}
				}
			}
		}
	}), nil
}

// Quarter applies the slider position in the qindex signal.
func (h *Handler) Quarter(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		i, ok := signals.Index("qindex")
		if !ok {
			sse.Error("qindex signal is required")
			return
		}
		h.patch(sse, h.session.SetQuarterByIndex(i))
	}), nil
}

// Beds reads the bed1..bedN toggles, or applies the clear/all action.
func (h *Handler) Beds(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	return h.Stream(func(sse humastar.SSE) {
		src, err := filter.ParseSource(signals.String("action"))
		if err != nil {
			sse.Error(err.Error())
			return
		}
		var sel []int
		if src == filter.SourceToggle {
			for _, n := range h.session.Defaults() {
				if signals.Bool(bedSignal(n)) {
					sel = append(sel, n)
				}
			}
		}
		h.patch(sse, h.session.SetBeds(filter.NewBeds(sel...), src))
	}), nil
}

type ControlInput struct {
	Control string `path:"control" enum:"stops,reset,legend" doc:"Map control"`
}

// Control runs one of the map buttons.
func (h *Handler) Control(ctx context.Context, input *ControlInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		var snap session.Snapshot
		switch input.Control {
		case "stops":
			snap = h.session.ToggleStops()
		case "reset":
			snap = h.session.ResetView()
		case "legend":
			snap = h.session.ToggleLegend()
		}
		h.patch(sse, snap)
	}), nil
}

// patch renders the state-dependent fragments and syncs the controls.
func (h *Handler) patch(sse humastar.SSE, snap session.Snapshot) {
	sse.Apply(
		h.Fragment("legend-meta", "#legend-meta", templates.Legend{Text: snap.Legend, Visible: snap.LegendVisible}),
		h.Fragment("status", "#status", templates.Status{Message: snap.Status}),
		h.Fragment("q-label", "#q-label", templates.QuarterLabel{Index: snap.QuarterIndex, Label: snap.Quarter}),
	)

	signals := map[string]any{
		"qindex":       snap.QuarterIndex,
		"stopsvisible": snap.StopsVisible,
	}
	selected := filter.Beds(snap.Beds)
	for _, n := range h.session.Defaults() {
		signals[bedSignal(n)] = selected.Contains(n)
	}
	sse.Signals(signals)
	if err := sse.Event(StateEvent, snap); err != nil {
		h.log.Debug().Err(err).Msg("state event")
	}
}

func bedSignal(n int) string { return fmt.Sprintf("bed%d", n) }
