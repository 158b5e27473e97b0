package viewer

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-rentmap/internal/mapview"
	"github.com/joeblew999/plat-rentmap/internal/service"
)

// Callbacks receives the browser map's reports and feeds the remote backend.
type Callbacks struct {
	remote *mapview.Remote
	log    zerolog.Logger
}

func NewCallbacks(remote *mapview.Remote, log zerolog.Logger) *Callbacks {
	return &Callbacks{remote: remote, log: log}
}

func (c *Callbacks) RegisterRoutes(api huma.API) {
	tags := huma.OperationTags("viewer")
	huma.Post(api, "/api/v1/viewer/style-ready", c.StyleReady, tags)
	huma.Post(api, "/api/v1/viewer/pointer", c.Pointer, tags)
}

type StyleReadyInput struct {
	Body mapview.StyleReport
}

type StyleReadyBody struct {
	Layers int  `json:"layers" doc:"Layers recorded"`
	Ready  bool `json:"ready" doc:"Whether the backend is ready"`
}

// StyleReady records the browser's layer list. The first report triggers
// layer resolution; a later one means the page loaded its map again and the
// session re-sends its state.
func (c *Callbacks) StyleReady(ctx context.Context, input *StyleReadyInput) (*struct{ Body StyleReadyBody }, error) {
	if c.remote == nil {
		return nil, huma.Error409Conflict("Server is running a headless map")
	}
	if len(input.Body.Layers) == 0 {
		return nil, huma.Error400BadRequest("layers are required")
	}
	first := !c.remote.Ready()
	c.remote.Report(input.Body)
	c.log.Info().
		Int("layers", len(input.Body.Layers)).
		Bool("first", first).
		Msg("style report")
	layers, _ := c.remote.Layers()
	return &struct{ Body StyleReadyBody }{Body: StyleReadyBody{Layers: len(layers), Ready: c.remote.Ready()}}, nil
}

// FeatureRef is one feature under the pointer.
type FeatureRef struct {
	ID         any            `json:"id,omitempty" doc:"GeoJSON feature id"`
	Properties map[string]any `json:"properties,omitempty" doc:"Feature properties"`
}

// PointerRequest is a layer-scoped pointer event from the browser.
type PointerRequest struct {
	Kind     string       `json:"kind" enum:"move,leave,click" doc:"Event kind"`
	Layer    string       `json:"layer" doc:"Layer the event fired on"`
	Lng      float64      `json:"lng,omitempty" doc:"Pointer longitude"`
	Lat      float64      `json:"lat,omitempty" doc:"Pointer latitude"`
	Features []FeatureRef `json:"features,omitempty" doc:"Features under the pointer, topmost first"`
}

type PointerInput struct {
	Body PointerRequest
}

type PointerBody struct {
	Handled int `json:"handled" doc:"Number of handlers that received the event"`
}

// Event converts the request into a backend pointer event.
func (r PointerRequest) Event() mapview.PointerEvent {
	ev := mapview.PointerEvent{
		Kind:   mapview.EventKind(r.Kind),
		Layer:  r.Layer,
		LngLat: orb.Point{r.Lng, r.Lat},
	}
	for _, ref := range r.Features {
		f := geojson.NewFeature(nil)
		f.ID = ref.ID
		if ref.Properties != nil {
			f.Properties = ref.Properties
		}
		ev.Features = append(ev.Features, f)
	}
	return ev
}

// Pointer dispatches a hover, leave or click to the session's handlers.
func (c *Callbacks) Pointer(ctx context.Context, input *PointerInput) (*struct{ Body PointerBody }, error) {
	if c.remote == nil {
		return nil, huma.Error409Conflict("Server is running a headless map")
	}
	n := c.remote.Dispatch(input.Body.Event())
	return &struct{ Body PointerBody }{Body: PointerBody{Handled: n}}, nil
}

// Sender returns a Remote send function that publishes each command on the
// bus for the viewer streams of sessionID to forward.
func Sender(bus *service.EventBus, sessionID string) func(mapview.Command) {
	return func(cmd mapview.Command) {
		bus.Publish(service.Event{Resource: "map", Action: "command", ID: sessionID, Payload: cmd})
	}
}
