// Package session owns the filter state and the controllers around one map.
//
// Every exported operation runs under the session mutex, so handlers are
// atomic with respect to each other: when one returns, the state and the
// predicates applied to the backend agree. Layer work is deferred until the
// backend reports style-ready; before that, operations only update state
// and the legend.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-rentmap/internal/config"
	"github.com/joeblew999/plat-rentmap/internal/expr"
	"github.com/joeblew999/plat-rentmap/internal/filter"
	"github.com/joeblew999/plat-rentmap/internal/highlight"
	"github.com/joeblew999/plat-rentmap/internal/interaction"
	"github.com/joeblew999/plat-rentmap/internal/legend"
	"github.com/joeblew999/plat-rentmap/internal/mapview"
	"github.com/joeblew999/plat-rentmap/internal/metrics"
	"github.com/joeblew999/plat-rentmap/internal/resolver"
	"github.com/joeblew999/plat-rentmap/internal/service"
	"github.com/joeblew999/plat-rentmap/internal/style"
	"github.com/joeblew999/plat-rentmap/internal/templates"
)

// Status messages shown in the viewer's status region.
const (
	StatusWaiting      = "Loading map style..."
	StatusNoWards      = "Ward layer not found: filters, highlight and popups are disabled."
	StatusNoStops      = "Stops layer not found: check the style layer id or source-layer."
	StatusFilterFailed = "Could not apply the ward filter."
)

// Options wires a session.
type Options struct {
	ID       string
	Config   config.Map
	Backend  mapview.Backend
	Prober   resolver.ColumnProber
	Renderer *templates.Renderer
	Bus      *service.EventBus
	Metrics  *metrics.Map
	Logger   zerolog.Logger
}

// Session is one interactive map.
type Session struct {
	mu sync.Mutex

	id       string
	cfg      config.Map
	backend  mapview.Backend
	resolver *resolver.Resolver
	render   *templates.Renderer
	bus      *service.EventBus
	metrics  *metrics.Map
	log      zerolog.Logger

	state    *filter.State
	compiler *filter.Compiler
	sink     *sink

	started   bool
	res       *resolver.Resolution
	highlight *highlight.Controller
	interact  *interaction.Controller

	// stopsVis is the stops visibility the session last asked for.
	stopsVis mapview.Visibility

	legendVisible bool
	status        string
}

// reloader is a backend whose map can be loaded again from scratch while
// the session keeps running.
type reloader interface {
	OnReload(fn func())
}

// New validates the configuration and builds the initial state: the first
// quarter with every default bedroom count selected.
func New(opts Options) (*Session, error) {
	if opts.Backend == nil {
		return nil, errors.New("session: backend is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	axis, err := opts.Config.Axis()
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	state, err := filter.NewState(axis, opts.Config.BedOptions(), opts.Config.Policy())
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	render := opts.Renderer
	if render == nil {
		if render, err = templates.New(); err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
	}
	id := opts.ID
	if id == "" {
		id = "default"
	}
	log := opts.Logger.With().Str("session", id).Logger()

	ropts := []resolver.Option{resolver.WithLogger(log)}
	if opts.Prober != nil {
		ropts = append(ropts, resolver.WithProber(opts.Prober))
	}
	return &Session{
		id:            id,
		cfg:           opts.Config,
		backend:       opts.Backend,
		resolver:      resolver.New(opts.Config.Resolver(), ropts...),
		render:        render,
		bus:           opts.Bus,
		metrics:       opts.Metrics,
		log:           log,
		state:         state,
		compiler:      filter.NewCompiler(opts.Config.Schema()),
		sink:          newSink(opts.Backend, opts.Metrics, log),
		highlight:     highlight.Missing(),
		legendVisible: true,
		status:        StatusWaiting,
	}, nil
}

// ID is the session identifier used on the event bus.
func (s *Session) ID() string { return s.id }

// Start defers layer setup to the backend's style-ready notification. It
// runs setup immediately when the style has already loaded.
func (s *Session) Start(ctx context.Context) {
	s.backend.OnStyleReady(func() { s.onStyleReady(ctx) })
	if rl, ok := s.backend.(reloader); ok {
		rl.OnReload(s.onReload)
	}
}

func (s *Session) onStyleReady(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	res, err := s.resolver.Resolve(ctx, s.backend)
	if err != nil {
		s.log.Error().Err(err).Msg("style ready but layers unavailable")
		return
	}
	s.started = true
	s.res = res
	s.metrics.Resolved(string(resolver.RoleWards), string(res.WardsBy))
	s.metrics.Resolved(string(resolver.RoleStops), string(res.StopsBy))
	s.status = ""
	if res.StopsErr != nil {
		s.status = StatusNoStops
	}
	if res.Stops != nil {
		s.stopsVis = mapview.Visible
		if v, err := s.backend.Visibility(res.Stops.ID); err == nil {
			s.stopsVis = v
		}
	}

	if res.Wards == nil {
		s.status = StatusNoWards
		s.publish("status", nil)
		return
	}
	s.compiler = filter.NewCompiler(res.Schema)

	hl := s.cfg.Highlight.ID
	s.ensureHighlight()
	s.highlight = highlight.New(s.sink, hl, res.Schema.IDField, s.compiler.Compile(s.state))
	if err := s.highlight.Sync(); err != nil {
		s.log.Warn().Err(err).Str("layer", hl).Msg("sync highlight")
	}
	s.interact = interaction.NewController(s.backend, s.render, s.cfg.PopupFields(), interaction.NewFormatter(s.cfg.Locale))

	s.apply()

	wards := res.Wards.ID
	s.backend.On(mapview.PointerMove, wards, s.onMove)
	s.backend.On(mapview.PointerLeave, wards, s.onLeave)
	s.backend.On(mapview.Click, wards, s.onClick)

	s.publish("state", nil)
}

// onReload pushes the session's state to a map that loaded its style
// again. The cached resolution is kept; the highlight layer, both filters
// and the stops visibility are sent again.
func (s *Session) onReload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.log.Info().Msg("map reloaded, restoring state")
	s.sink.reset()
	if s.res.Wards != nil {
		s.ensureHighlight()
		s.apply()
		if err := s.highlight.Sync(); err != nil {
			s.log.Warn().Err(err).Msg("sync highlight")
		}
	}
	if s.res.Stops != nil {
		id := s.res.Stops.ID
		if v, err := s.backend.Visibility(id); err == nil && v != s.stopsVis {
			if err := s.backend.SetVisibility(id, s.stopsVis); err != nil {
				s.log.Warn().Err(err).Str("layer", id).Msg("restore stops visibility")
			}
		}
	}
	s.publish("state", nil)
}

// ensureHighlight adds the highlight layer above the thematic layer when
// the map lacks it, recording its match-nothing filter as applied.
func (s *Session) ensureHighlight() {
	hl := s.cfg.Highlight.ID
	if s.backend.HasLayer(hl) {
		return
	}
	wards := s.res.Wards
	spec := style.LayerSpec{
		ID:          hl,
		Type:        style.Line,
		Source:      wards.Source,
		SourceLayer: wards.SourceLayer,
		Paint:       s.cfg.Highlight.Paint,
		Filter:      expr.False(),
	}
	if err := s.backend.AddLayer(spec, s.above(wards.ID)); err != nil {
		s.log.Error().Err(err).Str("layer", hl).Msg("add highlight layer")
		return
	}
	s.sink.seed(hl, spec.Filter)
}

// above returns the id of the layer drawn directly over id, so a layer
// inserted before it sits on top of id. Empty means the top of the stack.
func (s *Session) above(id string) string {
	layers, err := s.backend.Layers()
	if err != nil {
		return ""
	}
	for i, l := range layers {
		if l.ID == id && i+1 < len(layers) {
			return layers[i+1].ID
		}
	}
	return ""
}

// apply pushes the compiled filter to the thematic layer and re-derives the
// highlight predicate. It is a no-op until a thematic layer is resolved.
func (s *Session) apply() {
	if s.res == nil || s.res.Wards == nil {
		return
	}
	f := s.compiler.Compile(s.state)
	if err := s.sink.SetFilter(s.res.Wards.ID, f); err != nil {
		s.status = StatusFilterFailed
		return
	}
	if err := s.highlight.Refilter(f); err != nil {
		s.log.Warn().Err(err).Msg("refilter highlight")
	}
	if s.status == StatusFilterFailed {
		s.status = ""
	}
}

// SetQuarterByIndex selects a quarter by axis position. Stale or
// out-of-range indices select the first quarter.
func (s *Session) SetQuarterByIndex(i int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SetQuarter(i)
	s.apply()
	s.publish("state", nil)
	return s.snapshot()
}

// SetBeds replaces the bedroom selection. src says which control produced
// it, which matters only under the by-source empty policy.
func (s *Session) SetBeds(sel filter.Beds, src filter.Source) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SetBeds(sel, src)
	s.apply()
	s.publish("state", nil)
	return s.snapshot()
}

// ClearBeds is the explicit clear action.
func (s *Session) ClearBeds() Snapshot { return s.SetBeds(nil, filter.SourceClear) }

// SelectAllBeds selects every default bedroom count.
func (s *Session) SelectAllBeds() Snapshot { return s.SetBeds(nil, filter.SourceSelectAll) }

// ToggleStops flips the stops layer between visible and hidden. Without a
// resolved stops layer it only sets the status message.
func (s *Session) ToggleStops() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.res == nil {
		return s.snapshot()
	}
	if s.res.Stops == nil {
		s.status = StatusNoStops
		s.log.Warn().Msg("toggle stops: no stops layer")
		s.publish("status", nil)
		return s.snapshot()
	}
	id := s.res.Stops.ID
	v, err := s.backend.Visibility(id)
	if err != nil {
		s.log.Warn().Err(err).Str("layer", id).Msg("read stops visibility")
		v = mapview.Visible
	}
	next := mapview.Hidden
	if v == mapview.Hidden {
		next = mapview.Visible
	}
	if err := s.backend.SetVisibility(id, next); err != nil {
		s.log.Warn().Err(err).Str("layer", id).Msg("set stops visibility")
	} else {
		s.stopsVis = next
	}
	s.publish("state", nil)
	return s.snapshot()
}

// ResetView flies back to the configured home view. It works whether or
// not layers were resolved.
func (s *Session) ResetView() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	home := s.cfg.Home
	if err := s.backend.FlyTo(mapview.Camera{Center: orb.Point(home.Center), Zoom: home.Zoom}); err != nil {
		s.log.Warn().Err(err).Msg("reset view")
	}
	return s.snapshot()
}

// ToggleLegend shows or hides the legend.
func (s *Session) ToggleLegend() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.legendVisible = !s.legendVisible
	s.publish("state", nil)
	return s.snapshot()
}

// Resolution is the cached layer resolution, nil before style-ready.
func (s *Session) Resolution() *resolver.Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.res
}

// Axis returns the quarter labels in slider order.
func (s *Session) Axis() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Axis().Labels()
}

// Defaults returns the full bedroom option set.
func (s *Session) Defaults() filter.Beds {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Defaults()
}

func (s *Session) onMove(ev mapview.PointerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Pointer(string(ev.Kind))
	if err := s.highlight.MoveEvent(ev); err != nil {
		s.log.Warn().Err(err).Msg("highlight move")
	}
}

func (s *Session) onLeave(ev mapview.PointerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Pointer(string(ev.Kind))
	if err := s.highlight.Leave(); err != nil {
		s.log.Warn().Err(err).Msg("highlight leave")
	}
}

func (s *Session) onClick(ev mapview.PointerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Pointer(string(ev.Kind))
	if s.interact == nil {
		return
	}
	shown, err := s.interact.Click(ev)
	if err != nil {
		s.log.Warn().Err(err).Msg("popup")
		return
	}
	if shown {
		s.metrics.Popup()
	}
}

func (s *Session) publish(action string, payload any) {
	if s.bus == nil {
		return
	}
	if payload == nil {
		payload = s.snapshot()
	}
	s.bus.Publish(service.Event{Resource: "map", Action: action, ID: s.id, Payload: payload})
}

// legendText is the legend line for the current state.
func (s *Session) legendText() string { return legend.Of(s.state) }
