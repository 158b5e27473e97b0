package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-rentmap/internal/config"
	"github.com/joeblew999/plat-rentmap/internal/expr"
	"github.com/joeblew999/plat-rentmap/internal/filter"
	"github.com/joeblew999/plat-rentmap/internal/mapview"
	"github.com/joeblew999/plat-rentmap/internal/metrics"
	"github.com/joeblew999/plat-rentmap/internal/service"
	"github.com/joeblew999/plat-rentmap/internal/style"
)

const wardsID = "glasgow-wards-rent copy"

func ward(code, period, beds string, lon float64) *geojson.Feature {
	ring := orb.Ring{{lon, 55.85}, {lon + 0.01, 55.85}, {lon + 0.01, 55.86}, {lon, 55.86}, {lon, 55.85}}
	f := geojson.NewFeature(orb.Polygon{ring})
	f.Properties["WD23CD"] = code
	f.Properties["WD23NM"] = "Ward " + code
	f.Properties["YEARLY_QUARTER"] = period
	f.Properties["BEDROOMS"] = beds
	f.Properties["median"] = float64(1150)
	return f
}

func glasgow() (*style.Document, map[string]*geojson.FeatureCollection) {
	doc := &style.Document{
		Version: 8,
		Layers: []style.Layer{
			{ID: "background", Type: style.Background},
			{ID: wardsID, Type: style.Fill, Source: "wards"},
			{ID: "glasgow_stops", Type: style.Circle, Source: "stops"},
			{ID: "labels", Type: style.Symbol, Source: "wards"},
		},
	}
	fc := geojson.NewFeatureCollection()
	fc.Append(ward("S1", "2020 Q1", "2 bed", -4.30))
	fc.Append(ward("S2", "2020 Q1", "1 bed", -4.28))
	fc.Append(ward("S3", "2019 Q4", "2 bed", -4.26))
	fc.Append(ward("S4", "2020Q1", "3 bed", -4.24))
	return doc, map[string]*geojson.FeatureCollection{"wards": fc}
}

func newSession(t *testing.T, cfg config.Map, m *mapview.Memory, bus *service.EventBus) *Session {
	t.Helper()
	s, err := New(Options{Config: cfg, Backend: m, Bus: bus, Metrics: metrics.NewMap(), Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func started(t *testing.T) (*Session, *mapview.Memory) {
	t.Helper()
	doc, src := glasgow()
	m := mapview.NewMemory(doc, src)
	s := newSession(t, config.Default(), m, nil)
	s.Start(context.Background())
	m.Ready()
	return s, m
}

func renderedIDs(t *testing.T, m *mapview.Memory, layer string) []string {
	t.Helper()
	feats, err := m.RenderedFeatures(layer)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, f := range feats {
		ids = append(ids, f.Properties.MustString("WD23CD"))
	}
	return ids
}

func TestSetupDeferredUntilStyleReady(t *testing.T) {
	doc, src := glasgow()
	m := mapview.NewMemory(doc, src)
	s := newSession(t, config.Default(), m, nil)
	s.Start(context.Background())

	snap := s.SetQuarterByIndex(4)
	if snap.Ready || snap.Quarter != "2020 Q1" || snap.Status != StatusWaiting {
		t.Fatalf("before ready: %+v", snap)
	}
	if len(m.Calls()) != 0 {
		t.Fatalf("backend touched before style-ready: %v", m.Calls())
	}

	m.Ready()
	snap = s.Snapshot()
	if !snap.Ready || snap.WardsLayer != wardsID || snap.StopsLayer != "glasgow_stops" || snap.Status != "" {
		t.Fatalf("after ready: %+v", snap)
	}
	if got := renderedIDs(t, m, wardsID); strings.Join(got, ",") != "S1,S2,S4" {
		t.Fatalf("rendered=%v, want S1,S2,S4", got)
	}
}

func TestHighlightLayerAddedAboveWards(t *testing.T) {
	_, m := started(t)
	layers, _ := m.Layers()
	var ids []string
	for _, l := range layers {
		ids = append(ids, l.ID)
	}
	want := "background," + wardsID + ",ward-highlight,glasgow_stops,labels"
	if strings.Join(ids, ",") != want {
		t.Fatalf("layers=%v, want %s", ids, want)
	}
	if m.CountCalls("add-layer", "ward-highlight") != 1 {
		t.Fatal("highlight layer should be added once")
	}
}

func TestEndToEndQuarterAndBeds(t *testing.T) {
	s, m := started(t)
	snap := s.SetQuarterByIndex(4)
	if snap.Quarter != "2020 Q1" {
		t.Fatalf("quarter=%s", snap.Quarter)
	}
	snap = s.SetBeds(filter.NewBeds(2, 3), filter.SourceToggle)
	if snap.Legend != "Quarter: 2020 Q1, Bed: 2+3" {
		t.Fatalf("legend=%q", snap.Legend)
	}
	if got := renderedIDs(t, m, wardsID); strings.Join(got, ",") != "S1,S4" {
		t.Fatalf("rendered=%v, want S1,S4", got)
	}

	f := m.Filter(wardsID)
	if !expr.Matches(f, map[string]any{"YEARLY_QUARTER": "2020 Q1", "BEDROOMS": "2 bed"}) {
		t.Fatal("2020 Q1 / 2 bed should match")
	}
	if expr.Matches(f, map[string]any{"YEARLY_QUARTER": "2020 Q1", "BEDROOMS": "1 bed"}) {
		t.Fatal("1 bed should be rejected")
	}
	if expr.Matches(f, map[string]any{"YEARLY_QUARTER": "2019 Q4", "BEDROOMS": "2 bed"}) {
		t.Fatal("2019 Q4 should be rejected")
	}
}

func TestStaleIndexFallsBackToFirstQuarter(t *testing.T) {
	s, _ := started(t)
	for _, i := range []int{-1, 20, 999} {
		if snap := s.SetQuarterByIndex(i); snap.Quarter != "2019 Q1" || snap.QuarterIndex != 0 {
			t.Fatalf("index %d: %+v", i, snap)
		}
	}
}

func TestSameStateAppliedOnce(t *testing.T) {
	s, m := started(t)
	before := m.CountCalls("set-filter", wardsID)
	s.SetQuarterByIndex(7)
	s.SetQuarterByIndex(7)
	s.SetQuarterByIndex(7)
	s.SetBeds(filter.NewBeds(3, 2, 1), filter.SourceToggle)
	if got := m.CountCalls("set-filter", wardsID) - before; got != 1 {
		t.Fatalf("set-filter calls=%d, want 1", got)
	}
}

func TestEmptyBedsPolicyAcrossEntryPoints(t *testing.T) {
	tests := []struct {
		policy     filter.EmptyPolicy
		clearLeg   string
		toggleLeg  string
		clearCount int
	}{
		{filter.EmptyNone, "None", "None", 0},
		{filter.EmptyAll, "1+2+3", "1+2+3", 3},
		{filter.EmptyBySource, "None", "1+2+3", 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			cfg := config.Default()
			cfg.EmptyBeds = string(tt.policy)
			doc, src := glasgow()
			m := mapview.NewMemory(doc, src)
			s := newSession(t, cfg, m, nil)
			s.Start(context.Background())
			m.Ready()
			s.SetQuarterByIndex(4)

			snap := s.ClearBeds()
			if !strings.HasSuffix(snap.Legend, "Bed: "+tt.clearLeg) {
				t.Fatalf("clear legend=%q", snap.Legend)
			}
			if n, _ := m.RenderedCount(wardsID); n != tt.clearCount {
				t.Fatalf("clear rendered=%d, want %d", n, tt.clearCount)
			}
			snap = s.SetBeds(filter.NewBeds(), filter.SourceToggle)
			if !strings.HasSuffix(snap.Legend, "Bed: "+tt.toggleLeg) {
				t.Fatalf("toggle legend=%q", snap.Legend)
			}
			if snap = s.SelectAllBeds(); !strings.HasSuffix(snap.Legend, "Bed: 1+2+3") {
				t.Fatalf("select all legend=%q", snap.Legend)
			}
		})
	}
}

func TestHoverHighlightTracksFilter(t *testing.T) {
	s, m := started(t)
	s.SetQuarterByIndex(4)
	feat := ward("S1", "2020 Q1", "2 bed", -4.30)
	m.Emit(mapview.PointerEvent{Kind: mapview.PointerMove, Layer: wardsID, Features: []*geojson.Feature{feat}})

	snap := s.Snapshot()
	if snap.Highlight != "hovering" || snap.Hovered != "S1" {
		t.Fatalf("snap=%+v", snap)
	}
	if got := renderedIDs(t, m, "ward-highlight"); strings.Join(got, ",") != "S1" {
		t.Fatalf("highlighted=%v, want S1", got)
	}

	s.SetBeds(filter.NewBeds(1), filter.SourceToggle)
	if s.Snapshot().Hovered != "S1" {
		t.Fatal("hover should survive a filter change")
	}
	if got := renderedIDs(t, m, "ward-highlight"); len(got) != 0 {
		t.Fatalf("filtered-out feature still highlighted: %v", got)
	}

	m.Emit(mapview.PointerEvent{Kind: mapview.PointerLeave, Layer: wardsID})
	if snap := s.Snapshot(); snap.Highlight != "idle" || snap.Hovered != "" {
		t.Fatalf("after leave: %+v", snap)
	}
}

func TestClickShowsPopup(t *testing.T) {
	_, m := started(t)
	feat := ward("S2", "2020 Q1", "1 bed", -4.28)
	m.Emit(mapview.PointerEvent{Kind: mapview.Click, Layer: wardsID, LngLat: orb.Point{-4.28, 55.855}, Features: []*geojson.Feature{feat}})
	popups := m.Popups()
	if len(popups) != 1 {
		t.Fatalf("popups=%d, want 1", len(popups))
	}
	if !strings.Contains(popups[0].HTML, "Ward S2") || !strings.Contains(popups[0].HTML, "1,150") {
		t.Fatalf("html=%s", popups[0].HTML)
	}
	m.Emit(mapview.PointerEvent{Kind: mapview.Click, Layer: wardsID})
	if len(m.Popups()) != 1 {
		t.Fatal("click without features should not open a popup")
	}
}

func TestToggleStopsAndResetView(t *testing.T) {
	s, m := started(t)
	if snap := s.ToggleStops(); snap.StopsVisible {
		t.Fatal("first toggle should hide stops")
	}
	if snap := s.ToggleStops(); !snap.StopsVisible {
		t.Fatal("second toggle should show stops")
	}
	s.ResetView()
	if c := m.Camera(); c.Center != (orb.Point{-4.2518, 55.8642}) || c.Zoom != 11 {
		t.Fatalf("camera=%+v", c)
	}
	if snap := s.ToggleLegend(); snap.LegendVisible {
		t.Fatal("legend should be hidden")
	}
}

func TestMissingLayersDegradeToStatus(t *testing.T) {
	doc := &style.Document{Layers: []style.Layer{
		{ID: "background", Type: style.Background},
		{ID: "roads", Type: style.Line, Source: "osm"},
	}}
	m := mapview.NewMemory(doc, nil)
	cfg := config.Default()
	s := newSession(t, cfg, m, nil)
	s.Start(context.Background())
	m.Ready()

	snap := s.Snapshot()
	if snap.Status != StatusNoWards || snap.WardsLayer != "" || snap.Highlight != "layer-missing" {
		t.Fatalf("snap=%+v", snap)
	}
	s.SetQuarterByIndex(3)
	s.ClearBeds()
	if snap := s.ToggleStops(); snap.Status != StatusNoStops {
		t.Fatalf("status=%q", snap.Status)
	}
	s.ResetView()
	s.ToggleLegend()
	for _, c := range m.Calls() {
		if c.Op == "set-filter" || c.Op == "add-layer" || c.Op == "set-visibility" {
			t.Fatalf("unexpected backend call %+v", c)
		}
	}
	if m.CountCalls("fly-to", "") != 1 {
		t.Fatal("reset view must work without layers")
	}
}

type failingBackend struct {
	*mapview.Memory
}

func (f failingBackend) SetFilter(layer string, e expr.Node) error {
	if layer == wardsID {
		return errors.New("style mutated")
	}
	return f.Memory.SetFilter(layer, e)
}

func TestFilterFailureSurfacesAsStatus(t *testing.T) {
	doc, src := glasgow()
	m := mapview.NewMemory(doc, src)
	s, err := New(Options{Config: config.Default(), Backend: failingBackend{m}, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())
	m.Ready()
	if snap := s.SetQuarterByIndex(2); snap.Status != StatusFilterFailed {
		t.Fatalf("status=%q", snap.Status)
	}
}

func TestPublishesStateEvents(t *testing.T) {
	doc, src := glasgow()
	m := mapview.NewMemory(doc, src)
	bus := service.NewEventBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	s := newSession(t, config.Default(), m, bus)
	s.Start(context.Background())
	m.Ready()
	<-ch // setup

	s.SetQuarterByIndex(1)
	ev := <-ch
	snap, ok := ev.Payload.(Snapshot)
	if ev.Resource != "map" || ev.Action != "state" || !ok || snap.Quarter != "2019 Q2" {
		t.Fatalf("event=%+v", ev)
	}
	var f []any
	if err := json.Unmarshal(snap.Filter, &f); err != nil || f[0] != "all" {
		t.Fatalf("filter=%s err=%v", snap.Filter, err)
	}
}

func TestStyleHighlightLayerStartsIdle(t *testing.T) {
	doc, src := glasgow()
	doc.Layers = append(doc.Layers, style.Layer{ID: "ward-highlight", Type: style.Line, Source: "wards"})
	m := mapview.NewMemory(doc, src)
	s := newSession(t, config.Default(), m, nil)
	s.Start(context.Background())
	m.Ready()

	if m.CountCalls("add-layer", "ward-highlight") != 0 {
		t.Fatal("existing highlight layer should not be added again")
	}
	if got := m.Filter("ward-highlight"); got == nil || expr.Fingerprint(got) != expr.Fingerprint(expr.False()) {
		t.Fatalf("highlight filter=%v, want false", got)
	}
	if got := renderedIDs(t, m, "ward-highlight"); len(got) != 0 {
		t.Fatalf("highlighted while idle: %v", got)
	}

	m.Emit(mapview.PointerEvent{Kind: mapview.PointerMove, Layer: wardsID, Features: []*geojson.Feature{ward("S1", "2020 Q1", "2 bed", -4.30)}})
	if got := renderedIDs(t, m, "ward-highlight"); len(got) != 0 {
		t.Fatalf("S1 is filtered out of 2019 Q1 but highlighted: %v", got)
	}
	s.SetQuarterByIndex(4)
	if got := renderedIDs(t, m, "ward-highlight"); strings.Join(got, ",") != "S1" {
		t.Fatalf("highlighted=%v, want S1", got)
	}
}

func TestHiddenStopsShowOnFirstToggle(t *testing.T) {
	doc, src := glasgow()
	doc.Layers[2].Layout = &style.Layout{Visibility: "none"}
	m := mapview.NewMemory(doc, src)
	s := newSession(t, config.Default(), m, nil)
	s.Start(context.Background())
	m.Ready()

	if s.Snapshot().StopsVisible {
		t.Fatal("stops declared hidden should start hidden")
	}
	if snap := s.ToggleStops(); !snap.StopsVisible {
		t.Fatal("first toggle should show stops")
	}
	if v, _ := m.Visibility("glasgow_stops"); v != mapview.Visible {
		t.Fatalf("visibility=%s, want visible", v)
	}
}
