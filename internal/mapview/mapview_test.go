package mapview

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-rentmap/internal/expr"
	"github.com/joeblew999/plat-rentmap/internal/style"
)

func testDoc() *style.Document {
	return &style.Document{
		Version: 8,
		Layers: []style.Layer{
			{ID: "background", Type: style.Background},
			{ID: "wards", Type: style.Fill, Source: "wards"},
			{ID: "stops", Type: style.Circle, Source: "stops"},
		},
	}
}

func ward(code string, lon, lat float64, beds string) *geojson.Feature {
	ring := orb.Ring{{lon, lat}, {lon + 0.01, lat}, {lon + 0.01, lat + 0.01}, {lon, lat + 0.01}, {lon, lat}}
	f := geojson.NewFeature(orb.Polygon{ring})
	f.Properties["WD23CD"] = code
	f.Properties["BEDROOMS"] = beds
	return f
}

func testSources() map[string]*geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Append(ward("A", -4.30, 55.85, "1 bed"))
	fc.Append(ward("B", -4.25, 55.86, "2 bed"))
	fc.Append(ward("C", -3.00, 56.50, "2 bed"))
	return map[string]*geojson.FeatureCollection{"wards": fc}
}

func TestMemoryNotReady(t *testing.T) {
	m := NewMemory(testDoc(), testSources())
	if _, err := m.Layers(); !errors.Is(err, ErrStyleNotReady) {
		t.Fatalf("Layers err=%v, want ErrStyleNotReady", err)
	}
	ran := 0
	m.OnStyleReady(func() { ran++ })
	m.Ready()
	m.Ready()
	if ran != 1 {
		t.Fatalf("ready callbacks ran %d times, want 1", ran)
	}
	m.OnStyleReady(func() { ran++ })
	if ran != 2 {
		t.Fatal("callback registered after ready should run immediately")
	}
}

func TestMemoryRenderedCount(t *testing.T) {
	m := NewMemory(testDoc(), testSources())
	m.Ready()

	if n, _ := m.RenderedCount("wards"); n != 3 {
		t.Fatalf("count=%d, want 3", n)
	}
	m.SetViewport(orb.Bound{Min: orb.Point{-4.4, 55.8}, Max: orb.Point{-4.1, 55.95}})
	if n, _ := m.RenderedCount("wards"); n != 2 {
		t.Fatalf("viewport count=%d, want 2", n)
	}
	if err := m.SetFilter("wards", expr.In(expr.Field("BEDROOMS"), "2 bed")); err != nil {
		t.Fatal(err)
	}
	if n, _ := m.RenderedCount("wards"); n != 1 {
		t.Fatalf("filtered count=%d, want 1", n)
	}
	m.SetVisibility("wards", Hidden)
	if n, _ := m.RenderedCount("wards"); n != 0 {
		t.Fatalf("hidden count=%d, want 0", n)
	}
	m.FailCounts(errors.New("boom"))
	if _, err := m.RenderedCount("wards"); err == nil {
		t.Fatal("want error from FailCounts")
	}
}

func TestMemoryAddLayerAndEvents(t *testing.T) {
	m := NewMemory(testDoc(), testSources())
	m.Ready()

	err := m.AddLayer(style.LayerSpec{ID: "hl", Type: style.Line, Source: "wards", Filter: expr.False()}, "stops")
	if err != nil {
		t.Fatal(err)
	}
	layers, _ := m.Layers()
	if layers[2].ID != "hl" {
		t.Fatalf("layer order=%v, want hl before stops", layers)
	}
	if err := m.AddLayer(style.LayerSpec{ID: "hl"}, ""); err == nil {
		t.Fatal("duplicate add should fail")
	}
	if err := m.SetFilter("nope", expr.True()); !errors.Is(err, ErrNoLayer) {
		t.Fatalf("err=%v, want ErrNoLayer", err)
	}

	var got []EventKind
	m.On(PointerMove, "wards", func(ev PointerEvent) { got = append(got, ev.Kind) })
	if n := m.Emit(PointerEvent{Kind: PointerMove, Layer: "wards"}); n != 1 {
		t.Fatalf("handlers run=%d, want 1", n)
	}
	if n := m.Emit(PointerEvent{Kind: PointerMove, Layer: "stops"}); n != 0 {
		t.Fatalf("unscoped handlers run=%d, want 0", n)
	}
	if len(got) != 1 {
		t.Fatalf("events=%v", got)
	}
}

func TestRemoteCommands(t *testing.T) {
	var sent []Command
	r := NewRemote(func(c Command) { sent = append(sent, c) })

	if err := r.SetFilter("wards", expr.True()); !errors.Is(err, ErrNoLayer) {
		t.Fatalf("err=%v, want ErrNoLayer before report", err)
	}
	ready := false
	r.OnStyleReady(func() { ready = true })
	r.Report(StyleReport{
		Layers:   testDoc().Layers,
		Rendered: map[string]int{"wards": 42},
		Samples:  map[string][]map[string]any{"wards": {{"BEDROOMS": "1 bed"}}},
	})
	if !ready {
		t.Fatal("report should fire style-ready")
	}
	if n, err := r.RenderedCount("wards"); err != nil || n != 42 {
		t.Fatalf("count=%d err=%v", n, err)
	}
	if _, err := r.RenderedCount("stops"); err == nil {
		t.Fatal("unreported count should fail")
	}

	r.SetFilter("wards", expr.Eq(expr.Field("WD23CD"), expr.Value("A")))
	r.SetVisibility("stops", Hidden)
	r.FlyTo(Camera{Center: orb.Point{-4.2518, 55.8642}, Zoom: 11})
	if len(sent) != 3 {
		t.Fatalf("sent=%d, want 3", len(sent))
	}
	b, _ := json.Marshal(sent[0])
	if string(b) != `{"op":"set-filter","layer":"wards","filter":["==",["get","WD23CD"],"A"]}` {
		t.Fatalf("json=%s", b)
	}
	if v, _ := r.Visibility("stops"); v != Hidden {
		t.Fatalf("visibility=%s, want none", v)
	}
}

func TestFeatureID(t *testing.T) {
	f := geojson.NewFeature(orb.Point{0, 0})
	f.Properties["WD23CD"] = "S1"
	if FeatureID(f, "WD23CD") != "S1" {
		t.Fatal("want id from property")
	}
	g := geojson.NewFeature(orb.Point{0, 0})
	g.ID = float64(7)
	if FeatureID(g, "WD23CD") != "7" {
		t.Fatalf("FeatureID=%q, want 7", FeatureID(g, "WD23CD"))
	}
	if FeatureID(nil, "WD23CD") != "" {
		t.Fatal("nil feature should have empty id")
	}
}

func TestRemoteReloadReplacesSnapshot(t *testing.T) {
	r := NewRemote(func(Command) {})
	readies, reloads := 0, 0
	r.OnStyleReady(func() { readies++ })
	r.OnReload(func() { reloads++ })

	r.Report(StyleReport{Layers: testDoc().Layers})
	r.AddLayer(style.LayerSpec{ID: "ward-highlight", Type: style.Line, Source: "wards"}, "stops")
	r.SetVisibility("stops", Hidden)

	layers := testDoc().Layers
	layers[1].Layout = &style.Layout{Visibility: "none"}
	r.Report(StyleReport{Layers: layers})
	if readies != 1 || reloads != 1 {
		t.Fatalf("readies=%d reloads=%d, want 1 and 1", readies, reloads)
	}
	if r.HasLayer("ward-highlight") {
		t.Fatal("a reloaded map has no added layers")
	}
	if v, _ := r.Visibility("stops"); v != Visible {
		t.Fatalf("stops=%s, want visible from the new report", v)
	}
	if v, _ := r.Visibility("wards"); v != Hidden {
		t.Fatalf("wards=%s, want none from its layout", v)
	}
}

func TestMemoryDeclaredVisibility(t *testing.T) {
	doc, err := style.Parse([]byte(`{"version":8,"layers":[
		{"id":"wards","type":"fill","source":"wards"},
		{"id":"stops","type":"circle","source":"stops","layout":{"visibility":"none"}}]}`))
	if err != nil {
		t.Fatal(err)
	}
	m := NewMemory(doc, testSources())
	m.Ready()
	if v, _ := m.Visibility("stops"); v != Hidden {
		t.Fatalf("stops=%s, want none", v)
	}
	if v, _ := m.Visibility("wards"); v != Visible {
		t.Fatalf("wards=%s, want visible", v)
	}
	if n, _ := m.RenderedCount("stops"); n != 0 {
		t.Fatalf("hidden layer rendered %d", n)
	}
}
