package viewer

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-rentmap/internal/config"
	"github.com/joeblew999/plat-rentmap/internal/mapview"
	"github.com/joeblew999/plat-rentmap/internal/service"
	"github.com/joeblew999/plat-rentmap/internal/session"
	"github.com/joeblew999/plat-rentmap/internal/templates"
)

const wardsID = "glasgow-wards-rent copy"

var styleReport = map[string]any{
	"layers": []map[string]any{
		{"id": "background", "type": "background"},
		{"id": wardsID, "type": "fill", "source": "composite", "source-layer": "wards"},
		{"id": "glasgow_stops", "type": "circle", "source": "composite", "source-layer": "glasgow_stops"},
		{"id": "labels", "type": "symbol", "source": "composite", "source-layer": "wards"},
	},
	"rendered": map[string]int{wardsID: 23},
	"samples":  map[string][]map[string]any{wardsID: {{"BEDROOMS": "2 bed"}}},
}

type fixture struct {
	api     humatest.TestAPI
	session *session.Session
	remote  *mapview.Remote
	events  chan service.Event
}

func setup(t *testing.T) fixture {
	t.Helper()
	bus := service.NewEventBus()
	events := bus.Subscribe()
	t.Cleanup(func() { bus.Unsubscribe(events) })

	remote := mapview.NewRemote(Sender(bus, "default"))
	s, err := session.New(session.Options{Config: config.Default(), Backend: remote, Bus: bus, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())

	r, err := templates.New()
	if err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("viewer test", "1.0.0"))
	NewHandler(s, bus, r, zerolog.Nop()).RegisterRoutes(api)
	NewCallbacks(remote, zerolog.Nop()).RegisterRoutes(api)
	return fixture{api: humatest.Wrap(t, api), session: s, remote: remote, events: events}
}

// commands drains the bus and returns the map commands seen so far.
func (f fixture) commands() []mapview.Command {
	var cmds []mapview.Command
	for {
		select {
		case ev := <-f.events:
			if cmd, ok := ev.Payload.(mapview.Command); ok && ev.Action == "command" {
				cmds = append(cmds, cmd)
			}
		default:
			return cmds
		}
	}
}

func ops(cmds []mapview.Command) []string {
	var out []string
	for _, c := range cmds {
		out = append(out, c.Op+":"+c.Layer)
	}
	return out
}

func TestStyleReadyRunsSetup(t *testing.T) {
	f := setup(t)
	if f.session.Snapshot().Ready {
		t.Fatal("ready before style report")
	}
	resp := f.api.Post("/api/v1/viewer/style-ready", styleReport)
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body.String())
	}
	snap := f.session.Snapshot()
	if !snap.Ready || snap.WardsLayer != wardsID || snap.StopsLayer != "glasgow_stops" {
		t.Fatalf("snapshot=%+v", snap)
	}
	if snap.BedsMode != "string" {
		t.Fatalf("bedsMode=%s, want string from samples", snap.BedsMode)
	}
	cmds := f.commands()
	want := []string{"add-layer:ward-highlight", "set-filter:" + wardsID}
	if got := ops(cmds); !slices.Equal(got, want) {
		t.Fatalf("commands=%v, want %v", got, want)
	}
	if cmds[0].Before != "glasgow_stops" {
		t.Fatalf("highlight inserted before %q, want glasgow_stops", cmds[0].Before)
	}

}

func TestReloadRestoresMapState(t *testing.T) {
	f := setup(t)
	f.api.Post("/api/v1/viewer/style-ready", styleReport)
	res := f.session.Resolution()
	f.session.SetQuarterByIndex(4)
	f.session.ToggleStops()
	f.commands()

	// A reloaded page starts from the style again.
	f.api.Post("/api/v1/viewer/style-ready", styleReport)
	cmds := f.commands()
	want := []string{"add-layer:ward-highlight", "set-filter:" + wardsID, "set-visibility:glasgow_stops"}
	if got := ops(cmds); !slices.Equal(got, want) {
		t.Fatalf("reload commands=%v, want %v", got, want)
	}
	filters, err := f.session.Filters()
	if err != nil {
		t.Fatal(err)
	}
	if got := mustJSON(t, cmds[1].Filter); got != string(filters.Filter) {
		t.Fatalf("reload filter=%s, want %s", got, filters.Filter)
	}
	if cmds[2].Visibility != mapview.Hidden {
		t.Fatalf("stops visibility=%s, want none", cmds[2].Visibility)
	}
	if f.session.Resolution() != res {
		t.Fatal("reload should keep the cached resolution")
	}

	// The fresh map gets the next change too.
	f.session.SetQuarterByIndex(5)
	if got := ops(f.commands()); !slices.Equal(got, []string{"set-filter:" + wardsID}) {
		t.Fatalf("after reload commands=%v", got)
	}
}

func TestStyleReportSeedsVisibility(t *testing.T) {
	f := setup(t)
	report := map[string]any{
		"layers": []map[string]any{
			{"id": wardsID, "type": "fill", "source": "composite", "source-layer": "wards"},
			{"id": "glasgow_stops", "type": "circle", "source": "composite", "source-layer": "glasgow_stops",
				"layout": map[string]any{"visibility": "none"}},
		},
	}
	f.api.Post("/api/v1/viewer/style-ready", report)
	if f.session.Snapshot().StopsVisible {
		t.Fatal("stops declared hidden should start hidden")
	}
	f.commands()
	if snap := f.session.ToggleStops(); !snap.StopsVisible {
		t.Fatal("first toggle should show the hidden stops layer")
	}
	cmds := f.commands()
	if len(cmds) != 1 || cmds[0].Visibility != mapview.Visible {
		t.Fatalf("toggle commands=%+v", cmds)
	}
}

func TestStyleReadyRequiresLayers(t *testing.T) {
	f := setup(t)
	resp := f.api.Post("/api/v1/viewer/style-ready", map[string]any{"layers": []any{}})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", resp.Code)
	}
}

func TestPointerHoverAndClick(t *testing.T) {
	f := setup(t)
	f.api.Post("/api/v1/viewer/style-ready", styleReport)
	f.commands()

	resp := f.api.Post("/api/v1/viewer/pointer", map[string]any{
		"kind": "move", "layer": wardsID,
		"features": []map[string]any{{"properties": map[string]any{"WD23CD": "S13002781"}}},
	})
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"handled":1`) {
		t.Fatalf("move: status=%d body=%s", resp.Code, resp.Body.String())
	}
	if got := f.session.Snapshot().Hovered; got != "S13002781" {
		t.Fatalf("hovered=%q", got)
	}
	if got := ops(f.commands()); !slices.Equal(got, []string{"set-filter:ward-highlight"}) {
		t.Fatalf("move commands=%v", got)
	}

	f.api.Post("/api/v1/viewer/pointer", map[string]any{
		"kind": "click", "layer": wardsID, "lng": -4.25, "lat": 55.86,
		"features": []map[string]any{{"id": 7, "properties": map[string]any{"WD23NM": "Anderston", "median": 1234}}},
	})
	cmds := f.commands()
	if len(cmds) != 1 || cmds[0].Op != mapview.OpPopup {
		t.Fatalf("click commands=%v", ops(cmds))
	}
	if html := cmds[0].Popup.HTML; !strings.Contains(html, "Anderston") || !strings.Contains(html, "1,234") {
		t.Fatalf("popup=%s", html)
	}

	f.api.Post("/api/v1/viewer/pointer", map[string]any{"kind": "leave", "layer": wardsID})
	if got := f.session.Snapshot().Highlight; got != "idle" {
		t.Fatalf("highlight=%s after leave", got)
	}
}

func TestQuarterSignals(t *testing.T) {
	f := setup(t)
	resp := f.api.Post("/api/v1/viewer/quarter", map[string]any{"qindex": "4"})
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d", resp.Code)
	}
	if got := f.session.Snapshot().Quarter; got != "2020 Q1" {
		t.Fatalf("quarter=%s, want 2020 Q1", got)
	}
	body := resp.Body.String()
	if !strings.Contains(body, `id="q-label"`) || !strings.Contains(body, "2020 Q1") {
		t.Fatalf("body=%s", body)
	}

	resp = f.api.Post("/api/v1/viewer/quarter", map[string]any{})
	if !strings.Contains(resp.Body.String(), "qindex signal is required") {
		t.Fatalf("body=%s", resp.Body.String())
	}
}

func TestBedsSignals(t *testing.T) {
	f := setup(t)
	f.api.Post("/api/v1/viewer/beds", map[string]any{"bed1": false, "bed2": true, "bed3": true})
	if got := f.session.Snapshot().Beds; !slices.Equal(got, []int{2, 3}) {
		t.Fatalf("beds=%v, want [2 3]", got)
	}

	resp := f.api.Post("/api/v1/viewer/beds", map[string]any{"action": "clear"})
	snap := f.session.Snapshot()
	if len(snap.Beds) != 0 || !strings.Contains(snap.Legend, "Bed: None") {
		t.Fatalf("after clear: %+v", snap)
	}
	if !strings.Contains(resp.Body.String(), `"bed2":false`) {
		t.Fatalf("signals not synced: %s", resp.Body.String())
	}

	f.api.Post("/api/v1/viewer/beds", map[string]any{"action": "all"})
	if got := f.session.Snapshot().Beds; !slices.Equal(got, []int{1, 2, 3}) {
		t.Fatalf("beds=%v after select all", got)
	}

	resp = f.api.Post("/api/v1/viewer/beds", map[string]any{"action": "bogus"})
	if !strings.Contains(resp.Body.String(), "error") {
		t.Fatalf("body=%s", resp.Body.String())
	}
}

func TestControls(t *testing.T) {
	f := setup(t)
	resp := f.api.Post("/api/v1/viewer/controls/legend")
	if f.session.Snapshot().LegendVisible {
		t.Fatal("legend still visible")
	}
	if !strings.Contains(resp.Body.String(), "display:none") {
		t.Fatalf("body=%s", resp.Body.String())
	}

	f.api.Post("/api/v1/viewer/style-ready", styleReport)
	f.commands()
	f.api.Post("/api/v1/viewer/controls/stops")
	if f.session.Snapshot().StopsVisible {
		t.Fatal("stops still visible")
	}
	f.api.Post("/api/v1/viewer/controls/reset")
	cmds := f.commands()
	if got := ops(cmds); !slices.Equal(got, []string{"set-visibility:glasgow_stops", "fly-to:"}) {
		t.Fatalf("commands=%v", got)
	}

	if resp := f.api.Post("/api/v1/viewer/controls/zoom"); resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d, want 422 for unknown control", resp.Code)
	}
}

func TestHeadlessCallbacks(t *testing.T) {
	_, api := humatest.New(t)
	NewCallbacks(nil, zerolog.Nop()).RegisterRoutes(api)
	if resp := api.Post("/api/v1/viewer/style-ready", styleReport); resp.Code != http.StatusConflict {
		t.Fatalf("status=%d, want 409", resp.Code)
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
