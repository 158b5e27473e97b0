package templates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderPopupEscapes(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatal(err)
	}
	html, err := r.Render("popup", Popup{Name: "Partick <East>", Bedrooms: "2 bed", Quarter: "2020 Q1", Median: "1,050", Mean: "N/A"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, "Partick &lt;East&gt;") {
		t.Fatalf("name not escaped: %s", html)
	}
	if !strings.Contains(html, "<b>Median rent</b>: 1,050") {
		t.Fatalf("median missing: %s", html)
	}
}

func TestRenderLegendHidden(t *testing.T) {
	r, _ := New()
	html := r.MustRender("legend-meta", Legend{Text: "Quarter: 2019 Q1, Bed: 1+2+3"})
	if !strings.Contains(html, `style="display:none"`) {
		t.Fatalf("hidden legend should carry display:none: %s", html)
	}
}

func TestOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "status.html"), []byte(`{{define "status"}}<p id="status">{{.Message}}!</p>{{end}}`), 0644); err != nil {
		t.Fatal(err)
	}
	r, err := NewWithOverrides(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := r.MustRender("status", Status{Message: "ok"}); got != `<p id="status">ok!</p>` {
		t.Fatalf("status=%q", got)
	}
	if _, err := r.Render("popup", Popup{}); err != nil {
		t.Fatalf("built-in fragments should survive overrides: %v", err)
	}

	if _, err := NewWithOverrides(filepath.Join(dir, "missing")); err != nil {
		t.Fatalf("missing dir should be ignored: %v", err)
	}
}
