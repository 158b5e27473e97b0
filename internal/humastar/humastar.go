// Package humastar bridges Huma (REST/OpenAPI) with Datastar (SSE/hypermedia).
//
// Viewer endpoints are ordinary Huma operations returning a
// [huma.StreamResponse]; inside the stream an [SSE] patches rendered
// fragments, syncs signals and dispatches custom events carrying map
// commands:
//
//	func (h *Viewer) Legend(ctx context.Context, _ *humastar.EmptyInput) (*huma.StreamResponse, error) {
//	    return h.Stream(func(sse humastar.SSE) {
//	        sse.Apply(h.Fragment("legend-meta", "#legend-meta", data))
//	    }), nil
//	}
package humastar

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/joeblew999/plat-rentmap/internal/templates"
)

// Handler is an embeddable base for Huma handlers that produce Datastar SSE
// responses.
type Handler struct {
	Renderer *templates.Renderer
}

// Stream returns a Huma StreamResponse that calls fn with a ready SSE helper.
func (h *Handler) Stream(fn func(sse SSE)) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			fn(NewSSE(humaCtx))
		},
	}
}

// Patch is rendered HTML bound for the element matched by Selector.
type Patch struct {
	Selector string
	HTML     string
}

// Fragment renders the named template for selector. A render failure
// becomes an inline error span so one broken fragment does not end the
// stream.
func (h *Handler) Fragment(name, selector string, data any) Patch {
	html, err := h.Renderer.Render(name, data)
	if err != nil {
		html = fmt.Sprintf(`<span class="error">%s: render failed</span>`, name)
	}
	return Patch{Selector: selector, HTML: html}
}

// SSE wraps a Datastar SSE generator.
type SSE struct {
	*datastar.ServerSentEventGenerator
}

// NewSSE creates a Datastar SSE helper from a Huma streaming context.
func NewSSE(ctx huma.Context) SSE {
	r, w := humago.Unwrap(ctx)
	return SSE{datastar.NewSSE(w, r)}
}

// Apply replaces the outer HTML of each patch's target, in order.
func (s SSE) Apply(patches ...Patch) {
	for _, p := range patches {
		s.PatchElements(p.HTML,
			datastar.WithSelector(p.Selector),
			datastar.WithModeOuter(),
		)
	}
}

// Event dispatches a DOM CustomEvent carrying detail on the page.
func (s SSE) Event(name string, detail any) error {
	return s.DispatchCustomEvent(name, detail)
}

// Error sets the error signal shown by the viewer.
func (s SSE) Error(msg string) {
	s.MarshalAndPatchSignals(map[string]any{"error": msg})
}

// Signals sends arbitrary signals to the UI.
func (s SSE) Signals(signals map[string]any) {
	s.MarshalAndPatchSignals(signals)
}

// Signals is the flat JSON object Datastar posts with every action.
type Signals map[string]any

// ParseSignals parses Datastar signals from a raw request body.
func ParseSignals(body []byte) (Signals, error) {
	var signals Signals
	if err := json.Unmarshal(body, &signals); err != nil {
		return nil, err
	}
	return signals, nil
}

// String returns a string signal value, or empty string if not found.
func (s Signals) String(key string) string {
	if str, ok := s[key].(string); ok {
		return str
	}
	return ""
}

// Index returns an integer signal and whether it was present and numeric.
// Range inputs bound with data-bind arrive as strings.
func (s Signals) Index(key string) (int, bool) {
	switch n := s[key].(type) {
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

// Int is Index without the presence flag.
func (s Signals) Int(key string) int {
	i, _ := s.Index(key)
	return i
}

// Bool returns a checkbox signal: true, "true" and "on" are set.
func (s Signals) Bool(key string) bool {
	switch b := s[key].(type) {
	case bool:
		return b
	case string:
		return b == "true" || b == "on"
	}
	return false
}

// Has returns true if the signal key exists (even if zero-valued).
func (s Signals) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// EmptyInput is a shared input struct for handlers with no parameters.
type EmptyInput struct{}

// SignalsInput is an input struct for handlers that receive Datastar signals.
type SignalsInput struct {
	RawBody []byte
}

// MustParse parses signals or returns a Huma 400 error.
func (i *SignalsInput) MustParse() (Signals, error) {
	signals, err := ParseSignals(i.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid request data: " + err.Error())
	}
	return signals, nil
}
