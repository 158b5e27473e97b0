// Package templates renders the HTML fragments patched into the viewer and
// shown in map popups.
package templates

import (
	"bytes"
	"embed"
	"html/template"
	"path/filepath"
	"sync"
)

//go:embed fragments/*.html
var fragments embed.FS

// funcMap provides common template functions.
var funcMap = template.FuncMap{
	// dict creates a map from key-value pairs, useful for passing multiple values to nested templates
	"dict": func(values ...any) map[string]any {
		if len(values)%2 != 0 {
			return nil
		}
		m := make(map[string]any, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				continue
			}
			m[key] = values[i+1]
		}
		return m
	},
}

// Renderer manages HTML fragment templates.
type Renderer struct {
	templates *template.Template
	mu        sync.RWMutex
}

// New returns a renderer over the built-in fragments.
func New() (*Renderer, error) {
	tmpl, err := template.New("").Funcs(funcMap).ParseFS(fragments, "fragments/*.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl}, nil
}

// NewWithOverrides returns a renderer over the built-in fragments, with any
// *.html in dir parsed on top so same-named definitions replace them.
// A missing or empty dir is not an error.
func NewWithOverrides(dir string) (*Renderer, error) {
	r, err := New()
	if err != nil {
		return nil, err
	}
	if err := r.Reload(dir); err != nil {
		return nil, err
	}
	return r, nil
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToBuffer(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.templates.ExecuteTemplate(buf, name, data)
}

// MustRender renders a template and panics on error.
// Use only when you're certain the template exists.
func (r *Renderer) MustRender(name string, data any) string {
	s, err := r.Render(name, data)
	if err != nil {
		panic(err)
	}
	return s
}

// Reload re-parses the built-in fragments plus overrides from dir (useful
// for dev hot-reload).
func (r *Renderer) Reload(dir string) error {
	tmpl, err := template.New("").Funcs(funcMap).ParseFS(fragments, "fragments/*.html")
	if err != nil {
		return err
	}
	if dir != "" {
		matches, _ := filepath.Glob(filepath.Join(dir, "*.html"))
		if len(matches) > 0 {
			if tmpl, err = tmpl.ParseFiles(matches...); err != nil {
				return err
			}
		}
	}

	r.mu.Lock()
	r.templates = tmpl
	r.mu.Unlock()

	return nil
}

// Popup is the data for the "popup" fragment.
type Popup struct {
	Name     string
	Bedrooms string
	Quarter  string
	Median   string
	Mean     string
	Count    string
	Min      string
	Max      string
}

// Legend is the data for the "legend-meta" fragment.
type Legend struct {
	Text    string
	Visible bool
}

// Status is the data for the "status" fragment.
type Status struct {
	Message string
}

// QuarterLabel is the data for the "q-label" fragment.
type QuarterLabel struct {
	Index int
	Label string
}
