// Package resolver finds the thematic ward layer and the transit stops
// layer in a live style without relying on one fixed layer id.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-rentmap/internal/filter"
	"github.com/joeblew999/plat-rentmap/internal/mapview"
	"github.com/joeblew999/plat-rentmap/internal/style"
)

// Role is what a resolved layer is used for.
type Role string

const (
	RoleWards Role = "wards"
	RoleStops Role = "stops"
)

// Method records which step of the fallback chain matched.
type Method string

const (
	ByHint          Method = "hint"
	BySourceLayer   Method = "source-layer"
	ByVocabulary    Method = "vocabulary"
	ByRenderedCount Method = "rendered-count"
	ByDeclaredOrder Method = "declared-order"
	Unresolved      Method = "unresolved"
)

// ConfigurationError means the thematic layer could not be found. The
// session keeps running with filters, highlight and popups disabled.
type ConfigurationError struct {
	Hint   string
	Layers int
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("thematic layer not found (id %q, %d style layers searched)", e.Hint, e.Layers)
}

// AmbiguityError means no stops layer could be found.
type AmbiguityError struct {
	Hint        string
	SourceLayer string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("stops layer not found (id %q, source-layer %q)", e.Hint, e.SourceLayer)
}

// ColumnProber reports a column's SQL type in the rent statistics store.
type ColumnProber interface {
	ColumnType(ctx context.Context, table, column string) (string, error)
}

// Config drives the fallback chain.
type Config struct {
	WardsHint        string
	StopsHint        string
	StopsSourceLayer string
	WardsVocabulary  []string
	StopsVocabulary  []string
	// HighlightID is the overlay this system adds; it is never a candidate.
	HighlightID string
	Schema      filter.Schema
	SampleLimit int
	// ProbeTable is the table consulted by the ColumnProber.
	ProbeTable string
}

// DefaultConfig matches the Glasgow rent style.
func DefaultConfig() Config {
	return Config{
		WardsHint:        "glasgow-wards-rent copy",
		StopsHint:        "glasgow_stops",
		StopsSourceLayer: "glasgow_stops",
		WardsVocabulary:  []string{"ward", "wards", "rent"},
		StopsVocabulary:  []string{"stop", "stops", "bus"},
		HighlightID:      "ward-highlight",
		Schema:           filter.DefaultSchema(),
		SampleLimit:      50,
		ProbeTable:       "rent",
	}
}

// Resolution is the cached outcome of one resolution pass.
type Resolution struct {
	Wards    *style.Layer
	WardsBy  Method
	WardsErr error

	Stops    *style.Layer
	StopsBy  Method
	StopsErr error

	Schema   filter.Schema
	SchemaBy string
}

// Err joins the per-role errors.
func (r *Resolution) Err() error {
	if r == nil {
		return nil
	}
	return errors.Join(r.WardsErr, r.StopsErr)
}

// Resolver runs the chain once and caches the result until Invalidate.
type Resolver struct {
	cfg    Config
	prober ColumnProber
	log    zerolog.Logger

	mu     sync.Mutex
	cached *Resolution
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithProber adds the DuckDB column-type step to schema detection.
func WithProber(p ColumnProber) Option {
	return func(r *Resolver) { r.prober = p }
}

// WithLogger sets the resolver's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

func New(cfg Config, opts ...Option) *Resolver {
	r := &Resolver{cfg: cfg, log: zerolog.Nop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Cached returns the last resolution, or nil.
func (r *Resolver) Cached() *Resolution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cached
}

// Invalidate drops the cached resolution so the next Resolve re-runs.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}

// Resolve returns the cached resolution or runs the chain against b. The
// only error is a style that has not loaded yet; missing layers are
// reported inside the Resolution.
func (r *Resolver) Resolve(ctx context.Context, b mapview.Backend) (*Resolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil {
		return r.cached, nil
	}
	layers, err := b.Layers()
	if err != nil {
		return nil, fmt.Errorf("resolve layers: %w", err)
	}
	layers = r.exclude(layers)

	res := &Resolution{Schema: r.cfg.Schema}
	res.Wards, res.WardsBy, res.WardsErr = r.wards(b, layers)
	res.Stops, res.StopsBy, res.StopsErr = r.stops(layers)
	res.Schema, res.SchemaBy = r.schema(ctx, b, res.Wards)

	ev := r.log.Info()
	if res.WardsErr != nil {
		ev = r.log.Error().Err(res.WardsErr)
	}
	ev.Str("wards_by", string(res.WardsBy)).
		Str("stops_by", string(res.StopsBy)).
		Str("beds_mode", string(res.Schema.BedsMode)).
		Str("schema_by", res.SchemaBy).
		Msg("layers resolved")
	if res.StopsErr != nil {
		r.log.Warn().Err(res.StopsErr).Msg("stops toggle disabled")
	}

	r.cached = res
	return res, nil
}

func (r *Resolver) exclude(layers []style.Layer) []style.Layer {
	out := make([]style.Layer, 0, len(layers))
	for _, l := range layers {
		if r.cfg.HighlightID != "" && l.ID == r.cfg.HighlightID {
			continue
		}
		out = append(out, l)
	}
	return out
}

var (
	wardTypes = []style.GeometryType{style.Fill, style.Line}
	stopTypes = []style.GeometryType{style.Circle, style.Symbol}
)

func (r *Resolver) wards(b mapview.Backend, layers []style.Layer) (*style.Layer, Method, error) {
	if l := byID(layers, r.cfg.WardsHint, wardTypes); l != nil {
		return l, ByHint, nil
	}
	cands := matching(layers, r.cfg.WardsVocabulary, wardTypes)
	if len(cands) == 0 {
		return nil, Unresolved, &ConfigurationError{Hint: r.cfg.WardsHint, Layers: len(layers)}
	}
	// A fill layer is the thematic layer whenever one matches; outlines
	// are only used when the style has no fill.
	if fills := ofType(cands, style.Fill); len(fills) > 0 {
		cands = fills
	}
	if len(cands) == 1 {
		return &cands[0], ByVocabulary, nil
	}
	// Largest live count wins; the first declared layer wins a tie.
	best, bestN, tie := 0, -1, false
	for i, l := range cands {
		n, err := b.RenderedCount(l.ID)
		if err != nil {
			r.log.Debug().Err(err).Str("layer", l.ID).Msg("rendered count unavailable")
			return &cands[0], ByDeclaredOrder, nil
		}
		switch {
		case n > bestN:
			best, bestN, tie = i, n, false
		case n == bestN:
			tie = true
		}
	}
	if tie {
		return &cands[best], ByDeclaredOrder, nil
	}
	return &cands[best], ByRenderedCount, nil
}

func (r *Resolver) stops(layers []style.Layer) (*style.Layer, Method, error) {
	// The hinted id is accepted whatever its type.
	if l := byID(layers, r.cfg.StopsHint, nil); l != nil {
		return l, ByHint, nil
	}
	if sl := r.cfg.StopsSourceLayer; sl != "" {
		for i, l := range layers {
			if l.SourceLayer == sl && allowed(l.Type, stopTypes) {
				return &layers[i], BySourceLayer, nil
			}
		}
	}
	if cands := matching(layers, r.cfg.StopsVocabulary, stopTypes); len(cands) > 0 {
		return &cands[0], ByVocabulary, nil
	}
	return nil, Unresolved, &AmbiguityError{Hint: r.cfg.StopsHint, SourceLayer: r.cfg.StopsSourceLayer}
}

func (r *Resolver) schema(ctx context.Context, b mapview.Backend, wards *style.Layer) (filter.Schema, string) {
	s := r.cfg.Schema
	if s.BedsMode == filter.BedsString || s.BedsMode == filter.BedsNumeric {
		return s, "config"
	}
	if wards != nil {
		samples, err := b.SampleProperties(wards.ID, r.cfg.SampleLimit)
		if err == nil {
			if m := filter.DetectBedsMode(samples, s.BedsField); m != filter.BedsAuto {
				s.BedsMode = m
				return s, "samples"
			}
		}
	}
	if r.prober != nil {
		typ, err := r.prober.ColumnType(ctx, r.cfg.ProbeTable, s.BedsField)
		if err == nil {
			if m := modeForColumn(typ); m != filter.BedsAuto {
				s.BedsMode = m
				return s, "column"
			}
		} else {
			r.log.Debug().Err(err).Str("column", s.BedsField).Msg("column probe failed")
		}
	}
	s.BedsMode = filter.BedsString
	return s, "default"
}

func modeForColumn(typ string) filter.BedsMode {
	t := strings.ToUpper(strings.TrimSpace(typ))
	switch {
	case t == "":
		return filter.BedsAuto
	case strings.Contains(t, "CHAR"), t == "TEXT", t == "STRING":
		return filter.BedsString
	case strings.Contains(t, "INT"), strings.HasPrefix(t, "DECIMAL"),
		t == "DOUBLE", t == "FLOAT", t == "REAL", t == "NUMERIC":
		return filter.BedsNumeric
	}
	return filter.BedsAuto
}

func byID(layers []style.Layer, id string, types []style.GeometryType) *style.Layer {
	if id == "" {
		return nil
	}
	for i, l := range layers {
		if l.ID == id && (types == nil || allowed(l.Type, types)) {
			return &layers[i]
		}
	}
	return nil
}

// matching keeps layers of an allowed type whose id or source-layer
// contains a vocabulary term, in declared order.
func matching(layers []style.Layer, vocab []string, types []style.GeometryType) []style.Layer {
	var out []style.Layer
	for _, l := range layers {
		if !allowed(l.Type, types) {
			continue
		}
		id, sl := strings.ToLower(l.ID), strings.ToLower(l.SourceLayer)
		for _, term := range vocab {
			term = strings.ToLower(term)
			if term != "" && (strings.Contains(id, term) || strings.Contains(sl, term)) {
				out = append(out, l)
				break
			}
		}
	}
	return out
}

func ofType(layers []style.Layer, t style.GeometryType) []style.Layer {
	var out []style.Layer
	for _, l := range layers {
		if l.Type == t {
			out = append(out, l)
		}
	}
	return out
}

func allowed(t style.GeometryType, types []style.GeometryType) bool {
	for _, a := range types {
		if t == a {
			return true
		}
	}
	return false
}
