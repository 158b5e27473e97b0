package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-rentmap/internal/config"
	"github.com/joeblew999/plat-rentmap/internal/mapview"
	"github.com/joeblew999/plat-rentmap/internal/resolver"
	"github.com/joeblew999/plat-rentmap/internal/service"
	"github.com/joeblew999/plat-rentmap/internal/style"
)

type roleReport struct {
	Layer       string `json:"layer,omitempty" yaml:"layer,omitempty"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	SourceLayer string `json:"sourceLayer,omitempty" yaml:"source_layer,omitempty"`
	By          string `json:"by" yaml:"by"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}

type schemaReport struct {
	Period   string `json:"period" yaml:"period"`
	Beds     string `json:"beds" yaml:"beds"`
	ID       string `json:"id" yaml:"id"`
	BedsMode string `json:"bedsMode" yaml:"beds_mode"`
	By       string `json:"by" yaml:"by"`
}

type resolveReport struct {
	Style  string       `json:"style" yaml:"style"`
	Layers int          `json:"layers" yaml:"layers"`
	Wards  roleReport   `json:"wards" yaml:"wards"`
	Stops  roleReport   `json:"stops" yaml:"stops"`
	Schema schemaReport `json:"schema" yaml:"schema"`
}

// OK reports whether both layers were found.
func (r *resolveReport) OK() bool { return r.Wards.Error == "" && r.Stops.Error == "" }

func role(l *style.Layer, by resolver.Method, err error) roleReport {
	r := roleReport{By: string(by)}
	if l != nil {
		r.Layer, r.Type, r.SourceLayer = l.ID, string(l.Type), l.SourceLayer
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// resolveStyle runs the layer resolver against a style document on an
// in-memory map. GeoJSON sources found in the data directory feed schema
// detection; missing ones only cost the sample-based step.
func resolveStyle(ctx context.Context, path string, opts *Options, log zerolog.Logger) (*resolveReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	doc, err := style.Load(path)
	if err != nil {
		return nil, err
	}
	sources, err := service.NewSourceService(opts.DataDir).ForStyle(doc)
	if err != nil {
		log.Warn().Err(err).Msg("style sources not loaded")
		sources = nil
	}

	m := mapview.NewMemory(doc, sources)
	m.Ready()
	res, err := resolver.New(cfg.Resolver(), resolver.WithLogger(log)).Resolve(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	return &resolveReport{
		Style:  path,
		Layers: len(doc.Layers),
		Wards:  role(res.Wards, res.WardsBy, res.WardsErr),
		Stops:  role(res.Stops, res.StopsBy, res.StopsErr),
		Schema: schemaReport{
			Period:   res.Schema.PeriodField,
			Beds:     res.Schema.BedsField,
			ID:       res.Schema.IDField,
			BedsMode: string(res.Schema.BedsMode),
			By:       res.SchemaBy,
		},
	}, nil
}
