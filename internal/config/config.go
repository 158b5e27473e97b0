// Package config loads the map configuration: quarter range, bedroom
// options, dataset field names and the layer hints used by the resolver.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-rentmap/internal/filter"
	"github.com/joeblew999/plat-rentmap/internal/interaction"
	"github.com/joeblew999/plat-rentmap/internal/quarter"
	"github.com/joeblew999/plat-rentmap/internal/resolver"
)

type Quarters struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type Fields struct {
	Period string   `yaml:"period"`
	Beds   string   `yaml:"beds"`
	ID     string   `yaml:"id"`
	Name   []string `yaml:"name"`
}

type BedsEncoding struct {
	Mode   string `yaml:"mode"`
	Format string `yaml:"format"`
}

type Layers struct {
	Wards            string   `yaml:"wards"`
	Stops            string   `yaml:"stops"`
	StopsSourceLayer string   `yaml:"stops_source_layer"`
	WardsVocabulary  []string `yaml:"wards_vocabulary"`
	StopsVocabulary  []string `yaml:"stops_vocabulary"`
	SampleLimit      int      `yaml:"sample_limit"`
}

type Highlight struct {
	ID    string         `yaml:"id"`
	Paint map[string]any `yaml:"paint"`
}

type Home struct {
	Center [2]float64 `yaml:"center"`
	Zoom   float64    `yaml:"zoom"`
}

type Rent struct {
	CSV   string `yaml:"csv"`
	Table string `yaml:"table"`
}

// Map is the YAML map configuration.
type Map struct {
	Quarters     Quarters     `yaml:"quarters"`
	Beds         []int        `yaml:"beds"`
	EmptyBeds    string       `yaml:"empty_beds"`
	Fields       Fields       `yaml:"fields"`
	BedsEncoding BedsEncoding `yaml:"beds_encoding"`
	Layers       Layers       `yaml:"layers"`
	Highlight    Highlight    `yaml:"highlight"`
	Home         Home         `yaml:"home"`
	Rent         Rent         `yaml:"rent"`
	Locale       string       `yaml:"locale"`
}

// Default is the Glasgow ward rent configuration.
func Default() Map {
	return Map{
		Quarters:  Quarters{Start: "2019 Q1", End: "2023 Q4"},
		Beds:      []int{1, 2, 3},
		EmptyBeds: string(filter.EmptyNone),
		Fields: Fields{
			Period: "YEARLY_QUARTER",
			Beds:   "BEDROOMS",
			ID:     "WD23CD",
			Name:   []string{"WD23NM", "WARD"},
		},
		BedsEncoding: BedsEncoding{Mode: string(filter.BedsAuto), Format: "%d bed"},
		Layers: Layers{
			Wards:            "glasgow-wards-rent copy",
			Stops:            "glasgow_stops",
			StopsSourceLayer: "glasgow_stops",
			WardsVocabulary:  []string{"ward", "wards", "rent"},
			StopsVocabulary:  []string{"stop", "stops", "bus"},
			SampleLimit:      50,
		},
		Highlight: Highlight{
			ID:    "ward-highlight",
			Paint: map[string]any{"line-color": "#111", "line-width": 3},
		},
		Home:   Home{Center: [2]float64{-4.2518, 55.8642}, Zoom: 11},
		Rent:   Rent{Table: "rent"},
		Locale: "en",
	}
}

// Load reads path over the defaults. An empty path or a missing file
// yields the defaults.
func Load(path string) (Map, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading map config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing map config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("map config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values the session cannot recover from.
func (m Map) Validate() error {
	var errs []error
	if _, err := m.Axis(); err != nil {
		errs = append(errs, err)
	}
	if m.BedOptions().Empty() {
		errs = append(errs, errors.New("beds: at least one positive bedroom count is required"))
	}
	if _, err := filter.ParseEmptyPolicy(m.EmptyBeds); err != nil {
		errs = append(errs, fmt.Errorf("empty_beds: %w", err))
	}
	if _, err := filter.ParseBedsMode(m.BedsEncoding.Mode); err != nil {
		errs = append(errs, fmt.Errorf("beds_encoding.mode: %w", err))
	}
	if f := m.BedsEncoding.Format; f != "" && !strings.Contains(f, "%d") {
		errs = append(errs, fmt.Errorf("beds_encoding.format %q has no %%d verb", f))
	}
	if m.Fields.Period == "" || m.Fields.Beds == "" || m.Fields.ID == "" {
		errs = append(errs, errors.New("fields: period, beds and id are required"))
	}
	return errors.Join(errs...)
}

// Axis builds the configured quarter axis.
func (m Map) Axis() (quarter.Axis, error) {
	return quarter.Build(m.Quarters.Start, m.Quarters.End)
}

// BedOptions is the normalized default bedroom set.
func (m Map) BedOptions() filter.Beds { return filter.NewBeds(m.Beds...) }

// Policy is the parsed empty-selection policy.
func (m Map) Policy() filter.EmptyPolicy {
	p, _ := filter.ParseEmptyPolicy(m.EmptyBeds)
	return p
}

// Schema is the configured dataset schema; the bedroom mode may still be
// auto until the resolver detects it.
func (m Map) Schema() filter.Schema {
	mode, _ := filter.ParseBedsMode(m.BedsEncoding.Mode)
	return filter.Schema{
		PeriodField: m.Fields.Period,
		BedsField:   m.Fields.Beds,
		IDField:     m.Fields.ID,
		BedsMode:    mode,
		BedsFormat:  m.BedsEncoding.Format,
	}
}

// Resolver is the layer resolver configuration.
func (m Map) Resolver() resolver.Config {
	return resolver.Config{
		WardsHint:        m.Layers.Wards,
		StopsHint:        m.Layers.Stops,
		StopsSourceLayer: m.Layers.StopsSourceLayer,
		WardsVocabulary:  m.Layers.WardsVocabulary,
		StopsVocabulary:  m.Layers.StopsVocabulary,
		HighlightID:      m.Highlight.ID,
		Schema:           m.Schema(),
		SampleLimit:      m.Layers.SampleLimit,
		ProbeTable:       m.Rent.Table,
	}
}

// PopupFields are the attributes shown when a ward is clicked.
func (m Map) PopupFields() interaction.Fields {
	f := interaction.DefaultFields()
	f.Name = m.Fields.Name
	f.Bedrooms = m.Fields.Beds
	f.Period = m.Fields.Period
	return f
}
