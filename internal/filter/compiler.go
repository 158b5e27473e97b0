package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joeblew999/plat-rentmap/internal/expr"
)

// BedsMode is how the dataset encodes the bedroom field.
type BedsMode string

const (
	BedsAuto    BedsMode = "auto"
	BedsString  BedsMode = "string"  // "2 bed"
	BedsNumeric BedsMode = "numeric" // 2 or "2"
)

// ParseBedsMode maps a config value to a mode. "" means BedsAuto.
func ParseBedsMode(s string) (BedsMode, error) {
	switch BedsMode(s) {
	case "", BedsAuto:
		return BedsAuto, nil
	case BedsString, BedsNumeric:
		return BedsMode(s), nil
	}
	return "", fmt.Errorf("unknown bedroom encoding %q", s)
}

// Schema names the attribute fields a dataset uses and how bedrooms are
// encoded. It is detected once when the thematic layer is resolved.
type Schema struct {
	PeriodField string
	BedsField   string
	IDField     string
	BedsMode    BedsMode
	BedsFormat  string // label format for BedsString, e.g. "%d bed"
}

// DefaultSchema matches the Glasgow ward rent tileset.
func DefaultSchema() Schema {
	return Schema{
		PeriodField: "YEARLY_QUARTER",
		BedsField:   "BEDROOMS",
		IDField:     "WD23CD",
		BedsMode:    BedsString,
		BedsFormat:  "%d bed",
	}
}

// DetectBedsMode inspects sampled feature properties. It returns BedsAuto
// when no sample carries the field.
func DetectBedsMode(samples []map[string]any, field string) BedsMode {
	seen := false
	for _, props := range samples {
		v, ok := props[field]
		if !ok || v == nil {
			continue
		}
		seen = true
		switch val := v.(type) {
		case string:
			if _, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err != nil {
				return BedsString
			}
		case bool:
			return BedsString
		}
	}
	if !seen {
		return BedsAuto
	}
	return BedsNumeric
}

// Compiler turns a State into a predicate. It is pure: the same state
// always yields a structurally identical expression.
type Compiler struct {
	schema Schema
}

// NewCompiler returns a compiler for schema. An undecided bedroom mode
// compiles as BedsString.
func NewCompiler(schema Schema) *Compiler {
	if schema.BedsMode == "" || schema.BedsMode == BedsAuto {
		schema.BedsMode = BedsString
	}
	if schema.BedsFormat == "" {
		schema.BedsFormat = "%d bed"
	}
	return &Compiler{schema: schema}
}

// Schema returns the schema the compiler was built with.
func (c *Compiler) Schema() Schema { return c.schema }

// Compile returns period-match AND bedroom-membership.
func (c *Compiler) Compile(s *State) expr.Node {
	return expr.All(c.Period(s.Quarter().String()), c.Bedrooms(s.Beds()))
}

// Period matches the period field against label with and without its
// internal whitespace, so "2020 Q1" and "2020Q1" are both accepted. Map
// expressions cannot strip whitespace from a stored value, so other
// spacings of the stored field do not match.
func (c *Compiler) Period(label string) expr.Node {
	canonical := strings.Join(strings.Fields(label), " ")
	compact := strings.Join(strings.Fields(label), "")
	if canonical == compact {
		return expr.In(expr.Field(c.schema.PeriodField), canonical)
	}
	return expr.In(expr.Field(c.schema.PeriodField), canonical, compact)
}

// Bedrooms tests membership in beds. An empty selection never matches.
func (c *Compiler) Bedrooms(beds Beds) expr.Node {
	if beds.Empty() {
		return expr.False()
	}
	field := expr.Field(c.schema.BedsField)
	if c.schema.BedsMode == BedsNumeric {
		vals := make([]any, len(beds))
		for i, n := range beds {
			vals[i] = n
		}
		return expr.In(expr.ToNumber(field), vals...)
	}
	labels := beds.Labels(c.schema.BedsFormat)
	vals := make([]any, len(labels))
	for i, l := range labels {
		vals[i] = l
	}
	return expr.In(field, vals...)
}
