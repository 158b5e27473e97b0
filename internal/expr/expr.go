// Package expr is a small predicate tree over feature properties.
//
// Nodes marshal to Mapbox GL expression arrays so a browser map can apply
// them unchanged, and evaluate locally with the same semantics so the
// in-memory backend and tests can check which features a filter keeps.
package expr

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Op names a Mapbox GL expression operator.
type Op string

const (
	OpGet      Op = "get"
	OpEq       Op = "=="
	OpIn       Op = "in"
	OpAll      Op = "all"
	OpToNumber Op = "to-number"
	OpLiteral  Op = "literal"
)

// Node is one predicate tree node. Eval returns the node's value for a
// feature's properties; boolean nodes return a bool.
type Node interface {
	Eval(props map[string]any) any
	json.Marshaler
}

// Get reads a feature property.
type Get struct {
	Field string
}

func (g Get) Eval(props map[string]any) any {
	if props == nil {
		return nil
	}
	return normalize(props[g.Field])
}

func (g Get) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{OpGet, g.Field})
}

// Lit is a scalar literal (string, number or bool).
type Lit struct {
	Value any
}

func (l Lit) Eval(map[string]any) any { return normalize(l.Value) }

func (l Lit) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Value)
}

// Compare is an equality test.
type Compare struct {
	Op    Op
	Left  Node
	Right Node
}

func (c Compare) Eval(props map[string]any) any {
	l, r := c.Left.Eval(props), c.Right.Eval(props)
	if l == nil || r == nil {
		// null only equals null
		return l == nil && r == nil
	}
	return equal(l, r)
}

func (c Compare) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.Op, c.Left, c.Right})
}

// Membership tests whether Needle equals any element of Haystack.
type Membership struct {
	Needle   Node
	Haystack []any
}

func (m Membership) Eval(props map[string]any) any {
	v := m.Needle.Eval(props)
	if v == nil {
		return false
	}
	for _, h := range m.Haystack {
		if equal(v, normalize(h)) {
			return true
		}
	}
	return false
}

func (m Membership) MarshalJSON() ([]byte, error) {
	hay := m.Haystack
	if hay == nil {
		hay = []any{}
	}
	return json.Marshal([]any{OpIn, m.Needle, []any{OpLiteral, hay}})
}

// Conjunction is true when every term is true. An empty conjunction is true.
type Conjunction struct {
	Terms []Node
}

func (a Conjunction) Eval(props map[string]any) any {
	for _, t := range a.Terms {
		if b, ok := t.Eval(props).(bool); !ok || !b {
			return false
		}
	}
	return true
}

func (a Conjunction) MarshalJSON() ([]byte, error) {
	out := make([]any, 0, len(a.Terms)+1)
	out = append(out, OpAll)
	for _, t := range a.Terms {
		out = append(out, t)
	}
	return json.Marshal(out)
}

// Number coerces its operand to a number; nil when it cannot.
type Number struct {
	X Node
}

func (n Number) Eval(props map[string]any) any {
	switch v := n.X.Eval(props).(type) {
	case float64:
		return v
	case bool:
		if v {
			return float64(1)
		}
		return float64(0)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		return f
	}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{OpToNumber, n.X})
}

// Constructors.

func Field(name string) Node { return Get{Field: name} }
func Value(v any) Node { return Lit{Value: v} }
func Eq(l, r Node) Node { return Compare{Op: OpEq, Left: l, Right: r} }
func In(x Node, vals ...any) Node { return Membership{Needle: x, Haystack: vals} }
func All(terms ...Node) Node { return Conjunction{Terms: terms} }
func ToNumber(x Node) Node { return Number{X: x} }

// False matches no feature.
func False() Node { return Lit{Value: false} }

// True matches every feature.
func True() Node { return Lit{Value: true} }

// Matches evaluates n as a predicate.
func Matches(n Node, props map[string]any) bool {
	if n == nil {
		return true
	}
	b, ok := n.Eval(props).(bool)
	return ok && b
}

// Fingerprint hashes the JSON form of n.
func Fingerprint(n Node) uint64 {
	if n == nil {
		return 0
	}
	b, err := json.Marshal(n)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(b)
}

// Equal reports whether a and b have the same JSON form.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return Fingerprint(a) == Fingerprint(b)
}

// normalize folds Go numeric types onto float64 so comparisons agree with
// JSON-decoded properties.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	}
	return v
}

func equal(a, b any) bool {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}
