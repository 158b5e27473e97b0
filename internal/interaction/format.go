package interaction

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Missing is rendered for absent attribute values.
const Missing = "N/A"

// Formatter renders attribute values for popups.
type Formatter struct {
	p *message.Printer
}

// NewFormatter returns a formatter grouping digits for locale. An
// unparseable locale falls back to English.
func NewFormatter(locale string) Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return Formatter{p: message.NewPrinter(tag)}
}

// Number formats v with locale thousands separators and at most three
// fraction digits. nil and blank strings give Missing; strings that are
// not numbers are returned verbatim.
func (f Formatter) Number(v any) string {
	x, ok, raw := toFloat(v)
	switch {
	case raw == "" && !ok:
		return Missing
	case !ok:
		return raw
	case math.IsNaN(x) || math.IsInf(x, 0):
		return raw
	case x == math.Trunc(x) && math.Abs(x) < 1e15:
		return f.p.Sprintf("%d", int64(x))
	}
	return f.p.Sprint(number.Decimal(x, number.MaxFractionDigits(3)))
}

// Raw renders v as-is, or Missing when absent.
func (f Formatter) Raw(v any) string {
	switch val := v.(type) {
	case nil:
		return Missing
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// toFloat reports v as a number when it is one or parses as one. raw is
// the value's text form, empty when v is absent or blank.
func toFloat(v any) (x float64, ok bool, raw string) {
	switch n := v.(type) {
	case nil:
		return 0, false, ""
	case float64:
		return n, true, strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return float64(n), true, fmt.Sprint(n)
	case int:
		return float64(n), true, strconv.Itoa(n)
	case int64:
		return float64(n), true, strconv.FormatInt(n, 10)
	case json.Number:
		f, err := n.Float64()
		return f, err == nil, n.String()
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false, ""
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil, n
	}
	return 0, false, fmt.Sprint(v)
}
