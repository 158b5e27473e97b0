// Package legend renders the one-line filter summary shown under the map
// legend.
package legend

import (
	"fmt"

	"github.com/joeblew999/plat-rentmap/internal/filter"
	"github.com/joeblew999/plat-rentmap/internal/quarter"
)

// Text returns "Quarter: <label>, Bed: <a+b or None>".
func Text(q quarter.Quarter, beds filter.Beds) string {
	return fmt.Sprintf("Quarter: %s, Bed: %s", q, beds)
}

// Of summarizes the current state.
func Of(s *filter.State) string {
	return Text(s.Quarter(), s.Beds())
}
