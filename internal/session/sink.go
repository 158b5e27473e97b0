package session

import (
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-rentmap/internal/expr"
	"github.com/joeblew999/plat-rentmap/internal/mapview"
	"github.com/joeblew999/plat-rentmap/internal/metrics"
)

// sink forwards filters to the backend, dropping a predicate identical to
// the one last applied to the same layer. Callers hold the session mutex.
type sink struct {
	backend mapview.Backend
	metrics *metrics.Map
	log     zerolog.Logger
	applied map[string]uint64
}

func newSink(b mapview.Backend, m *metrics.Map, log zerolog.Logger) *sink {
	return &sink{backend: b, metrics: m, log: log, applied: make(map[string]uint64)}
}

// seed records f as already applied to layer.
func (k *sink) seed(layer string, f expr.Node) {
	k.applied[layer] = expr.Fingerprint(f)
}

// reset forgets every applied filter, for a backend whose map was loaded
// again.
func (k *sink) reset() {
	clear(k.applied)
}

func (k *sink) SetFilter(layer string, f expr.Node) error {
	fp := expr.Fingerprint(f)
	if prev, ok := k.applied[layer]; ok && prev == fp {
		k.metrics.FilterApplied(layer, "skipped")
		return nil
	}
	if err := k.backend.SetFilter(layer, f); err != nil {
		k.metrics.FilterApplied(layer, "error")
		k.log.Error().Err(err).Str("layer", layer).Msg("set filter")
		return err
	}
	k.applied[layer] = fp
	k.metrics.FilterApplied(layer, "applied")
	k.log.Debug().Str("layer", layer).Uint64("fingerprint", fp).Msg("filter applied")
	return nil
}
