// Package metrics exposes Prometheus metrics for the map session.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type BuildInfo struct {
	Version  string
	Revision string
}

type Config struct {
	Build BuildInfo
}

type Provider struct {
	reg       *prometheus.Registry
	buildInfo *prometheus.GaugeVec
	Map       *Map
}

func Init(cfg Config) *Provider {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	build := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rentmap_build_info",
			Help: "Build info for this binary (value is always 1).",
		},
		[]string{"version", "revision"},
	)
	reg.MustRegister(build)
	v := cfg.Build
	if v.Version == "" {
		v.Version = "dev"
	}
	build.WithLabelValues(v.Version, v.Revision).Set(1)

	m := NewMap()
	m.register(reg)

	return &Provider{reg: reg, buildInfo: build, Map: m}
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *Provider) Register(cs ...prometheus.Collector) {
	for _, c := range cs {
		p.reg.MustRegister(c)
	}
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }

// Map counts session activity. A nil *Map records nothing.
type Map struct {
	filterApply *prometheus.CounterVec
	resolution  *prometheus.CounterVec
	pointer     *prometheus.CounterVec
	popups      prometheus.Counter
}

func NewMap() *Map {
	return &Map{
		filterApply: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentmap_filter_apply_total",
			Help: "Filter applications by layer; result is applied, skipped (unchanged) or error.",
		}, []string{"layer", "result"}),
		resolution: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentmap_resolution_total",
			Help: "Layer resolutions by role and matching method.",
		}, []string{"role", "outcome"}),
		pointer: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentmap_pointer_events_total",
			Help: "Pointer events handled on the thematic layer.",
		}, []string{"kind"}),
		popups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rentmap_popups_total",
			Help: "Feature popups shown.",
		}),
	}
}

func (m *Map) register(r prometheus.Registerer) {
	r.MustRegister(m.filterApply, m.resolution, m.pointer, m.popups)
}

func (m *Map) FilterApplied(layer, result string) {
	if m == nil {
		return
	}
	m.filterApply.WithLabelValues(layer, result).Inc()
}

func (m *Map) Resolved(role, outcome string) {
	if m == nil {
		return
	}
	m.resolution.WithLabelValues(role, outcome).Inc()
}

func (m *Map) Pointer(kind string) {
	if m == nil {
		return
	}
	m.pointer.WithLabelValues(kind).Inc()
}

func (m *Map) Popup() {
	if m == nil {
		return
	}
	m.popups.Inc()
}
