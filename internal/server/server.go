package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-rentmap/internal/api"
	"github.com/joeblew999/plat-rentmap/internal/api/viewer"
	"github.com/joeblew999/plat-rentmap/internal/config"
	"github.com/joeblew999/plat-rentmap/internal/db"
	"github.com/joeblew999/plat-rentmap/internal/humastar"
	"github.com/joeblew999/plat-rentmap/internal/logging"
	"github.com/joeblew999/plat-rentmap/internal/mapview"
	"github.com/joeblew999/plat-rentmap/internal/metrics"
	"github.com/joeblew999/plat-rentmap/internal/resolver"
	"github.com/joeblew999/plat-rentmap/internal/service"
	"github.com/joeblew999/plat-rentmap/internal/session"
	"github.com/joeblew999/plat-rentmap/internal/templates"
)

const sessionID = "default"

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	WebDir  string // Path to web/ directory for static files and fragment overrides

	MapConfig string // YAML map configuration path
	Headless  bool   // drive an in-memory map instead of a browser
	Style     string // style document name in <DataDir>/styles, headless only
	Version   string
	NoDB      bool

	Logger zerolog.Logger
}

// Server is the rent map HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	bus      *service.EventBus
	session  *session.Session
	remote   *mapview.Remote
	memory   *mapview.Memory
	metrics  *metrics.Provider
	renderer *templates.Renderer
	links    *humastar.Links
	log      zerolog.Logger
}

// New builds the session, its backend and every route.
func New(cfg Config) (*Server, error) {
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	log := logging.Component(cfg.Logger, "server")

	mapCfg, err := config.Load(cfg.MapConfig)
	if err != nil {
		return nil, err
	}

	renderer, err := templates.NewWithOverrides(filepath.Join(cfg.WebDir, "templates", "fragments"))
	if err != nil {
		return nil, fmt.Errorf("loading fragment templates: %w", err)
	}

	s := &Server{
		config:   cfg,
		mux:      http.NewServeMux(),
		bus:      service.NewEventBus(),
		metrics:  metrics.Init(metrics.Config{Build: metrics.BuildInfo{Version: cfg.Version}}),
		renderer: renderer,
		log:      log,
	}

	prober := s.openDB(mapCfg)

	var backend mapview.Backend
	if cfg.Headless {
		m, err := s.loadMemory(cfg.Style)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.memory, backend = m, m
	} else {
		s.remote = mapview.NewRemote(viewer.Sender(s.bus, sessionID))
		backend = s.remote
	}

	opts := session.Options{
		ID:       sessionID,
		Config:   mapCfg,
		Backend:  backend,
		Renderer: renderer,
		Bus:      s.bus,
		Metrics:  s.metrics.Map,
		Logger:   logging.Component(cfg.Logger, "session"),
	}
	if prober != nil {
		opts.Prober = prober
	}
	s.session, err = session.New(opts)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.session.Start(context.Background())
	if s.memory != nil {
		s.memory.Ready()
	}

	humaConfig := huma.DefaultConfig("plat-rentmap API", cfg.Version)
	humaConfig.Info.Description = "Interactive ward rent map: quarter and bedroom filters, layer resolution, hover highlight and popups."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, func(ctx huma.Context, status string, v any) (any, error) {
		return s.links.Transformer()(ctx, status, v)
	})
	s.humaAPI = humago.New(s.mux, humaConfig)

	s.routes()
	return s, nil
}

// openDB opens the rent statistics store and loads the configured CSV. The
// map works without it, so failures are logged and nil is returned.
func (s *Server) openDB(mapCfg config.Map) resolver.ColumnProber {
	if s.config.NoDB {
		return nil
	}
	conn, extErrs, err := db.Get(db.Config{DataDir: s.config.DataDir, DBName: "rentmap"})
	if err != nil {
		s.log.Warn().Err(err).Msg("rent database unavailable")
		return nil
	}
	for _, e := range extErrs {
		s.log.Warn().Err(e).Msg("duckdb extension")
	}
	s.db = conn

	store, err := db.NewRentStore(conn, mapCfg.Rent.Table)
	if err != nil {
		s.log.Warn().Err(err).Msg("rent store")
		return nil
	}
	if path := mapCfg.Rent.CSV; path != "" {
		n, err := store.LoadCSV(context.Background(), path)
		if err != nil {
			s.log.Warn().Err(err).Str("csv", path).Msg("load rent statistics")
		} else {
			s.log.Info().Int64("rows", n).Str("table", store.Table()).Msg("rent statistics loaded")
		}
	}
	return store
}

func (s *Server) loadMemory(name string) (*mapview.Memory, error) {
	styles := service.NewStyleService(s.config.DataDir)
	doc, err := styles.Load(name)
	if err != nil {
		return nil, fmt.Errorf("headless map: %w", err)
	}
	sources, err := service.NewSourceService(s.config.DataDir).ForStyle(doc)
	if err != nil {
		return nil, fmt.Errorf("headless map: %w", err)
	}
	s.log.Info().Str("style", name).Int("layers", len(doc.Layers)).Int("sources", len(sources)).Msg("headless map loaded")
	return mapview.NewMemory(doc, sources), nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Session is the map session served by this server.
func (s *Server) Session() *session.Session { return s.session }

// Remote is the browser backend, nil when headless.
func (s *Server) Remote() *mapview.Remote { return s.remote }

// Close closes server resources.
func (s *Server) Close() error {
	if s.db == nil {
		return nil
	}
	return db.Close()
}

func (s *Server) backendName() string {
	if s.memory != nil {
		return "memory"
	}
	return "remote"
}

func (s *Server) routes() {
	svc := &api.Services{
		Session: s.session,
		Styles:  service.NewStyleService(s.config.DataDir),
		Sources: service.NewSourceService(s.config.DataDir),
		DB:      s.db,
		Version: s.config.Version,
	}
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(svc))
	api.NewInfoHandler(s.config.DataDir, s.backendName(), s.config.Version, s.db != nil).RegisterRoutes(s.humaAPI)
	api.NewDBHandler(s.db).RegisterRoutes(s.humaAPI)

	viewer.NewHandler(s.session, s.bus, s.renderer, logging.Component(s.config.Logger, "viewer")).RegisterRoutes(s.humaAPI)
	viewer.NewCallbacks(s.remote, logging.Component(s.config.Logger, "callbacks")).RegisterRoutes(s.humaAPI)

	s.links = humastar.AutoLinks(s.humaAPI, "/health", "viewer")

	s.mux.Handle("/metrics", s.metrics.Handler())

	// Static files
	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}

	// Page routes
	s.mux.HandleFunc("/viewer", s.handleViewer)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	for _, link := range s.links.Root() {
		w.Header().Add("Link", link)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-rentmap",
		"status":  "running",
		"backend": s.backendName(),
	})
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	page := filepath.Join(s.config.WebDir, "templates", "viewer.html")
	if _, err := os.Stat(page); err != nil {
		http.Error(w, "viewer page not installed", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, page)
}
