package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	dataDir string
	backend string
	dbOK    bool
	version string
}

func NewInfoHandler(dataDir, backend, version string, dbOK bool) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, backend: backend, version: version, dbOK: dbOK}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	DataDir  string   `json:"data_dir" doc:"Data directory path"`
	Backend  string   `json:"backend" doc:"Map backend in use" enum:"remote,memory"`
	DB       bool     `json:"db" doc:"Whether the rent statistics database is available"`
	Features []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	features := []string{"choropleth-filter", "hover-highlight", "popups", "layer-resolution"}
	if h.dbOK {
		features = append(features, "duckdb")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "plat-rentmap",
		Version:  h.version,
		DataDir:  h.dataDir,
		Backend:  h.backend,
		DB:       h.dbOK,
		Features: features,
	}}, nil
}
