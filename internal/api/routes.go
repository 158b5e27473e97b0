// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"database/sql"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-rentmap/internal/service"
	"github.com/joeblew999/plat-rentmap/internal/session"
)

// Services holds the dependencies for API handlers. Nil members disable the
// routes that need them.
type Services struct {
	Session *session.Session
	Styles  *service.StyleService
	Sources *service.SourceService
	DB      *sql.DB
	Version string
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
	Ready   bool   `json:"ready" doc:"Whether the map style has loaded"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	if svc == nil {
		svc = &Services{}
	}
	if svc.Version == "" {
		svc.Version = "1.0.0"
	}
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterStyles registers style document listing routes.
func (h *APIHandler) RegisterStyles(api huma.API) {
	huma.Get(api, "/api/v1/styles", h.GetStyles, huma.OperationTags("styles"))
}

// RegisterSources registers source listing routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("styles"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	body := HealthBody{Status: "ok", Version: h.svc.Version}
	if h.svc.Session != nil {
		body.Ready = h.svc.Session.Snapshot().Ready
	}
	return &struct{ Body HealthBody }{Body: body}, nil
}

func (h *APIHandler) GetStyles(ctx context.Context, input *struct{}) (*struct{ Body []service.StyleFile }, error) {
	if h.svc.Styles == nil {
		return &struct{ Body []service.StyleFile }{Body: []service.StyleFile{}}, nil
	}
	styles, err := h.svc.Styles.List()
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list styles", err)
	}
	return &struct{ Body []service.StyleFile }{Body: styles}, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *struct{}) (*struct{ Body []service.SourceFile }, error) {
	if h.svc.Sources == nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	sources, err := h.svc.Sources.List()
	if err != nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	return &struct{ Body []service.SourceFile }{Body: sources}, nil
}
