package http

import "github.com/schemati/schemati-backend/internal/projects/service"

// Handler bundles the dependencies for projects HTTP endpoints.
type Handler struct {
	projects *service.Manager
}

func New(projects *service.Manager) *Handler {
	return &Handler{projects: projects}
}
