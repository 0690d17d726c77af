// Package api implements the HTTP handlers for the course platform.
package api

import (
	"log/slog"

	"coursecast/internal/auth"
	"coursecast/internal/ingestion"
	"coursecast/internal/storage"
)

// Handler carries the dependencies shared by all HTTP handlers.
type Handler struct {
	Store    storage.Repository
	Tokens   *auth.TokenManager
	Workflow *ingestion.Workflow
	Batch    *ingestion.Coordinator
	Logger   *slog.Logger
}

// NewHandler wires a Handler over its collaborators.
func NewHandler(store storage.Repository, tokens *auth.TokenManager, workflow *ingestion.Workflow, batch *ingestion.Coordinator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:    store,
		Tokens:   tokens,
		Workflow: workflow,
		Batch:    batch,
		Logger:   logger,
	}
}
