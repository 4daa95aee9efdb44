package handler

import (
	"log/slog"

	"github.com/thumbforge/thumbforge/internal/result"
	"github.com/thumbforge/thumbforge/internal/store"
	"github.com/thumbforge/thumbforge/internal/submit"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Store     store.JobStore
	Submitter *submit.Service
	Results   *result.Store
}

// ImageHandler handles image job HTTP requests
type ImageHandler struct {
	logger    *slog.Logger
	store     store.JobStore
	submitter *submit.Service
	results   *result.Store
}

// NewImageHandler creates a new ImageHandler instance
func NewImageHandler(deps *Dependencies) *ImageHandler {
	return &ImageHandler{
		logger:    deps.Logger,
		store:     deps.Store,
		submitter: deps.Submitter,
		results:   deps.Results,
	}
}
