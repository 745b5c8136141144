// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package api

import (
	"context"
	"time"

	"github.com/tomtom215/bookshelf/internal/database"
	"github.com/tomtom215/bookshelf/internal/models"
	"github.com/tomtom215/bookshelf/internal/recommend/storage"
	"github.com/tomtom215/bookshelf/internal/retrain"
)

// FactRowStore merges uploaded fact rows into final_dataset.
// Satisfied by *pipeline.Pipeline.
type FactRowStore interface {
	AppendUpload(ctx context.Context, rows []models.FactRow) (*models.UploadResult, error)
}

// RecommendService answers recommendation queries.
// Satisfied by *recommend.Recommender.
type RecommendService interface {
	RecommendWithMetadata(ctx context.Context, title string) (*models.RecommendResponse, bool, error)
	Status(ctx context.Context) (*storage.ModelInfo, error)
}

// RetrainQueue accepts retrain jobs. Satisfied by *retrain.Worker.
type RetrainQueue interface {
	SubmitRequest(ctx context.Context, req retrain.Request) (*retrain.Job, error)
	Status() retrain.Status
}

// HandlerConfig tunes request handling.
type HandlerConfig struct {
	// MaxUploadBytes caps the multipart body of an upload.
	MaxUploadBytes int64

	// RequestTimeout bounds recommend and status requests.
	RequestTimeout time.Duration

	// WaitTimeout bounds how long ?wait=true uploads wait for their job.
	WaitTimeout time.Duration
}

// DefaultHandlerConfig returns a 32 MiB upload cap, 10s request timeout
// and 10 minute upload wait.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		MaxUploadBytes: 32 << 20,
		RequestTimeout: 10 * time.Second,
		WaitTimeout:    10 * time.Minute,
	}
}

// Handler holds the dependencies of the HTTP handlers.
//
// Handler methods are split across files:
//   - handlers_upload.go: fact-row upload
//   - handlers_recommend.go: recommendation queries
//   - handlers_training.go: training status and manual retrain
//   - handlers_health.go: probes and store debug
type Handler struct {
	store       database.Store
	facts       FactRowStore
	recommender RecommendService
	queue       RetrainQueue
	config      HandlerConfig
	startTime   time.Time
}

// NewHandler creates a handler. Zero fields of cfg take their defaults.
func NewHandler(store database.Store, facts FactRowStore, rec RecommendService, queue RetrainQueue, cfg HandlerConfig) *Handler {
	def := DefaultHandlerConfig()
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = def.MaxUploadBytes
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = def.WaitTimeout
	}
	return &Handler{
		store:       store,
		facts:       facts,
		recommender: rec,
		queue:       queue,
		config:      cfg,
		startTime:   time.Now(),
	}
}
