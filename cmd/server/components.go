// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package main

import (
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/tomtom215/bookshelf/internal/api"
	"github.com/tomtom215/bookshelf/internal/config"
	"github.com/tomtom215/bookshelf/internal/database"
	"github.com/tomtom215/bookshelf/internal/events"
	"github.com/tomtom215/bookshelf/internal/ingest"
	"github.com/tomtom215/bookshelf/internal/pipeline"
	"github.com/tomtom215/bookshelf/internal/recommend"
	"github.com/tomtom215/bookshelf/internal/retrain"
	"github.com/tomtom215/bookshelf/internal/supervisor"
	"github.com/tomtom215/bookshelf/internal/supervisor/services"
)

// components holds everything the server runs.
type components struct {
	store       database.Store
	pipeline    *pipeline.Pipeline
	trainer     *recommend.Trainer
	recommender *recommend.Recommender
	bus         *events.Bus
	worker      *retrain.Worker
	scheduler   *services.RetrainScheduler
	server      *http.Server
}

// buildComponents opens the store and wires the pipeline, serving and
// retraining components. Nothing is started.
func buildComponents(cfg *config.Config) (*components, error) {
	store, err := database.Open(&cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	c := &components{store: store}
	if err := c.wire(cfg); err != nil {
		_ = store.Close()
		return nil, err
	}
	return c, nil
}

func (c *components) wire(cfg *config.Config) error {
	c.pipeline = pipeline.New(c.store, pipeline.Options{
		Paths: ingest.Paths{
			Books:   cfg.Data.BooksPath,
			Users:   cfg.Data.UsersPath,
			Ratings: cfg.Data.RatingsPath,
		},
		ActiveUserThreshold: cfg.Recommend.ActiveUserThreshold,
		MinItemRatings:      cfg.Recommend.MinItemRatings,
	})

	recCfg := recommend.ConfigFrom(&cfg.Recommend)
	var err error
	if c.trainer, err = recommend.NewTrainer(c.store, recCfg); err != nil {
		return fmt.Errorf("create trainer: %w", err)
	}
	if c.recommender, err = recommend.NewRecommender(c.store, recCfg); err != nil {
		return fmt.Errorf("create recommender: %w", err)
	}

	c.bus = events.NewBus(events.DefaultConfig())
	c.bus.OnModelTrained("recommender", c.recommender.HandleModelTrained)

	c.worker = retrain.NewWorker(c.pipeline, c.trainer, c.bus, retrain.Config{
		QueueSize:   cfg.Recommend.QueueSize,
		JobTimeout:  cfg.Recommend.TrainTimeout,
		Invalidator: c.recommender,
	})
	c.scheduler = services.NewRetrainScheduler(c.worker, services.RetrainSchedulerConfig{
		TrainOnStartup:  cfg.Recommend.TrainOnStartup,
		ReseedOnStartup: cfg.Data.SeedOnStartup,
		TrainInterval:   cfg.Recommend.TrainInterval,
		WaitFor:         c.bus.Ready(),
	})

	handler := api.NewHandler(c.store, c.pipeline, c.recommender, c.worker, api.HandlerConfig{
		MaxUploadBytes: cfg.Security.MaxUploadBytes,
		RequestTimeout: cfg.Server.Timeout,
	})
	router := api.NewRouter(handler, api.NewChiMiddleware(api.ChiMiddlewareConfigFrom(&cfg.Security)))

	c.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router.Setup(),
		ReadHeaderTimeout: cfg.Server.Timeout,
		IdleTimeout:       12 * cfg.Server.Timeout,
	}
	return nil
}

// addServices registers the long-running components with the tree.
func (c *components) addServices(tree *supervisor.SupervisorTree, cfg *config.Config) {
	tree.AddMessagingService(c.bus)
	tree.AddPipelineService(c.worker)
	tree.AddPipelineService(c.scheduler)
	tree.AddAPIService(services.NewHTTPServerService(c.server, cfg.Server.Timeout))
}

// close releases the bus and the store.
func (c *components) close() error {
	busErr := c.bus.Close()
	if err := c.store.Close(); err != nil {
		return err
	}
	return busErr
}
