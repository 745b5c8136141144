// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

// Package main is the entry point for the Bookshelf server.
//
// Bookshelf recommends books similar to a given title using item-based
// collaborative filtering: a k-nearest-neighbor index over a title by user
// rating matrix, queried with cosine distance.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: defaults, optional config.yaml, environment (koanf v2)
//  2. Document store: Badger (default) or DuckDB behind a circuit breaker
//  3. Pipeline, trainer and recommender over the store
//  4. Event bus: in-process model.trained notifications (Watermill)
//  5. Retrain worker and scheduler
//  6. HTTP server: chi router under /api/v1 plus /metrics
//
// Everything long-running is supervised by a suture tree, so a crashing
// retrain worker is restarted without taking the API down.
//
// # Configuration
//
// Common environment variables:
//
//	HTTP_PORT=8000
//	STORE_BACKEND=badger STORE_PATH=/data/bookshelf
//	BOOKS_CSV=/data/Books.csv USERS_CSV=/data/Users.csv RATINGS_CSV=/data/Ratings.csv
//	SEED_ON_STARTUP=true          # re-ingest the raw tables and train at startup
//	RECOMMEND_TRAIN_ON_STARTUP=true
//	RECOMMEND_TRAIN_INTERVAL=24h  # 0 disables scheduled retraining
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. The HTTP server drains
// in-flight requests, queued retrain jobs fail with ErrStopped, and the
// store is closed last.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/bookshelf/internal/config"
	"github.com/tomtom215/bookshelf/internal/logging"
	"github.com/tomtom215/bookshelf/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Service:   "bookshelf",
	})

	logging.Info().
		Str("store_backend", cfg.Store.Backend).
		Str("store_path", cfg.Store.Path).
		Bool("in_memory", cfg.Store.InMemory).
		Int("neighbor_count", cfg.Recommend.NeighborCount).
		Str("metric", cfg.Recommend.Metric).
		Msg("Configuration loaded")

	c, err := buildComponents(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize components")
	}
	defer func() {
		if err := c.close(); err != nil {
			logging.Error().Err(err).Msg("Error closing components")
		}
	}()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.Timeout,
	})
	if err != nil {
		logging.Error().Err(err).Msg("Failed to create supervisor tree")
		return
	}
	c.addServices(tree, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", c.server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
		serveErr = <-errCh
	case serveErr = <-errCh:
	}
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		logging.Error().Err(serveErr).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Application stopped gracefully")
}
