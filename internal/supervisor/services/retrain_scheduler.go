// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package services

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/bookshelf/internal/logging"
	"github.com/tomtom215/bookshelf/internal/retrain"
)

// RetrainSubmitter queues retrain jobs. Satisfied by *retrain.Worker.
type RetrainSubmitter interface {
	SubmitRequest(ctx context.Context, req retrain.Request) (*retrain.Job, error)
}

// RetrainSchedulerConfig controls when jobs are submitted.
type RetrainSchedulerConfig struct {
	// TrainOnStartup submits a job when the service starts.
	TrainOnStartup bool

	// ReseedOnStartup makes the startup job re-ingest the raw tables.
	// It implies TrainOnStartup.
	ReseedOnStartup bool

	// TrainInterval submits a job periodically. Zero disables it.
	TrainInterval time.Duration

	// WaitFor, when set, delays every submission until it is closed,
	// typically the event bus's Ready channel.
	WaitFor <-chan struct{}
}

// RetrainScheduler submits retrain jobs on startup and on a fixed
// interval. It only submits; the worker runs the jobs, so a slow job never
// stacks up scheduler ticks beyond the worker's queue.
type RetrainScheduler struct {
	submitter RetrainSubmitter
	config    RetrainSchedulerConfig
	name      string
}

// NewRetrainScheduler creates a scheduler.
func NewRetrainScheduler(s RetrainSubmitter, cfg RetrainSchedulerConfig) *RetrainScheduler {
	return &RetrainScheduler{submitter: s, config: cfg, name: "retrain-scheduler"}
}

// Serve implements suture.Service.
func (s *RetrainScheduler) Serve(ctx context.Context) error {
	logger := logging.WithComponent("retrain-scheduler")
	logger.Info().
		Bool("train_on_startup", s.config.TrainOnStartup).
		Bool("reseed_on_startup", s.config.ReseedOnStartup).
		Dur("train_interval", s.config.TrainInterval).
		Msg("retrain scheduler starting")

	if s.config.WaitFor != nil {
		select {
		case <-s.config.WaitFor:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if s.config.TrainOnStartup || s.config.ReseedOnStartup {
		reason := "startup"
		if s.config.ReseedOnStartup {
			reason = "startup-reseed"
		}
		s.submit(ctx, retrain.Request{Reason: reason, Reseed: s.config.ReseedOnStartup})
	}

	if s.config.TrainInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.config.TrainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("retrain scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.submit(ctx, retrain.Request{Reason: "schedule"})
		}
	}
}

func (s *RetrainScheduler) submit(ctx context.Context, req retrain.Request) {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	_, err := s.submitter.SubmitRequest(ctx, req)
	switch {
	case err == nil:
	case errors.Is(err, retrain.ErrQueueFull):
		logging.Ctx(ctx).Warn().Str("reason", req.Reason).Msg("retrain queue full, skipping scheduled job")
	default:
		logging.Ctx(ctx).Error().Err(err).Str("reason", req.Reason).Msg("retrain job not submitted")
	}
}

// String returns the service name for logging.
func (s *RetrainScheduler) String() string {
	return s.name
}
