// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

// Package retrain runs pipeline and training jobs one at a time.
//
// Jobs are submitted to a bounded queue and executed by a single worker
// goroutine, which makes the worker the only writer of the matrix and
// model artifacts. Callers receive a Job whose completion they may await
// (synchronous mode) or ignore (background mode). A failed job leaves the
// previously persisted artifacts in place and is never retried.
package retrain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/bookshelf/internal/events"
	"github.com/tomtom215/bookshelf/internal/logging"
	"github.com/tomtom215/bookshelf/internal/metrics"
	"github.com/tomtom215/bookshelf/internal/pipeline"
	"github.com/tomtom215/bookshelf/internal/recommend/storage"
)

var (
	// ErrQueueFull is returned by Submit when the queue has no free slot.
	ErrQueueFull = errors.New("retrain queue is full")

	// ErrStopped is the result of jobs still queued when the worker stops.
	ErrStopped = errors.New("retrain worker stopped")
)

// PipelineRunner rebuilds and persists the rating matrix.
type PipelineRunner interface {
	Run(ctx context.Context, reseed bool) (*pipeline.Result, error)
}

// ModelTrainer fits and persists the model from the persisted matrix.
type ModelTrainer interface {
	Train(ctx context.Context) (*storage.ModelInfo, error)
}

// Publisher announces a new model.
type Publisher interface {
	PublishModelTrained(ctx context.Context, ev events.ModelTrained) error
}

// Invalidator drops state derived from a previous model. It is called by
// the worker itself once a new model is persisted.
type Invalidator interface {
	Invalidate()
}

// Config tunes the worker.
type Config struct {
	// QueueSize is the number of jobs that may wait behind the running one.
	QueueSize int

	// JobTimeout bounds one job. Zero means no limit.
	JobTimeout time.Duration

	// Invalidator, when set, runs after every successful training, before
	// the job completes and before the model.trained event is published.
	Invalidator Invalidator
}

// Request describes a job.
type Request struct {
	// Reason is recorded in logs and events, e.g. "upload" or "schedule".
	Reason string

	// Reseed re-ingests the raw tables, discarding uploaded rows.
	Reseed bool
}

// Result is the outcome of a job.
type Result struct {
	JobID      string
	Reason     string
	Pipeline   *pipeline.Result
	Model      *storage.ModelInfo
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Job is a submitted request.
type Job struct {
	ID          string
	Reason      string
	SubmittedAt time.Time

	reseed        bool
	correlationID string
	finished      chan struct{}
	result        Result
}

// Done returns a channel that is closed once the job finishes. Any number
// of callers may wait on it; Result is valid after it is closed.
func (j *Job) Done() <-chan struct{} {
	return j.finished
}

// Result returns the job's outcome. ok is false while the job is pending.
func (j *Job) Result() (r Result, ok bool) {
	select {
	case <-j.finished:
		return j.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the job finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) (Result, error) {
	select {
	case <-j.finished:
		return j.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (j *Job) finish(r Result) {
	j.result = r
	close(j.finished)
}

// Status is a snapshot of the worker.
type Status struct {
	IsTraining   bool
	Queued       int
	LastJobID    string
	LastError    string
	LastFinished time.Time
}

// Worker executes jobs sequentially. It implements suture.Service.
type Worker struct {
	pipeline  PipelineRunner
	trainer   ModelTrainer
	publisher Publisher
	config    Config

	queue   chan *Job
	running atomic.Bool

	mu   sync.RWMutex
	last *Result
}

// NewWorker creates a worker. publisher may be nil.
func NewWorker(p PipelineRunner, t ModelTrainer, pub Publisher, cfg Config) *Worker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	return &Worker{
		pipeline:  p,
		trainer:   t,
		publisher: pub,
		config:    cfg,
		queue:     make(chan *Job, cfg.QueueSize),
	}
}

// Submit queues a pipeline-then-train job.
func (w *Worker) Submit(ctx context.Context, reason string) (*Job, error) {
	return w.SubmitRequest(ctx, Request{Reason: reason})
}

// SubmitRequest queues req. It never blocks; a full queue yields
// ErrQueueFull. The submitting context's correlation id is carried into
// the job's logs.
func (w *Worker) SubmitRequest(ctx context.Context, req Request) (*Job, error) {
	job := &Job{
		ID:            uuid.NewString(),
		Reason:        req.Reason,
		SubmittedAt:   time.Now(),
		reseed:        req.Reseed,
		correlationID: logging.CorrelationIDFromContext(ctx),
		finished:      make(chan struct{}),
	}

	select {
	case w.queue <- job:
	default:
		return nil, ErrQueueFull
	}
	metrics.RetrainQueueDepth.Set(float64(len(w.queue)))

	logging.Ctx(ctx).Info().
		Str("component", "retrain").
		Str("job_id", job.ID).
		Str("reason", job.Reason).
		Bool("reseed", job.reseed).
		Msg("retrain job queued")
	return job, nil
}

// Status reports the queue and the last finished job.
func (w *Worker) Status() Status {
	s := Status{IsTraining: w.running.Load(), Queued: len(w.queue)}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.last != nil {
		s.LastJobID = w.last.JobID
		s.LastFinished = w.last.FinishedAt
		if w.last.Err != nil {
			s.LastError = w.last.Err.Error()
		}
	}
	return s
}

// Serve runs queued jobs until ctx is done. Jobs still queued at that
// point finish with ErrStopped.
func (w *Worker) Serve(ctx context.Context) error {
	logger := logging.WithComponent("retrain")
	logger.Info().Int("queue_size", cap(w.queue)).Msg("retrain worker started")

	for {
		if ctx.Err() != nil {
			w.drain()
			logger.Info().Msg("retrain worker stopped")
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			w.drain()
			logger.Info().Msg("retrain worker stopped")
			return ctx.Err()
		case job := <-w.queue:
			metrics.RetrainQueueDepth.Set(float64(len(w.queue)))
			res := w.run(ctx, job)
			job.finish(res)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case job := <-w.queue:
			job.finish(Result{JobID: job.ID, Reason: job.Reason, Err: ErrStopped, FinishedAt: time.Now()})
		default:
			metrics.RetrainQueueDepth.Set(0)
			return
		}
	}
}

func (w *Worker) run(parent context.Context, job *Job) (res Result) {
	w.running.Store(true)
	defer w.running.Store(false)

	ctx := parent
	if job.correlationID != "" {
		ctx = logging.ContextWithCorrelationID(ctx, job.correlationID)
	}
	if w.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.JobTimeout)
		defer cancel()
	}
	logger := logging.Ctx(ctx).With().
		Str("component", "retrain").
		Str("job_id", job.ID).
		Str("reason", job.Reason).
		Logger()

	res = Result{JobID: job.ID, Reason: job.Reason, StartedAt: time.Now()}
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("retrain job panicked: %v", r)
		}
		res.FinishedAt = time.Now()
		w.mu.Lock()
		last := res
		w.last = &last
		w.mu.Unlock()

		if res.Err != nil {
			logger.Error().Err(res.Err).Dur("duration", res.FinishedAt.Sub(res.StartedAt)).Msg("retrain job failed")
		}
	}()

	logger.Info().Msg("retrain job started")

	pres, err := w.pipeline.Run(ctx, job.reseed)
	if err != nil {
		res.Err = fmt.Errorf("pipeline: %w", err)
		return res
	}
	res.Pipeline = pres

	info, err := w.trainer.Train(ctx)
	if err != nil {
		res.Err = fmt.Errorf("training: %w", err)
		return res
	}
	res.Model = info

	if w.config.Invalidator != nil {
		w.config.Invalidator.Invalidate()
	}

	if w.publisher != nil {
		ev := events.ModelTrained{
			JobID:     job.ID,
			Reason:    job.Reason,
			Checksum:  info.Checksum,
			BookCount: len(info.BookNames),
			Shape:     pres.Shape,
			TrainedAt: info.TrainedAt,
		}
		if err := w.publisher.PublishModelTrained(ctx, ev); err != nil {
			logger.Warn().Err(err).Msg("model trained but event not published")
		}
	}

	logger.Info().
		Str("shape", pres.Shape).
		Int("books", len(info.BookNames)).
		Dur("duration", time.Since(res.StartedAt)).
		Msg("retrain job finished")
	return res
}

// String returns the service name for logging.
func (w *Worker) String() string {
	return "retrain-worker"
}
