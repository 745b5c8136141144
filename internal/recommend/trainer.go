// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/bookshelf/internal/database"
	"github.com/tomtom215/bookshelf/internal/logging"
	"github.com/tomtom215/bookshelf/internal/metrics"
	"github.com/tomtom215/bookshelf/internal/recommend/algorithms"
	"github.com/tomtom215/bookshelf/internal/recommend/storage"
)

// Trainer fits the neighbor model from the persisted rating matrix and
// persists the result. It never reads the matrix from memory, so training
// can run in a different process than the pipeline.
type Trainer struct {
	artifacts *storage.Artifacts
	config    *Config
	now       func() time.Time
}

// NewTrainer creates a trainer over store.
func NewTrainer(store database.Store, cfg *Config) (*Trainer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Trainer{
		artifacts: storage.NewArtifacts(store),
		config:    cfg,
		now:       time.Now,
	}, nil
}

// Train loads the matrix, fits the index and replaces the stored model.
// On any failure the previous model stays in place.
func (t *Trainer) Train(ctx context.Context) (info *storage.ModelInfo, err error) {
	start := time.Now()
	defer func() { metrics.RecordTraining(time.Since(start), err) }()

	m, err := t.artifacts.LoadMatrix(ctx)
	if errors.Is(err, storage.ErrNoArtifact) {
		return nil, fmt.Errorf("no rating matrix persisted: %w", ErrTraining)
	}
	if err != nil {
		return nil, storageError("load matrix", err)
	}

	if err := checkMatrix(m); err != nil {
		return nil, err
	}

	index, err := algorithms.NewBruteForceKNN(t.config.KNN)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrTraining)
	}
	if err := index.Fit(ctx, m.Data); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%v: %w", err, ErrTraining)
	}

	state := &storage.ModelState{
		Metric:        index.Metric(),
		NeighborCount: t.config.NeighborCount,
		Labels:        m.Books,
		Vectors:       index.Vectors(),
	}
	info, err = t.artifacts.SaveModel(ctx, state, t.now())
	if err != nil {
		return nil, storageError("persist model", err)
	}

	logging.Ctx(ctx).Info().
		Str("component", "trainer").
		Int("books", len(info.BookNames)).
		Str("shape", m.Metadata.Shape).
		Str("checksum", info.Checksum[:12]).
		Dur("duration", time.Since(start)).
		Msg("model trained")
	return info, nil
}

func checkMatrix(m *storage.MatrixSnapshot) error {
	if len(m.Books) == 0 || len(m.Data) == 0 {
		return fmt.Errorf("rating matrix is empty: %w", ErrTraining)
	}
	if len(m.Data) != len(m.Books) {
		return fmt.Errorf("rating matrix has %d rows but %d labels: %w", len(m.Data), len(m.Books), ErrTraining)
	}
	for i, row := range m.Data {
		if len(row) != len(m.UserIDs) {
			return fmt.Errorf("rating matrix row %d has %d columns, want %d: %w", i, len(row), len(m.UserIDs), ErrTraining)
		}
	}
	if len(m.UserIDs) == 0 {
		return fmt.Errorf("rating matrix has no user columns: %w", ErrTraining)
	}
	return nil
}

func storageError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %v: %w", op, err, ErrStorage)
}
