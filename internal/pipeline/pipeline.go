// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

// Package pipeline turns the raw tables into fact rows and the fact rows
// into the persisted rating matrix.
//
// A run has two phases. When the final_dataset collection is empty (or a
// reseed is requested) the raw CSV tables are ingested, normalized and
// merged, and the resulting fact rows replace the collection. Then the
// stored fact rows, which include every upload, are pivoted and the matrix
// replaces book_pivot/current_pivot. A failure in either phase leaves the
// previously persisted artifacts in place.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/bookshelf/internal/database"
	"github.com/tomtom215/bookshelf/internal/ingest"
	"github.com/tomtom215/bookshelf/internal/logging"
	"github.com/tomtom215/bookshelf/internal/metrics"
	"github.com/tomtom215/bookshelf/internal/models"
	"github.com/tomtom215/bookshelf/internal/recommend"
	"github.com/tomtom215/bookshelf/internal/recommend/storage"
)

// Options configures a Pipeline.
type Options struct {
	Paths               ingest.Paths
	ActiveUserThreshold int
	MinItemRatings      int
}

// Result summarizes one run.
type Result struct {
	Seeded     bool        `json:"seeded"`
	SeededRows int         `json:"seeded_rows,omitempty"`
	Merge      *MergeStats `json:"merge,omitempty"`
	FactRows   int         `json:"fact_rows"`
	Rows       int         `json:"rows"`
	Cols       int         `json:"cols"`
	Shape      string      `json:"shape"`
	Duration   string      `json:"duration"`
}

// Pipeline runs ingestion through matrix persistence against one store.
type Pipeline struct {
	store     database.Store
	artifacts *storage.Artifacts
	opts      Options

	// factsMu serializes read-modify-write cycles on final_dataset.
	factsMu sync.Mutex
}

// New creates a pipeline.
func New(store database.Store, opts Options) *Pipeline {
	return &Pipeline{
		store:     store,
		artifacts: storage.NewArtifacts(store),
		opts:      opts,
	}
}

func storageErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %v: %w", op, err, recommend.ErrStorage)
}

// Run executes the pipeline. With reseed the raw tables are ingested even
// when fact rows are already stored, replacing them and discarding uploads.
func (p *Pipeline) Run(ctx context.Context, reseed bool) (res *Result, err error) {
	start := time.Now()
	logger := logging.Ctx(ctx).With().Str("component", "pipeline").Logger()
	defer func() {
		rows, cols := 0, 0
		if res != nil {
			rows, cols = res.Rows, res.Cols
		}
		metrics.RecordPipelineRun(rows, cols, err)
	}()

	res = &Result{}

	p.factsMu.Lock()
	err = p.seedIfNeeded(ctx, reseed, res)
	p.factsMu.Unlock()
	if err != nil {
		return nil, err
	}
	if res.Seeded {
		logger.Info().
			Int("rows", res.SeededRows).
			Bool("reseed", reseed).
			Msg("fact rows seeded from raw tables")
	}

	facts, err := p.LoadFactRows(ctx)
	if err != nil {
		return nil, err
	}
	res.FactRows = len(facts)

	stage := time.Now()
	m := BuildMatrix(facts)
	metrics.RecordPipelineStage("pivot", time.Since(stage))
	res.Rows, res.Cols = m.Shape()
	res.Shape = m.ShapeString()

	stage = time.Now()
	if err := p.artifacts.SaveMatrix(ctx, m.Snapshot()); err != nil {
		return nil, storageErr("persist matrix", err)
	}
	metrics.RecordPipelineStage("persist_matrix", time.Since(stage))

	res.Duration = time.Since(start).String()
	logger.Info().
		Str("shape", res.Shape).
		Int("fact_rows", res.FactRows).
		Dur("duration", time.Since(start)).
		Msg("rating matrix persisted")
	return res, nil
}

func (p *Pipeline) seedIfNeeded(ctx context.Context, reseed bool, res *Result) error {
	if !reseed {
		stored, err := p.store.Count(ctx, database.CollectionFinalDataset, nil)
		if err != nil {
			return storageErr("count fact rows", err)
		}
		if stored > 0 {
			return nil
		}
	}

	rows, stats, err := p.BuildFactRows(ctx)
	if err != nil {
		return err
	}
	if err := p.ReplaceFactRows(ctx, rows); err != nil {
		return err
	}
	res.Seeded, res.SeededRows, res.Merge = true, len(rows), &stats
	return nil
}

// BuildFactRows ingests, normalizes and merges the raw tables. Nothing is
// written.
func (p *Pipeline) BuildFactRows(ctx context.Context) ([]models.FactRow, MergeStats, error) {
	stage := time.Now()
	raw, err := ingest.LoadAll(ctx, p.opts.Paths)
	if err != nil {
		return nil, MergeStats{}, fmt.Errorf("ingest raw tables: %w", err)
	}
	metrics.RecordPipelineStage("ingest", time.Since(stage))

	stage = time.Now()
	books, err := NormalizeBooks(raw.Books)
	if err != nil {
		return nil, MergeStats{}, err
	}
	users, err := NormalizeUsers(raw.Users)
	if err != nil {
		return nil, MergeStats{}, err
	}
	ratings, err := NormalizeRatings(raw.Ratings, p.opts.ActiveUserThreshold)
	if err != nil {
		return nil, MergeStats{}, err
	}
	metrics.RecordPipelineStage("normalize", time.Since(stage))

	stage = time.Now()
	rows, stats := Merge(books, users, ratings, p.opts.MinItemRatings)
	metrics.RecordPipelineStage("merge", time.Since(stage))

	logging.Ctx(ctx).Debug().
		Int("books", len(books)).
		Int("users", len(users)).
		Int("active_ratings", len(ratings)).
		Int("joined", stats.Joined).
		Int("popular", stats.PopularItems).
		Int("known_users", stats.ActiveUsers).
		Int("fact_rows", stats.Deduplicated).
		Msg("raw tables merged")
	return rows, stats, nil
}

// LoadFactRows reads every stored fact row in insertion order.
func (p *Pipeline) LoadFactRows(ctx context.Context) ([]models.FactRow, error) {
	docs, err := p.store.Find(ctx, database.CollectionFinalDataset, nil)
	if err != nil {
		return nil, storageErr("load fact rows", err)
	}
	rows := make([]models.FactRow, len(docs))
	for i := range docs {
		if err := docs[i].Decode(&rows[i]); err != nil {
			return nil, fmt.Errorf("%v: %w", err, recommend.ErrDataFormat)
		}
	}
	return rows, nil
}

// ReplaceFactRows swaps the stored fact rows for rows in one atomic write.
func (p *Pipeline) ReplaceFactRows(ctx context.Context, rows []models.FactRow) error {
	bodies := make([][]byte, len(rows))
	for i := range rows {
		b, err := json.Marshal(&rows[i])
		if err != nil {
			return fmt.Errorf("encode fact row: %w", err)
		}
		bodies[i] = b
	}
	if err := p.store.ReplaceAll(ctx, database.CollectionFinalDataset, bodies); err != nil {
		return storageErr("replace fact rows", err)
	}
	return nil
}

// AppendUpload unions uploaded rows with the stored ones, drops exact
// duplicates keeping the first occurrence and replaces the collection.
func (p *Pipeline) AppendUpload(ctx context.Context, upload []models.FactRow) (*models.UploadResult, error) {
	p.factsMu.Lock()
	defer p.factsMu.Unlock()

	existing, err := p.LoadFactRows(ctx)
	if err != nil {
		return nil, err
	}

	union := make([]models.FactRow, 0, len(existing)+len(upload))
	union = append(union, existing...)
	union = append(union, upload...)
	merged, removed := DedupExact(union)

	if err := p.ReplaceFactRows(ctx, merged); err != nil {
		return nil, err
	}

	logging.Ctx(ctx).Info().
		Int("new_records", len(upload)).
		Int("total_records", len(merged)).
		Int("duplicates_removed", removed).
		Msg("upload merged into fact rows")

	return &models.UploadResult{
		Status:            "success",
		NewRecords:        len(upload),
		TotalRecords:      len(merged),
		DuplicatesRemoved: removed,
	}, nil
}
