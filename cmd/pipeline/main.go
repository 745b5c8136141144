// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

// Command pipeline runs the offline stages without starting the server.
//
//	pipeline                    ingest (if needed), build the matrix, train
//	pipeline -stage=pipeline    only rebuild and persist the rating matrix
//	pipeline -stage=train       only fit the model from the stored matrix
//	pipeline -reseed            re-ingest the raw tables, discarding uploads
//
// Configuration is read exactly like the server's. A JSON summary of what
// ran is written to stdout; logs go to stderr.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/bookshelf/internal/config"
	"github.com/tomtom215/bookshelf/internal/database"
	"github.com/tomtom215/bookshelf/internal/ingest"
	"github.com/tomtom215/bookshelf/internal/logging"
	"github.com/tomtom215/bookshelf/internal/pipeline"
	"github.com/tomtom215/bookshelf/internal/recommend"
	"github.com/tomtom215/bookshelf/internal/recommend/storage"
)

// Stages accepted by -stage.
const (
	stageAll      = "all"
	stagePipeline = "pipeline"
	stageTrain    = "train"
)

type options struct {
	stage   string
	reseed  bool
	timeout time.Duration
}

// summary is printed after a successful run.
type summary struct {
	Pipeline *pipeline.Result `json:"pipeline,omitempty"`
	Model    *modelSummary    `json:"model,omitempty"`
	Store    string           `json:"store"`
}

type modelSummary struct {
	BookCount     int       `json:"book_count"`
	Checksum      string    `json:"checksum"`
	NeighborCount int       `json:"neighbor_count"`
	Metric        string    `json:"metric"`
	TrainedAt     time.Time `json:"trained_at"`
}

func main() {
	var opts options
	flag.StringVar(&opts.stage, "stage", stageAll, "stages to run: all, pipeline or train")
	flag.BoolVar(&opts.reseed, "reseed", false, "re-ingest the raw tables even when fact rows are stored")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Minute, "overall deadline")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Service:   "bookshelf-pipeline",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, os.Stdout); err != nil {
		logging.Error().Err(err).Str("stage", opts.stage).Msg("pipeline failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, out io.Writer) error {
	switch opts.stage {
	case stageAll, stagePipeline, stageTrain:
	default:
		return fmt.Errorf("unknown stage %q", opts.stage)
	}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	store, err := database.Open(&cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	sum := summary{Store: store.Backend()}

	if opts.stage != stageTrain {
		p := pipeline.New(store, pipeline.Options{
			Paths: ingest.Paths{
				Books:   cfg.Data.BooksPath,
				Users:   cfg.Data.UsersPath,
				Ratings: cfg.Data.RatingsPath,
			},
			ActiveUserThreshold: cfg.Recommend.ActiveUserThreshold,
			MinItemRatings:      cfg.Recommend.MinItemRatings,
		})
		if sum.Pipeline, err = p.Run(ctx, opts.reseed); err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
	}

	if opts.stage != stagePipeline {
		trainer, err := recommend.NewTrainer(store, recommend.ConfigFrom(&cfg.Recommend))
		if err != nil {
			return err
		}
		info, err := trainer.Train(ctx)
		if err != nil {
			return fmt.Errorf("training: %w", err)
		}
		sum.Model = summarizeModel(info)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}

func summarizeModel(info *storage.ModelInfo) *modelSummary {
	return &modelSummary{
		BookCount:     len(info.BookNames),
		Checksum:      info.Checksum,
		NeighborCount: info.NeighborCount,
		Metric:        info.Metric,
		TrainedAt:     info.TrainedAt,
	}
}
