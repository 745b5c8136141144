// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package recommend

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/bookshelf/internal/cache"
	"github.com/tomtom215/bookshelf/internal/database"
	"github.com/tomtom215/bookshelf/internal/events"
	"github.com/tomtom215/bookshelf/internal/logging"
	"github.com/tomtom215/bookshelf/internal/metrics"
	"github.com/tomtom215/bookshelf/internal/models"
	"github.com/tomtom215/bookshelf/internal/recommend/storage"
)

// Recommender answers similar-title queries from the persisted model.
// It is safe for concurrent use.
//
// Every query reads the stored model snapshot, so a retrain is visible to
// the next request whether or not anyone told the recommender about it.
// Decoded models are kept in an LRU keyed by checksum, so an unchanged
// snapshot is decoded once.
type Recommender struct {
	store     database.Store
	artifacts *storage.Artifacts
	config    *Config

	decoded   *cache.LRU[*Model]
	responses *cache.LRU[*models.RecommendResponse]
}

// NewRecommender creates a recommender reading from store.
func NewRecommender(store database.Store, cfg *Config) (*Recommender, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	r := &Recommender{
		store:     store,
		artifacts: storage.NewArtifacts(store),
		config:    cfg,
		decoded:   cache.NewLRU[*Model](cfg.ModelCacheSize, 0),
	}
	if cfg.ResponseCacheSize > 0 {
		r.responses = cache.NewLRU[*models.RecommendResponse](cfg.ResponseCacheSize, cfg.ResponseCacheTTL)
	}
	return r, nil
}

// Invalidate drops cached responses and decoded models. Responses are
// keyed by model checksum, so this only releases memory held for models
// that are no longer stored.
func (r *Recommender) Invalidate() {
	r.decoded.Clear()
	if r.responses != nil {
		r.responses.Clear()
	}
}

// HandleModelTrained logs and invalidates when a retrain job persisted a
// new model. It is registered on the event bus.
func (r *Recommender) HandleModelTrained(ctx context.Context, ev events.ModelTrained) error {
	r.Invalidate()
	logging.Ctx(ctx).Info().
		Str("job_id", ev.JobID).
		Str("checksum", ev.Checksum).
		Int("book_count", ev.BookCount).
		Msg("recommender picked up new model")
	return nil
}

// Model reads the stored model snapshot and returns its decoded index.
// Without a stored model it returns ErrModelUnavailable; it never trains.
func (r *Recommender) Model(ctx context.Context) (*Model, error) {
	snap, err := r.artifacts.LoadModelSnapshot(ctx)
	if errors.Is(err, storage.ErrNoArtifact) {
		return nil, fmt.Errorf("no trained model: %w", ErrModelUnavailable)
	}
	if err != nil {
		return nil, storageError("load model", err)
	}

	m, hit := r.decoded.Get(snap.Checksum)
	metrics.RecordModelCache(hit)
	if !hit {
		m, err = LoadModel(ctx, snap, r.config.KNN)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, fmt.Errorf("stored model is unusable: %v: %w", err, ErrModelUnavailable)
		}
		r.decoded.Add(snap.Checksum, m)
		logging.Ctx(ctx).Debug().
			Str("checksum", snap.Checksum).
			Int("books", m.Len()).
			Msg("model loaded")
	}
	return m, nil
}

// Recommend returns up to ResultLimit titles most similar to title.
func (r *Recommender) Recommend(ctx context.Context, title string) ([]Recommendation, error) {
	m, err := r.Model(ctx)
	if err != nil {
		metrics.RecordRecommendation(outcome(err))
		return nil, err
	}
	return r.query(ctx, m, title)
}

func (r *Recommender) query(ctx context.Context, m *Model, title string) ([]Recommendation, error) {
	recs, err := m.Similar(ctx, title, r.config.ResultLimit)
	metrics.RecordRecommendation(outcome(err))
	return recs, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrModelUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

// RecommendWithMetadata returns recommendations enriched with the first
// stored fact row of each title. The second return value reports whether
// the response came from the response cache.
func (r *Recommender) RecommendWithMetadata(ctx context.Context, title string) (*models.RecommendResponse, bool, error) {
	m, err := r.Model(ctx)
	if err != nil {
		metrics.RecordRecommendation(outcome(err))
		return nil, false, err
	}
	key := m.Info.Checksum + "\x00" + title
	if r.responses != nil {
		if resp, ok := r.responses.Get(key); ok {
			metrics.RecordRecommendation("success")
			return resp, true, nil
		}
	}

	recs, err := r.query(ctx, m, title)
	if err != nil {
		return nil, false, err
	}

	resp := &models.RecommendResponse{
		Recommendations: make([]models.RecommendationItem, 0, len(recs)),
		SearchedTitle:   title,
	}
	for _, rec := range recs {
		meta, err := r.Enrich(ctx, rec.Title)
		if err != nil {
			return nil, false, err
		}
		item := models.RecommendationItem{Title: rec.Title, Score: rec.Score, Rank: rec.Rank, Metadata: meta}
		if meta != nil {
			item.FromCollection = database.CollectionFinalDataset
		}
		resp.Recommendations = append(resp.Recommendations, item)
	}

	if r.responses != nil {
		r.responses.Add(key, resp)
	}
	return resp, false, nil
}

// Enrich returns the first fact row whose title equals title, falling back
// to a case-insensitive match. It returns nil when neither matches.
func (r *Recommender) Enrich(ctx context.Context, title string) (*models.FactRow, error) {
	for _, f := range []*database.Filter{
		database.Eq("title", title),
		database.EqFold("title", title),
	} {
		doc, err := r.store.FindFirst(ctx, database.CollectionFinalDataset, f)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, storageError("enrich "+title, err)
		}
		var row models.FactRow
		if err := doc.Decode(&row); err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrDataFormat)
		}
		return &row, nil
	}
	return nil, nil
}

// Status returns the stored model's info, or nil when none exists.
func (r *Recommender) Status(ctx context.Context) (*storage.ModelInfo, error) {
	snap, err := r.artifacts.LoadModelSnapshot(ctx)
	if errors.Is(err, storage.ErrNoArtifact) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("load model", err)
	}
	return snap.Info(), nil
}
