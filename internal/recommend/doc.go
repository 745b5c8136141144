// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

// Package recommend trains and serves the item-based neighbor model.
//
// # Architecture
//
// Training and serving meet only through the document store:
//
//   - Trainer reads the persisted rating matrix, fits a cosine neighbor
//     index over the title rows and persists model and labels as one
//     snapshot document.
//   - Recommender loads that snapshot, rebuilds the index and answers
//     "titles similar to X" queries. It never trains on its own; without a
//     snapshot every query fails with ErrModelUnavailable.
//
// # Usage
//
//	cfg := recommend.DefaultConfig()
//	trainer, _ := recommend.NewTrainer(store, cfg)
//	if _, err := trainer.Train(ctx); err != nil {
//	    return err
//	}
//
//	rec, _ := recommend.NewRecommender(store, cfg)
//	recs, err := rec.Recommend(ctx, "The Testament")
//
// # Thread Safety
//
// A loaded Model is immutable. Each query reads the stored snapshot, which
// is replaced in a single write, so a query sees either the previous model
// or the new one and never a mix of the two.
package recommend
