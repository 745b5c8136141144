// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/bookshelf/internal/database"
	"github.com/tomtom215/bookshelf/internal/models"
)

// HealthLive reports that the process is up, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, time.Now(), map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	}, false)
}

// HealthReady reports 200 when the document store answers and 503
// otherwise. A missing model does not make the service unready: uploads
// and training still work without one.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := h.store.Collections(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "document store unavailable", map[string]interface{}{
			"backend": h.store.Backend(),
		})
		return
	}

	info, err := h.recommender.Status(ctx)
	respondSuccess(w, http.StatusOK, start, map[string]interface{}{
		"ready":        true,
		"backend":      h.store.Backend(),
		"model_loaded": err == nil && info != nil,
	}, false)
}

// DebugStore handles GET /api/v1/debug/store.
func (h *Handler) DebugStore(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), h.config.RequestTimeout)
	defer cancel()

	collections, err := h.store.Collections(ctx)
	if err != nil {
		respondErr(w, r, storeError(err))
		return
	}
	count, err := h.store.Count(ctx, database.CollectionFinalDataset, nil)
	if err != nil {
		respondErr(w, r, storeError(err))
		return
	}
	respondSuccess(w, http.StatusOK, start, models.StoreDebugResponse{
		Backend:     h.store.Backend(),
		Collections: collections,
		BookCount:   count,
	}, false)
}
