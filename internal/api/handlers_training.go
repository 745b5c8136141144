// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/bookshelf/internal/models"
	"github.com/tomtom215/bookshelf/internal/retrain"
)

// Model states reported by the training-status endpoint.
const (
	modelTraining = "training"
	modelReady    = "ready"
	modelMissing  = "no_model"
)

// TrainingStatus handles GET /api/v1/training-status.
func (h *Handler) TrainingStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), h.config.RequestTimeout)
	defer cancel()

	info, err := h.recommender.Status(ctx)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	st := h.queue.Status()

	resp := models.TrainingStatusResponse{
		Status:     modelMissing,
		IsTraining: st.IsTraining,
		Queued:     st.Queued,
		LastError:  st.LastError,
		LastJobID:  st.LastJobID,
	}
	if info != nil {
		trained := info.TrainedAt
		resp.Status = modelReady
		resp.LastTrained = &trained
		resp.BookCount = len(info.BookNames)
	}
	if st.IsTraining {
		resp.Status = modelTraining
	}
	respondSuccess(w, http.StatusOK, start, resp, false)
}

// Train handles POST /api/v1/train. ?reseed=true re-ingests the raw
// tables before training. A full queue is answered with 409.
func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req := retrain.Request{Reason: "manual"}
	if v := r.URL.Query().Get("reseed"); v != "" {
		reseed, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "reseed must be a boolean", nil)
			return
		}
		req.Reseed = reseed
	}

	job, err := h.queue.SubmitRequest(r.Context(), req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondSuccess(w, http.StatusAccepted, start, models.JobAccepted{JobID: job.ID, Reason: job.Reason}, false)
}
