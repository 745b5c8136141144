// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/bookshelf/internal/ingest"
	"github.com/tomtom215/bookshelf/internal/logging"
	"github.com/tomtom215/bookshelf/internal/models"
	"github.com/tomtom215/bookshelf/internal/retrain"
)

// Job states reported in upload responses.
const (
	jobQueued    = "queued"
	jobCompleted = "completed"
	jobFailed    = "failed"
	jobPending   = "pending"
	jobNotQueued = "not_queued"
)

// Upload handles POST /api/v1/upload.
//
// The multipart field "file" holds a CSV of fact rows. The rows are merged
// into final_dataset and a retrain job is queued. With ?wait=true the
// response is written after the job finishes (or WaitTimeout passes).
// The upload is kept even when the job cannot be queued or fails; the
// job fields of the response report that.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	wait := false
	if v := r.URL.Query().Get("wait"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "wait must be a boolean", nil)
			return
		}
		wait = parsed
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.config.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "upload exceeds size limit", map[string]interface{}{
				"limit_bytes": tooLarge.Limit,
			})
			return
		}
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "expected multipart/form-data body", nil)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, `missing form field "file"`, nil)
		return
	}
	defer file.Close()

	rows, err := ingest.ParseFactRows(file)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	result, err := h.facts.AppendUpload(r.Context(), rows)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	logger := logging.Ctx(r.Context())
	logger.Info().
		Str("filename", sanitizeLogValue(header.Filename)).
		Int("rows", len(rows)).
		Msg("upload accepted")

	job, err := h.queue.SubmitRequest(r.Context(), retrain.Request{Reason: "upload"})
	if err != nil {
		logger.Warn().Err(err).Msg("retrain after upload not queued")
		result.JobStatus = jobNotQueued
		result.JobError = err.Error()
		respondSuccess(w, http.StatusOK, start, result, false)
		return
	}
	result.JobID = job.ID
	result.JobStatus = jobQueued

	if wait {
		h.awaitJob(r.Context(), job, result)
	}
	respondSuccess(w, http.StatusOK, start, result, false)
}

// awaitJob blocks until job finishes and records its outcome in result.
func (h *Handler) awaitJob(ctx context.Context, job *retrain.Job, result *models.UploadResult) {
	ctx, cancel := context.WithTimeout(ctx, h.config.WaitTimeout)
	defer cancel()

	res, err := job.Wait(ctx)
	switch {
	case err != nil:
		result.JobStatus = jobPending
		result.JobError = err.Error()
	case res.Err != nil:
		result.JobStatus = jobFailed
		result.JobError = res.Err.Error()
	default:
		result.JobStatus = jobCompleted
	}
}
