// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package models

import (
	"time"
)

// APIResponse is the envelope every HTTP endpoint returns.
//
//	{
//	  "status": "success",
//	  "data": {"recommendations": [...], "searched_title": "Dune"},
//	  "metadata": {"timestamp": "2026-10-17T12:00:00Z", "query_time_ms": 3}
//	}
//
// On failure Status is "error" and Error is populated.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response timing and caching information.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
}

// APIError is the error body of a failed request.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// UploadResult is returned by the upload endpoint.
type UploadResult struct {
	Status            string `json:"status"`
	NewRecords        int    `json:"new_records"`
	TotalRecords      int    `json:"total_records"`
	DuplicatesRemoved int    `json:"duplicates_removed"`
	JobID             string `json:"job_id,omitempty"`
	JobStatus         string `json:"job_status,omitempty"`
	JobError          string `json:"job_error,omitempty"`
}

// RecommendationItem is one enriched recommendation.
type RecommendationItem struct {
	Title          string   `json:"title"`
	Score          float64  `json:"score"`
	Rank           int      `json:"rank"`
	Metadata       *FactRow `json:"metadata,omitempty"`
	FromCollection string   `json:"from_collection,omitempty"`
}

// RecommendResponse is returned by the recommend endpoint.
type RecommendResponse struct {
	Recommendations []RecommendationItem `json:"recommendations"`
	SearchedTitle   string               `json:"searched_title"`
}

// TrainingStatusResponse describes the stored model and the retrain queue.
type TrainingStatusResponse struct {
	Status      string     `json:"status"`
	LastTrained *time.Time `json:"last_trained"`
	BookCount   int        `json:"book_count"`
	IsTraining  bool       `json:"is_training"`
	Queued      int        `json:"queued"`
	LastError   string     `json:"last_error,omitempty"`
	LastJobID   string     `json:"last_job_id,omitempty"`
}

// StoreDebugResponse lists collections and the fact-row count.
type StoreDebugResponse struct {
	Backend     string   `json:"backend"`
	Collections []string `json:"collections"`
	BookCount   int      `json:"book_count"`
}

// JobAccepted is returned when a retrain job is queued.
type JobAccepted struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason"`
}
