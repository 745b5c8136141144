// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

// Package models holds the records that flow through the pipeline and the
// payloads the HTTP API returns.
package models

// Book is one catalogue entry after normalization. ISBN is its identity.
type Book struct {
	ISBN      string `json:"ISBN"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Year      string `json:"year"`
	Publisher string `json:"publisher"`
	ImageURL  string `json:"image_url"`
}

// User is a normalized user record. Only the id survives normalization.
type User struct {
	UserID string `json:"user_id"`
}

// Rating is a single explicit rating event.
type Rating struct {
	UserID string  `json:"user_id"`
	ISBN   string  `json:"ISBN"`
	Rating float64 `json:"rating"`
}

// FactRow is a rating joined with its book. Downstream of the merge the
// item identity is Title, not ISBN: two editions with the same title are
// one item.
//
// FactRow is also the row format of the stored final_dataset collection and
// of uploaded CSV files, so it carries validation tags.
type FactRow struct {
	UserID    string  `json:"user_id" validate:"notblank"`
	ISBN      string  `json:"ISBN"`
	Rating    float64 `json:"rating" validate:"gte=0,lte=10"`
	Title     string  `json:"title" validate:"notblank"`
	Author    string  `json:"author"`
	Year      string  `json:"year"`
	Publisher string  `json:"publisher"`
	ImageURL  string  `json:"image_url"`
}

// FactRowColumns is the canonical column order for fact-row CSV files.
var FactRowColumns = []string{"user_id", "ISBN", "rating", "title", "author", "year", "publisher", "image_url"}
