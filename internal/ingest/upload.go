// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package ingest

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tomtom215/bookshelf/internal/models"
	"github.com/tomtom215/bookshelf/internal/recommend"
	"github.com/tomtom215/bookshelf/internal/validation"
)

// TableUpload names uploaded fact-row files in logs and errors.
const TableUpload = "upload"

// requiredUploadColumns must be present in every uploaded file. The other
// fact-row columns are optional and default to "".
var requiredUploadColumns = []string{"user_id", "title", "rating"}

// ParseFactRows reads an uploaded CSV of fact rows. The whole file is
// rejected with ErrDataFormat when it is empty, lacks a required column, or
// has a row that fails validation.
func ParseFactRows(r io.Reader) ([]models.FactRow, error) {
	t, err := ReadTable(TableUpload, r)
	if err != nil {
		return nil, err
	}
	if missing := t.Missing(requiredUploadColumns...); len(missing) > 0 {
		return nil, fmt.Errorf("upload is missing columns %s: %w", strings.Join(missing, ", "), recommend.ErrDataFormat)
	}
	if t.Len() == 0 {
		return nil, fmt.Errorf("upload has no rows: %w", recommend.ErrDataFormat)
	}

	col := func(name string) int {
		if i, ok := t.Column(name); ok {
			return i
		}
		return -1
	}
	var (
		userCol      = col("user_id")
		isbnCol      = col("ISBN")
		ratingCol    = col("rating")
		titleCol     = col("title")
		authorCol    = col("author")
		yearCol      = col("year")
		publisherCol = col("publisher")
		imageCol     = col("image_url")
	)

	rows := make([]models.FactRow, 0, t.Len())
	for i, rec := range t.Rows {
		line := i + 2 // header is line 1

		rating, err := strconv.ParseFloat(Cell(rec, ratingCol), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: rating %q is not a number: %w", line, Cell(rec, ratingCol), recommend.ErrDataFormat)
		}

		row := models.FactRow{
			UserID:    Cell(rec, userCol),
			ISBN:      Cell(rec, isbnCol),
			Rating:    rating,
			Title:     Cell(rec, titleCol),
			Author:    Cell(rec, authorCol),
			Year:      Cell(rec, yearCol),
			Publisher: Cell(rec, publisherCol),
			ImageURL:  Cell(rec, imageCol),
		}
		if verr := validation.ValidateStruct(&row); verr != nil {
			return nil, fmt.Errorf("line %d: %s: %w", line, verr.Error(), recommend.ErrDataFormat)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
