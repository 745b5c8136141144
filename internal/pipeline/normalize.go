// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tomtom215/bookshelf/internal/ingest"
	"github.com/tomtom215/bookshelf/internal/models"
	"github.com/tomtom215/bookshelf/internal/recommend"
)

// Raw column names of the Book-Crossing tables.
const (
	colISBN      = "ISBN"
	colTitle     = "Book-Title"
	colAuthor    = "Book-Author"
	colYear      = "Year-Of-Publication"
	colPublisher = "Publisher"
	colImageL    = "Image-URL-L"
	colUserID    = "User-ID"
	colRating    = "Book-Rating"
)

func requireColumns(t *ingest.Table, names ...string) error {
	if missing := t.Missing(names...); len(missing) > 0 {
		return fmt.Errorf("%s table is missing columns %s: %w",
			t.Name, strings.Join(missing, ", "), recommend.ErrDataFormat)
	}
	return nil
}

func mustColumn(t *ingest.Table, name string) int {
	i, _ := t.Column(name)
	return i
}

// NormalizeBooks keeps the identity and descriptive columns of the books
// table. The small and medium cover URLs are dropped.
func NormalizeBooks(t *ingest.Table) ([]models.Book, error) {
	if err := requireColumns(t, colISBN, colTitle, colAuthor, colYear, colPublisher, colImageL); err != nil {
		return nil, err
	}
	var (
		isbn      = mustColumn(t, colISBN)
		title     = mustColumn(t, colTitle)
		author    = mustColumn(t, colAuthor)
		year      = mustColumn(t, colYear)
		publisher = mustColumn(t, colPublisher)
		image     = mustColumn(t, colImageL)
	)

	books := make([]models.Book, 0, t.Len())
	for _, row := range t.Rows {
		books = append(books, models.Book{
			ISBN:      ingest.Cell(row, isbn),
			Title:     ingest.Cell(row, title),
			Author:    ingest.Cell(row, author),
			Year:      ingest.Cell(row, year),
			Publisher: ingest.Cell(row, publisher),
			ImageURL:  ingest.Cell(row, image),
		})
	}
	return books, nil
}

// NormalizeUsers keeps only the user id.
func NormalizeUsers(t *ingest.Table) ([]models.User, error) {
	if err := requireColumns(t, colUserID); err != nil {
		return nil, err
	}
	id := mustColumn(t, colUserID)

	users := make([]models.User, 0, t.Len())
	for _, row := range t.Rows {
		users = append(users, models.User{UserID: ingest.Cell(row, id)})
	}
	return users, nil
}

// NormalizeRatings renames the ratings columns and keeps only events of
// users with strictly more than threshold events in the raw table.
func NormalizeRatings(t *ingest.Table, threshold int) ([]models.Rating, error) {
	if err := requireColumns(t, colUserID, colISBN, colRating); err != nil {
		return nil, err
	}
	var (
		user   = mustColumn(t, colUserID)
		isbn   = mustColumn(t, colISBN)
		rating = mustColumn(t, colRating)
	)

	counts := make(map[string]int)
	for _, row := range t.Rows {
		counts[ingest.Cell(row, user)]++
	}

	out := make([]models.Rating, 0)
	for i, row := range t.Rows {
		uid := ingest.Cell(row, user)
		if counts[uid] <= threshold {
			continue
		}
		raw := ingest.Cell(row, rating)
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: rating %q is not a number: %w", t.Name, i+1, raw, recommend.ErrDataFormat)
		}
		out = append(out, models.Rating{UserID: uid, ISBN: ingest.Cell(row, isbn), Rating: v})
	}
	return out, nil
}
