// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package pipeline

import (
	"github.com/tomtom215/bookshelf/internal/models"
)

// MergeStats counts rows surviving each merge step.
type MergeStats struct {
	Joined       int `json:"joined"`
	PopularItems int `json:"popular_items"`
	ActiveUsers  int `json:"active_users"`
	Deduplicated int `json:"deduplicated"`
}

// Merge builds fact rows in four steps, in this order:
//
//  1. join ratings to books on ISBN, dropping unmatched ratings;
//  2. keep titles with at least minItemRatings joined rows;
//  3. join to users on user id, dropping unknown users;
//  4. drop repeated (user id, title) pairs, keeping the first.
//
// Output order follows the ratings table.
func Merge(books []models.Book, users []models.User, ratings []models.Rating, minItemRatings int) ([]models.FactRow, MergeStats) {
	var stats MergeStats

	byISBN := make(map[string][]int, len(books))
	for i := range books {
		byISBN[books[i].ISBN] = append(byISBN[books[i].ISBN], i)
	}

	joined := make([]models.FactRow, 0, len(ratings))
	for _, r := range ratings {
		for _, bi := range byISBN[r.ISBN] {
			b := &books[bi]
			joined = append(joined, models.FactRow{
				UserID:    r.UserID,
				ISBN:      r.ISBN,
				Rating:    r.Rating,
				Title:     b.Title,
				Author:    b.Author,
				Year:      b.Year,
				Publisher: b.Publisher,
				ImageURL:  b.ImageURL,
			})
		}
	}
	stats.Joined = len(joined)

	perTitle := make(map[string]int)
	for i := range joined {
		perTitle[joined[i].Title]++
	}
	popular := joined[:0:0]
	for i := range joined {
		if perTitle[joined[i].Title] >= minItemRatings {
			popular = append(popular, joined[i])
		}
	}
	stats.PopularItems = len(popular)

	known := make(map[string]struct{}, len(users))
	for _, u := range users {
		known[u.UserID] = struct{}{}
	}
	active := popular[:0:0]
	for i := range popular {
		if _, ok := known[popular[i].UserID]; ok {
			active = append(active, popular[i])
		}
	}
	stats.ActiveUsers = len(active)

	final := DedupPairs(active)
	stats.Deduplicated = len(final)
	return final, stats
}

type pairKey struct {
	user  string
	title string
}

// DedupPairs drops rows whose (user id, title) pair was already seen.
func DedupPairs(rows []models.FactRow) []models.FactRow {
	seen := make(map[pairKey]struct{}, len(rows))
	out := make([]models.FactRow, 0, len(rows))
	for i := range rows {
		k := pairKey{rows[i].UserID, rows[i].Title}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, rows[i])
	}
	return out
}

// DedupExact drops rows identical in every field to an earlier row and
// returns the survivors and how many were removed.
func DedupExact(rows []models.FactRow) ([]models.FactRow, int) {
	seen := make(map[models.FactRow]struct{}, len(rows))
	out := make([]models.FactRow, 0, len(rows))
	for i := range rows {
		if _, dup := seen[rows[i]]; dup {
			continue
		}
		seen[rows[i]] = struct{}{}
		out = append(out, rows[i])
	}
	return out, len(rows) - len(out)
}
