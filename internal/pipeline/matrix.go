// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package pipeline

import (
	"sort"
	"strconv"

	"github.com/tomtom215/bookshelf/internal/models"
	"github.com/tomtom215/bookshelf/internal/recommend/storage"
)

// Matrix is the title by user rating matrix. Absent (title, user) pairs
// hold 0, which is indistinguishable from an explicit 0 rating.
type Matrix struct {
	Titles  []string
	UserIDs []string
	Data    [][]float64
}

// Shape returns (rows, cols).
func (m *Matrix) Shape() (rows, cols int) {
	return len(m.Titles), len(m.UserIDs)
}

// ShapeString formats the shape as "(rows, cols)".
func (m *Matrix) ShapeString() string {
	r, c := m.Shape()
	return storage.ShapeString(r, c)
}

// Snapshot converts the matrix to its persisted form.
func (m *Matrix) Snapshot() *storage.MatrixSnapshot {
	return &storage.MatrixSnapshot{Books: m.Titles, UserIDs: m.UserIDs, Data: m.Data}
}

// BuildMatrix pivots fact rows into a matrix. Titles are sorted
// lexicographically; user ids numerically when every id is an integer and
// lexicographically otherwise. When a pair occurs more than once the last
// row wins. Identical input always yields an identical matrix.
//
// Absent pairs are 0, which cannot be told apart from an explicit rating of
// 0 (Book-Crossing's implicit rating).
func BuildMatrix(rows []models.FactRow) *Matrix {
	titleSet := make(map[string]struct{})
	userSet := make(map[string]struct{})
	for i := range rows {
		titleSet[rows[i].Title] = struct{}{}
		userSet[rows[i].UserID] = struct{}{}
	}

	titles := keys(titleSet)
	sort.Strings(titles)
	users := keys(userSet)
	sortUserIDs(users)

	titleIdx := indexOf(titles)
	userIdx := indexOf(users)

	data := make([][]float64, len(titles))
	for i := range data {
		data[i] = make([]float64, len(users))
	}
	for i := range rows {
		data[titleIdx[rows[i].Title]][userIdx[rows[i].UserID]] = rows[i].Rating
	}

	return &Matrix{Titles: titles, UserIDs: users, Data: data}
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func indexOf(labels []string) map[string]int {
	idx := make(map[string]int, len(labels))
	for i, l := range labels {
		idx[l] = i
	}
	return idx
}

// sortUserIDs orders ids numerically if all parse as integers.
func sortUserIDs(ids []string) {
	nums := make(map[string]int64, len(ids))
	for _, id := range ids {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			sort.Strings(ids)
			return
		}
		nums[id] = n
	}
	sort.Slice(ids, func(a, b int) bool {
		na, nb := nums[ids[a]], nums[ids[b]]
		if na != nb {
			return na < nb
		}
		return ids[a] < ids[b]
	})
}
