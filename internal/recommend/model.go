// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package recommend

import (
	"context"
	"fmt"

	"github.com/tomtom215/bookshelf/internal/recommend/algorithms"
	"github.com/tomtom215/bookshelf/internal/recommend/storage"
)

// Recommendation is one similar title. Score is 1 - cosine distance, so
// higher is more similar; Rank starts at 1.
type Recommendation struct {
	Title string  `json:"title"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// Model is a decoded, queryable snapshot. It is immutable once loaded and
// safe for concurrent queries.
type Model struct {
	Info *storage.ModelInfo

	index         *algorithms.BruteForceKNN
	labels        []string
	rowOf         map[string]int
	neighborCount int
}

// LoadModel verifies and decodes snap and rebuilds its index.
func LoadModel(ctx context.Context, snap *storage.ModelSnapshot, knn algorithms.KNNConfig) (*Model, error) {
	state, err := storage.DecodeSnapshot(snap)
	if err != nil {
		return nil, err
	}
	if state.Metric != "" {
		knn.Metric = state.Metric
	}
	index, err := algorithms.NewBruteForceKNN(knn)
	if err != nil {
		return nil, err
	}
	if err := index.Fit(ctx, state.Vectors); err != nil {
		return nil, fmt.Errorf("rebuild index: %w", err)
	}

	rowOf := make(map[string]int, len(state.Labels))
	for i, l := range state.Labels {
		if _, dup := rowOf[l]; !dup {
			rowOf[l] = i
		}
	}
	return &Model{
		Info:          snap.Info(),
		index:         index,
		labels:        state.Labels,
		rowOf:         rowOf,
		neighborCount: state.NeighborCount,
	}, nil
}

// Len returns the number of titles in the model.
func (m *Model) Len() int { return len(m.labels) }

// Contains reports whether title is a model label.
func (m *Model) Contains(title string) bool {
	_, ok := m.rowOf[title]
	return ok
}

// Similar returns up to limit titles nearest to title, excluding title
// itself, by increasing distance. Equal distances keep row order.
func (m *Model) Similar(ctx context.Context, title string, limit int) ([]Recommendation, error) {
	row, ok := m.rowOf[title]
	if !ok {
		return nil, fmt.Errorf("%q: %w", title, ErrNotFound)
	}
	query, _ := m.index.Row(row)

	k := m.neighborCount
	if k < limit {
		k = limit
	}
	neighbors, err := m.index.KNeighbors(ctx, query, k+1)
	if err != nil {
		return nil, err
	}

	out := make([]Recommendation, 0, limit)
	for _, n := range neighbors {
		if n.Index == row {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, Recommendation{
			Title: m.labels[n.Index],
			Score: 1 - n.Distance,
			Rank:  len(out) + 1,
		})
	}
	return out, nil
}
