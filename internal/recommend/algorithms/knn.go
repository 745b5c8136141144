// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package algorithms

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
)

// KNNConfig contains configuration for the brute-force index.
type KNNConfig struct {
	// Metric is the distance function. Only "cosine" is supported.
	Metric string

	// NumWorkers is the number of goroutines used to score rows per query.
	NumWorkers int

	// ParallelThreshold is the row count below which queries run on the
	// calling goroutine.
	ParallelThreshold int
}

// DefaultKNNConfig returns default KNN configuration.
func DefaultKNNConfig() KNNConfig {
	return KNNConfig{
		Metric:            MetricCosine,
		NumWorkers:        runtime.GOMAXPROCS(0),
		ParallelThreshold: 2048,
	}
}

// BruteForceKNN compares the query against every fitted row. Item counts
// after the rating filters are in the low thousands, where an exhaustive
// scan is exact and fast enough.
type BruteForceKNN struct {
	BaseAlgorithm
	config KNNConfig

	vectors [][]float64
	norms   []float64
	dim     int
}

// NewBruteForceKNN creates an unfitted index.
func NewBruteForceKNN(cfg KNNConfig) (*BruteForceKNN, error) {
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}
	if cfg.Metric != MetricCosine {
		return nil, fmt.Errorf("unsupported metric %q", cfg.Metric)
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	if cfg.ParallelThreshold <= 0 {
		cfg.ParallelThreshold = DefaultKNNConfig().ParallelThreshold
	}
	return &BruteForceKNN{
		BaseAlgorithm: NewBaseAlgorithm("knn-brute"),
		config:        cfg,
	}, nil
}

// Metric returns the configured distance metric.
func (k *BruteForceKNN) Metric() string { return k.config.Metric }

// Fit stores the row vectors. Every row must have the same, non-zero length.
// The index keeps its own copy.
func (k *BruteForceKNN) Fit(ctx context.Context, vectors [][]float64) error {
	k.acquireFitLock()
	defer k.releaseFitLock()

	if len(vectors) == 0 {
		return fmt.Errorf("fit: no rows")
	}
	dim := len(vectors[0])
	if dim == 0 {
		return fmt.Errorf("fit: rows have no columns")
	}

	rows := make([][]float64, len(vectors))
	norms := make([]float64, len(vectors))
	for i, v := range vectors {
		if i%1024 == 0 && ContextCancelled(ctx) {
			return ctx.Err()
		}
		if len(v) != dim {
			return fmt.Errorf("fit: row %d has %d columns, want %d: %w", i, len(v), dim, ErrDimension)
		}
		rows[i] = append([]float64(nil), v...)
		norms[i] = norm(v)
	}

	k.vectors, k.norms, k.dim = rows, norms, dim
	k.markFitted()
	return nil
}

// Len returns the number of fitted rows.
func (k *BruteForceKNN) Len() int {
	k.acquireQueryLock()
	defer k.releaseQueryLock()
	return len(k.vectors)
}

// Row returns a copy of fitted row i.
func (k *BruteForceKNN) Row(i int) ([]float64, bool) {
	k.acquireQueryLock()
	defer k.releaseQueryLock()
	if i < 0 || i >= len(k.vectors) {
		return nil, false
	}
	return append([]float64(nil), k.vectors[i]...), true
}

// Vectors returns the fitted rows. Callers must not modify them.
func (k *BruteForceKNN) Vectors() [][]float64 {
	k.acquireQueryLock()
	defer k.releaseQueryLock()
	return k.vectors
}

// KNeighbors returns the n rows closest to query, ordered by increasing
// distance. Equal distances keep row order. n larger than the row count is
// capped.
func (k *BruteForceKNN) KNeighbors(ctx context.Context, query []float64, n int) ([]Neighbor, error) {
	k.acquireQueryLock()
	defer k.releaseQueryLock()

	if !k.fitted {
		return nil, ErrNotFitted
	}
	if len(query) != k.dim {
		return nil, fmt.Errorf("query has %d columns, want %d: %w", len(query), k.dim, ErrDimension)
	}
	if n <= 0 {
		return []Neighbor{}, nil
	}

	all, err := k.distances(ctx, query)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(a, b int) bool {
		return all[a].Distance < all[b].Distance
	})
	if n > len(all) {
		n = len(all)
	}
	return all[:n], nil
}

// distances scores every row against query, split across workers for
// large indexes. Results are in row order.
func (k *BruteForceKNN) distances(ctx context.Context, query []float64) ([]Neighbor, error) {
	qNorm := norm(query)
	out := make([]Neighbor, len(k.vectors))

	score := func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = Neighbor{Index: i, Distance: cosineDistance(query, k.vectors[i], qNorm, k.norms[i])}
		}
	}

	workers := k.config.NumWorkers
	if len(k.vectors) < k.config.ParallelThreshold || workers == 1 {
		score(0, len(k.vectors))
		return out, ctx.Err()
	}

	var wg sync.WaitGroup
	chunkSize := (len(k.vectors) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > len(k.vectors) {
			end = len(k.vectors)
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			if ContextCancelled(ctx) {
				return
			}
			score(start, end)
		}(start, end)
	}
	wg.Wait()

	if ContextCancelled(ctx) {
		return nil, ctx.Err()
	}
	return out, nil
}

var _ NeighborIndex = (*BruteForceKNN)(nil)
