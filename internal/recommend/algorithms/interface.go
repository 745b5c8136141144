// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

// Package algorithms implements the nearest-neighbor index behind item
// recommendations.
//
// # Thread Safety
//
// Indexes are safe for concurrent use. Fitting acquires an exclusive lock
// while queries use a shared lock.
package algorithms

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// Supported distance metrics.
const (
	MetricCosine = "cosine"
)

var (
	// ErrNotFitted is returned by queries against an index that was never fitted.
	ErrNotFitted = errors.New("index not fitted")

	// ErrDimension is returned when vectors disagree in length.
	ErrDimension = errors.New("vector dimension mismatch")
)

// Neighbor is one query result: a row index and its distance to the query.
type Neighbor struct {
	Index    int
	Distance float64
}

// NeighborIndex answers k-nearest-neighbor queries over fitted row vectors.
type NeighborIndex interface {
	Fit(ctx context.Context, vectors [][]float64) error
	KNeighbors(ctx context.Context, query []float64, n int) ([]Neighbor, error)
	Row(i int) ([]float64, bool)
	Len() int
}

// BaseAlgorithm tracks fit state shared by index implementations.
type BaseAlgorithm struct {
	name         string
	fitted       bool
	version      int
	lastFittedAt time.Time
	mu           sync.RWMutex
}

// NewBaseAlgorithm creates a new base with the given name.
func NewBaseAlgorithm(name string) BaseAlgorithm {
	return BaseAlgorithm{name: name}
}

// Name returns the index identifier.
func (b *BaseAlgorithm) Name() string {
	return b.name
}

// IsFitted reports whether Fit has completed successfully.
func (b *BaseAlgorithm) IsFitted() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fitted
}

// Version counts successful fits.
func (b *BaseAlgorithm) Version() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// LastFittedAt returns when the index was last fitted.
func (b *BaseAlgorithm) LastFittedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastFittedAt
}

// markFitted must be called while holding the fit lock.
func (b *BaseAlgorithm) markFitted() {
	b.fitted = true
	b.version++
	b.lastFittedAt = time.Now()
}

func (b *BaseAlgorithm) acquireFitLock() { b.mu.Lock() }
func (b *BaseAlgorithm) releaseFitLock() { b.mu.Unlock() }
func (b *BaseAlgorithm) acquireQueryLock() { b.mu.RLock() }
func (b *BaseAlgorithm) releaseQueryLock() { b.mu.RUnlock() }

func norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

// CosineDistance returns 1 - cos(a, b), clipped to [0, 2]. A zero vector is
// at distance 1 from everything, itself included.
func CosineDistance(a, b []float64) float64 {
	return cosineDistance(a, b, norm(a), norm(b))
}

func cosineDistance(a, b []float64, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 1
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	d := 1 - dot/(normA*normB)
	switch {
	case d < 0:
		return 0
	case d > 2:
		return 2
	}
	return d
}

// ContextCancelled checks if the context has been canceled.
func ContextCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
