// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/bookshelf/internal/config"
	"github.com/tomtom215/bookshelf/internal/logging"
	"github.com/tomtom215/bookshelf/internal/metrics"
)

const breakerName = "document-store"

// BreakerSettings configures the circuit breaker around a Store.
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// BreakerSettingsFromConfig maps store config to breaker settings.
func BreakerSettingsFromConfig(cfg *config.StoreConfig) BreakerSettings {
	return BreakerSettings{
		MaxRequests:  cfg.BreakerMaxRequests,
		Interval:     cfg.BreakerInterval,
		Timeout:      cfg.BreakerTimeout,
		MinRequests:  cfg.BreakerMinRequests,
		FailureRatio: cfg.BreakerFailureRatio,
	}
}

// BreakerStore wraps a Store so that a failing backend is cut off for a
// while instead of being hammered. ErrNotFound and context cancellation
// count as successes.
type BreakerStore struct {
	inner Store
	cb    *gobreaker.CircuitBreaker[any]
}

// NewBreakerStore wraps inner with a circuit breaker.
func NewBreakerStore(inner Store, s BreakerSettings) *BreakerStore {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= s.FailureRatio {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_ratio", ratio).
					Msg("opening store circuit breaker")
				return true
			}
			return false
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state transition")
			metrics.RecordBreakerTransition(name, from.String(), to.String(), stateValue(to))
		},
	})

	return &BreakerStore{inner: inner, cb: cb}
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// State reports the breaker state name: "closed", "half-open" or "open".
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

// Unwrap returns the wrapped store.
func (b *BreakerStore) Unwrap() Store { return b.inner }

func (b *BreakerStore) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	switch {
	case err == nil, errors.Is(err, ErrNotFound):
		metrics.RecordBreakerRequest(breakerName, "success")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordBreakerRequest(breakerName, "rejected")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		metrics.RecordBreakerRequest(breakerName, "failure")
	}
	return result, err
}

func run[T any](b *BreakerStore, fn func() (T, error)) (T, error) {
	res, err := b.execute(func() (any, error) { return fn() })
	if err != nil {
		var zero T
		return zero, err
	}
	v, ok := res.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", res)
	}
	return v, nil
}

// Find implements Store.
func (b *BreakerStore) Find(ctx context.Context, collection string, filter *Filter) ([]Document, error) {
	return run(b, func() ([]Document, error) { return b.inner.Find(ctx, collection, filter) })
}

// FindFirst implements Store.
func (b *BreakerStore) FindFirst(ctx context.Context, collection string, filter *Filter) (Document, error) {
	return run(b, func() (Document, error) { return b.inner.FindFirst(ctx, collection, filter) })
}

// FindOne implements Store.
func (b *BreakerStore) FindOne(ctx context.Context, collection, id string) (Document, error) {
	return run(b, func() (Document, error) { return b.inner.FindOne(ctx, collection, id) })
}

// ReplaceOne implements Store.
func (b *BreakerStore) ReplaceOne(ctx context.Context, collection, id string, body []byte, upsert bool) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.ReplaceOne(ctx, collection, id, body, upsert)
	})
	return err
}

// InsertMany implements Store.
func (b *BreakerStore) InsertMany(ctx context.Context, collection string, bodies [][]byte) ([]string, error) {
	return run(b, func() ([]string, error) { return b.inner.InsertMany(ctx, collection, bodies) })
}

// ReplaceAll implements Store.
func (b *BreakerStore) ReplaceAll(ctx context.Context, collection string, bodies [][]byte) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.ReplaceAll(ctx, collection, bodies)
	})
	return err
}

// Drop implements Store.
func (b *BreakerStore) Drop(ctx context.Context, collection string) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.Drop(ctx, collection)
	})
	return err
}

// Count implements Store.
func (b *BreakerStore) Count(ctx context.Context, collection string, filter *Filter) (int, error) {
	return run(b, func() (int, error) { return b.inner.Count(ctx, collection, filter) })
}

// Collections implements Store.
func (b *BreakerStore) Collections(ctx context.Context) ([]string, error) {
	return run(b, func() ([]string, error) { return b.inner.Collections(ctx) })
}

// Backend implements Store.
func (b *BreakerStore) Backend() string { return b.inner.Backend() }

// Close implements Store.
func (b *BreakerStore) Close() error { return b.inner.Close() }
