// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

// Package database implements the document store that holds fact rows and
// the persisted pipeline artifacts.
//
// Documents are JSON bodies grouped into named collections and addressed by
// an id that is unique within its collection. Two backends implement Store:
// Badger (embedded key-value, the default) and DuckDB (one table). Both order
// Find results by id; ids assigned by InsertMany and ReplaceAll are
// time-ordered UUIDv7 strings, so for those documents id order is insertion
// order.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/bookshelf/internal/config"
	"github.com/tomtom215/bookshelf/internal/metrics"
)

// Collection names used by Bookshelf.
const (
	CollectionFinalDataset   = "final_dataset"
	CollectionBookPivot      = "book_pivot"
	CollectionModelArtifacts = "model_artifacts"
)

var (
	// ErrNotFound is returned when a document or collection does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrUnavailable is returned when the store refuses work, for example
	// while its circuit breaker is open.
	ErrUnavailable = errors.New("document store unavailable")

	// ErrClosed is returned for calls made after Close.
	ErrClosed = errors.New("document store closed")
)

// Document is a stored JSON body and its id.
type Document struct {
	ID   string
	Body json.RawMessage
}

// Decode unmarshals the body into v.
func (d Document) Decode(v interface{}) error {
	if err := json.Unmarshal(d.Body, v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// Filter selects documents whose top-level string Field equals Value.
// FoldCase compares case-insensitively. A nil *Filter matches everything.
type Filter struct {
	Field    string
	Value    string
	FoldCase bool
}

// Eq builds an exact-match filter.
func Eq(field, value string) *Filter {
	return &Filter{Field: field, Value: value}
}

// EqFold builds a case-insensitive filter.
func EqFold(field, value string) *Filter {
	return &Filter{Field: field, Value: value, FoldCase: true}
}

// Match reports whether body satisfies the filter. Bodies that are not JSON
// objects, or whose field is missing or not a string, never match.
func (f *Filter) Match(body []byte) bool {
	if f == nil {
		return true
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return false
	}
	raw, ok := fields[f.Field]
	if !ok {
		return false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	if f.FoldCase {
		return strings.EqualFold(s, f.Value)
	}
	return s == f.Value
}

// Store is a minimal document store.
//
// ReplaceOne and ReplaceAll are atomic: a concurrent reader sees either the
// previous or the new contents, never a mix. InsertMany is not.
type Store interface {
	// Find returns all documents in collection matching filter, ordered by id.
	// A missing collection yields an empty slice.
	Find(ctx context.Context, collection string, filter *Filter) ([]Document, error)

	// FindFirst returns the first document (by id) matching filter or ErrNotFound.
	FindFirst(ctx context.Context, collection string, filter *Filter) (Document, error)

	// FindOne returns the document with the given id or ErrNotFound.
	FindOne(ctx context.Context, collection, id string) (Document, error)

	// ReplaceOne overwrites the document with id. With upsert a missing
	// document is created; without it ErrNotFound is returned.
	ReplaceOne(ctx context.Context, collection, id string, body []byte, upsert bool) error

	// InsertMany appends documents with freshly assigned ids and returns them.
	InsertMany(ctx context.Context, collection string, bodies [][]byte) ([]string, error)

	// ReplaceAll swaps the whole contents of collection for bodies.
	ReplaceAll(ctx context.Context, collection string, bodies [][]byte) error

	// Drop removes a collection and its documents. Dropping a missing
	// collection is not an error.
	Drop(ctx context.Context, collection string) error

	// Count returns the number of documents matching filter.
	Count(ctx context.Context, collection string, filter *Filter) (int, error)

	// Collections lists collection names in lexical order.
	Collections(ctx context.Context) ([]string, error)

	// Backend names the implementation, "badger" or "duckdb".
	Backend() string

	Close() error
}

// Open builds the configured backend wrapped in a circuit breaker.
func Open(cfg *config.StoreConfig) (Store, error) {
	var (
		inner Store
		err   error
	)
	switch cfg.Backend {
	case "", "badger":
		inner, err = OpenBadger(cfg.Path, cfg.InMemory)
	case "duckdb":
		inner, err = OpenDuckDB(cfg.Path, cfg.InMemory)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewBreakerStore(inner, BreakerSettingsFromConfig(cfg)), nil
}

// NewID returns a time-ordered document id.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func validateCollection(name string) error {
	if name == "" {
		return fmt.Errorf("collection name must not be empty")
	}
	if strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("collection name %q contains a reserved character", name)
	}
	return nil
}

func observe(backend, operation, collection string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	metrics.RecordStoreOperation(backend, operation, collection, time.Since(start), err)
}
