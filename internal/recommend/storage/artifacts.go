// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/bookshelf/internal/database"
)

// Fixed document ids of the persisted artifacts.
const (
	MatrixDocID = "current_pivot"
	ModelDocID  = "knn_model"
)

// ErrNoArtifact is returned when the requested artifact was never written.
var ErrNoArtifact = errors.New("artifact not found")

// MatrixMetadata describes a persisted matrix.
type MatrixMetadata struct {
	Shape       string    `json:"shape"`
	LastUpdated time.Time `json:"last_updated"`
}

// MatrixSnapshot is the persisted rating matrix. Books label the rows and
// UserIDs the columns.
type MatrixSnapshot struct {
	Books    []string       `json:"books"`
	UserIDs  []string       `json:"user_ids"`
	Data     [][]float64    `json:"data"`
	Metadata MatrixMetadata `json:"metadata"`
}

// ShapeString formats matrix dimensions as "(rows, cols)".
func ShapeString(rows, cols int) string {
	return fmt.Sprintf("(%d, %d)", rows, cols)
}

// ModelSnapshot is the persisted model document. BookNames duplicates the
// labels inside the blob so status queries need not decode it.
type ModelSnapshot struct {
	Model         []byte    `json:"model"`
	BookNames     []string  `json:"book_names"`
	TrainedAt     time.Time `json:"trained_at"`
	Checksum      string    `json:"checksum"`
	NeighborCount int       `json:"neighbor_count"`
	Metric        string    `json:"metric"`
}

// ModelInfo is a model snapshot without its blob.
type ModelInfo struct {
	BookNames     []string  `json:"book_names"`
	TrainedAt     time.Time `json:"trained_at"`
	Checksum      string    `json:"checksum"`
	NeighborCount int       `json:"neighbor_count"`
	Metric        string    `json:"metric"`
}

// Artifacts reads and writes snapshots in a document store. Each write is
// one ReplaceOne call, so readers see either the previous snapshot or the
// new one.
type Artifacts struct {
	store database.Store
}

// NewArtifacts creates an artifact accessor over store.
func NewArtifacts(store database.Store) *Artifacts {
	return &Artifacts{store: store}
}

// SaveMatrix replaces the persisted matrix.
func (a *Artifacts) SaveMatrix(ctx context.Context, m *MatrixSnapshot) error {
	if len(m.Data) != len(m.Books) {
		return fmt.Errorf("matrix has %d rows but %d book labels", len(m.Data), len(m.Books))
	}
	m.Metadata.Shape = ShapeString(len(m.Books), len(m.UserIDs))
	if m.Metadata.LastUpdated.IsZero() {
		m.Metadata.LastUpdated = time.Now().UTC()
	}
	return a.put(ctx, database.CollectionBookPivot, MatrixDocID, m)
}

// LoadMatrix returns the persisted matrix or ErrNoArtifact.
func (a *Artifacts) LoadMatrix(ctx context.Context) (*MatrixSnapshot, error) {
	var m MatrixSnapshot
	if err := a.get(ctx, database.CollectionBookPivot, MatrixDocID, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveModel encodes state and replaces the persisted model in one write.
func (a *Artifacts) SaveModel(ctx context.Context, state *ModelState, trainedAt time.Time) (*ModelInfo, error) {
	if len(state.Labels) != len(state.Vectors) {
		return nil, fmt.Errorf("model has %d vectors but %d labels", len(state.Vectors), len(state.Labels))
	}
	blob, checksum, err := EncodeModel(state)
	if err != nil {
		return nil, err
	}
	snap := &ModelSnapshot{
		Model:         blob,
		BookNames:     state.Labels,
		TrainedAt:     trainedAt.UTC(),
		Checksum:      checksum,
		NeighborCount: state.NeighborCount,
		Metric:        state.Metric,
	}
	if err := a.put(ctx, database.CollectionModelArtifacts, ModelDocID, snap); err != nil {
		return nil, err
	}
	return snap.Info(), nil
}

// LoadModelSnapshot returns the persisted model document without decoding
// the blob.
func (a *Artifacts) LoadModelSnapshot(ctx context.Context) (*ModelSnapshot, error) {
	var snap ModelSnapshot
	if err := a.get(ctx, database.CollectionModelArtifacts, ModelDocID, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// DecodeSnapshot verifies and decodes a snapshot's blob. The decoded labels
// must match the stored book names.
func DecodeSnapshot(snap *ModelSnapshot) (*ModelState, error) {
	state, err := DecodeModel(snap.Model, snap.Checksum)
	if err != nil {
		return nil, err
	}
	if len(state.Labels) != len(snap.BookNames) {
		return nil, fmt.Errorf("model has %d labels, document lists %d book names", len(state.Labels), len(snap.BookNames))
	}
	for i := range state.Labels {
		if state.Labels[i] != snap.BookNames[i] {
			return nil, fmt.Errorf("model label %d is %q, document lists %q", i, state.Labels[i], snap.BookNames[i])
		}
	}
	if len(state.Vectors) != len(state.Labels) {
		return nil, fmt.Errorf("model has %d vectors but %d labels", len(state.Vectors), len(state.Labels))
	}
	return state, nil
}

// Info drops the blob.
func (s *ModelSnapshot) Info() *ModelInfo {
	return &ModelInfo{
		BookNames:     s.BookNames,
		TrainedAt:     s.TrainedAt,
		Checksum:      s.Checksum,
		NeighborCount: s.NeighborCount,
		Metric:        s.Metric,
	}
}

func (a *Artifacts) put(ctx context.Context, collection, id string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if err := a.store.ReplaceOne(ctx, collection, id, body, true); err != nil {
		return fmt.Errorf("write %s/%s: %w", collection, id, err)
	}
	return nil
}

func (a *Artifacts) get(ctx context.Context, collection, id string, v interface{}) error {
	doc, err := a.store.FindOne(ctx, collection, id)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNoArtifact)
	}
	if err != nil {
		return fmt.Errorf("read %s/%s: %w", collection, id, err)
	}
	return doc.Decode(v)
}
