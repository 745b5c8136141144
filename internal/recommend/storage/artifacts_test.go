// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/tomtom215/bookshelf/internal/database"
)

func openStores(t *testing.T) map[string]database.Store {
	t.Helper()
	b, err := database.OpenBadger("", true)
	if err != nil {
		t.Fatalf("OpenBadger() error = %v", err)
	}
	d, err := database.OpenDuckDB("", true)
	if err != nil {
		t.Fatalf("OpenDuckDB() error = %v", err)
	}
	t.Cleanup(func() {
		_ = b.Close()
		_ = d.Close()
	})
	return map[string]database.Store{"badger": b, "duckdb": d}
}

func TestArtifactsMatrixRoundTrip(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			a := NewArtifacts(store)
			ctx := context.Background()

			if _, err := a.LoadMatrix(ctx); !errors.Is(err, ErrNoArtifact) {
				t.Fatalf("LoadMatrix() on empty store error = %v, want ErrNoArtifact", err)
			}

			in := &MatrixSnapshot{
				Books:   []string{"A", "B"},
				UserIDs: []string{"1", "2", "10"},
				Data:    [][]float64{{5, 0, 1.5}, {0, 7, 0}},
			}
			if err := a.SaveMatrix(ctx, in); err != nil {
				t.Fatalf("SaveMatrix() error = %v", err)
			}

			got, err := a.LoadMatrix(ctx)
			if err != nil {
				t.Fatalf("LoadMatrix() error = %v", err)
			}
			if !reflect.DeepEqual(got.Books, in.Books) || !reflect.DeepEqual(got.UserIDs, in.UserIDs) {
				t.Errorf("labels = %v/%v, want %v/%v", got.Books, got.UserIDs, in.Books, in.UserIDs)
			}
			if !reflect.DeepEqual(got.Data, in.Data) {
				t.Errorf("Data = %v, want %v", got.Data, in.Data)
			}
			if got.Metadata.Shape != "(2, 3)" {
				t.Errorf("Shape = %q, want %q", got.Metadata.Shape, "(2, 3)")
			}
			if got.Metadata.LastUpdated.IsZero() {
				t.Error("LastUpdated is zero")
			}
		})
	}
}

func TestArtifactsSaveMatrixRejectsMismatch(t *testing.T) {
	a := NewArtifacts(openStores(t)["badger"])
	err := a.SaveMatrix(context.Background(), &MatrixSnapshot{Books: []string{"A"}, Data: nil})
	if err == nil {
		t.Error("SaveMatrix() with mismatched rows error = nil, want error")
	}
}

func TestArtifactsModelRoundTrip(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			a := NewArtifacts(store)
			ctx := context.Background()

			if _, err := a.LoadModelSnapshot(ctx); !errors.Is(err, ErrNoArtifact) {
				t.Fatalf("LoadModelSnapshot() on empty store error = %v, want ErrNoArtifact", err)
			}

			trainedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			info, err := a.SaveModel(ctx, testState(), trainedAt)
			if err != nil {
				t.Fatalf("SaveModel() error = %v", err)
			}

			snap, err := a.LoadModelSnapshot(ctx)
			if err != nil {
				t.Fatalf("LoadModelSnapshot() error = %v", err)
			}
			if snap.Checksum != info.Checksum {
				t.Errorf("Checksum = %s, want %s", snap.Checksum, info.Checksum)
			}
			if !snap.TrainedAt.Equal(trainedAt) {
				t.Errorf("TrainedAt = %v, want %v", snap.TrainedAt, trainedAt)
			}
			if snap.NeighborCount != 6 || snap.Metric != "cosine" {
				t.Errorf("NeighborCount/Metric = %d/%s, want 6/cosine", snap.NeighborCount, snap.Metric)
			}

			state, err := DecodeSnapshot(snap)
			if err != nil {
				t.Fatalf("DecodeSnapshot() error = %v", err)
			}
			if !reflect.DeepEqual(state, testState()) {
				t.Errorf("DecodeSnapshot() = %+v, want %+v", state, testState())
			}
		})
	}
}

func TestDecodeSnapshotLabelMismatch(t *testing.T) {
	blob, checksum, err := EncodeModel(testState())
	if err != nil {
		t.Fatalf("EncodeModel() error = %v", err)
	}
	snap := &ModelSnapshot{Model: blob, Checksum: checksum, BookNames: []string{"A", "B", "X"}}
	if _, err := DecodeSnapshot(snap); err == nil {
		t.Error("DecodeSnapshot() with mismatched names error = nil, want error")
	}
}

func TestShapeString(t *testing.T) {
	if got := ShapeString(3, 40); got != "(3, 40)" {
		t.Errorf("ShapeString(3, 40) = %q, want %q", got, "(3, 40)")
	}
}
