// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package recommend

import (
	"context"
	"errors"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/bookshelf/internal/database"
	"github.com/tomtom215/bookshelf/internal/models"
	"github.com/tomtom215/bookshelf/internal/recommend/storage"
)

func openStore(t *testing.T) database.Store {
	t.Helper()
	s, err := database.OpenBadger("", true)
	if err != nil {
		t.Fatalf("OpenBadger() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// fanMatrix has A on the x axis and B..F at growing angles from it, so
// B..F are A's five nearest titles in that order and G is the farthest.
func fanMatrix() *storage.MatrixSnapshot {
	return &storage.MatrixSnapshot{
		Books:   []string{"A", "B", "C", "D", "E", "F", "G"},
		UserIDs: []string{"1", "2"},
		Data: [][]float64{
			{1, 0},
			{10, 1},
			{10, 2},
			{10, 3},
			{10, 4},
			{10, 5},
			{0, 1},
		},
	}
}

func saveMatrix(t *testing.T, store database.Store, m *storage.MatrixSnapshot) {
	t.Helper()
	if err := storage.NewArtifacts(store).SaveMatrix(context.Background(), m); err != nil {
		t.Fatalf("SaveMatrix() error = %v", err)
	}
}

func train(t *testing.T, store database.Store) *storage.ModelInfo {
	t.Helper()
	tr, err := NewTrainer(store, nil)
	if err != nil {
		t.Fatalf("NewTrainer() error = %v", err)
	}
	info, err := tr.Train(context.Background())
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	return info
}

func newRecommender(t *testing.T, store database.Store) *Recommender {
	t.Helper()
	r, err := NewRecommender(store, nil)
	if err != nil {
		t.Fatalf("NewRecommender() error = %v", err)
	}
	return r
}

func titles(recs []Recommendation) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Title
	}
	return out
}

func TestRecommendNearestTitles(t *testing.T) {
	for _, backend := range []string{"badger", "duckdb"} {
		t.Run(backend, func(t *testing.T) {
			var store database.Store
			if backend == "badger" {
				store = openStore(t)
			} else {
				d, err := database.OpenDuckDB("", true)
				if err != nil {
					t.Fatalf("OpenDuckDB() error = %v", err)
				}
				t.Cleanup(func() { _ = d.Close() })
				store = d
			}

			saveMatrix(t, store, fanMatrix())
			info := train(t, store)
			if len(info.BookNames) != 7 || info.NeighborCount != 6 || info.Metric != "cosine" {
				t.Errorf("Train() info = %+v", info)
			}

			recs, err := newRecommender(t, store).Recommend(context.Background(), "A")
			if err != nil {
				t.Fatalf("Recommend() error = %v", err)
			}
			want := []string{"B", "C", "D", "E", "F"}
			got := titles(recs)
			if len(got) != len(want) {
				t.Fatalf("Recommend(A) = %v, want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("Recommend(A)[%d] = %q, want %q", i, got[i], want[i])
				}
				if recs[i].Rank != i+1 {
					t.Errorf("Recommend(A)[%d].Rank = %d, want %d", i, recs[i].Rank, i+1)
				}
				if i > 0 && recs[i].Score > recs[i-1].Score {
					t.Errorf("scores increase at rank %d: %v > %v", i+1, recs[i].Score, recs[i-1].Score)
				}
			}
		})
	}
}

func TestRecommendNeverReturnsQuery(t *testing.T) {
	store := openStore(t)
	saveMatrix(t, store, fanMatrix())
	train(t, store)
	r := newRecommender(t, store)

	for _, title := range fanMatrix().Books {
		recs, err := r.Recommend(context.Background(), title)
		if err != nil {
			t.Fatalf("Recommend(%q) error = %v", title, err)
		}
		if len(recs) != 5 {
			t.Errorf("Recommend(%q) len = %d, want 5", title, len(recs))
		}
		for _, rec := range recs {
			if rec.Title == title {
				t.Errorf("Recommend(%q) returned itself", title)
			}
		}
	}
}

func TestRecommendIdenticalRows(t *testing.T) {
	store := openStore(t)
	saveMatrix(t, store, &storage.MatrixSnapshot{
		Books:   []string{"A", "B", "C"},
		UserIDs: []string{"1", "2"},
		Data:    [][]float64{{1, 0}, {1, 0}, {2, 0}},
	})
	train(t, store)

	recs, err := newRecommender(t, store).Recommend(context.Background(), "B")
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	got := titles(recs)
	if len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Errorf("Recommend(B) = %v, want [A C]", got)
	}
	for _, rec := range recs {
		if rec.Score != 1 {
			t.Errorf("Recommend(B) %s score = %v, want 1", rec.Title, rec.Score)
		}
	}
}

func TestRecommendFewItems(t *testing.T) {
	store := openStore(t)
	saveMatrix(t, store, &storage.MatrixSnapshot{
		Books:   []string{"A", "B", "C"},
		UserIDs: []string{"1", "2"},
		Data:    [][]float64{{1, 0}, {1, 1}, {0, 1}},
	})
	train(t, store)

	recs, err := newRecommender(t, store).Recommend(context.Background(), "A")
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if got := titles(recs); len(got) != 2 || got[0] != "B" || got[1] != "C" {
		t.Errorf("Recommend(A) = %v, want [B C]", got)
	}
}

func TestRecommendErrors(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	r := newRecommender(t, store)

	if _, err := r.Recommend(ctx, "A"); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("Recommend() without model error = %v, want ErrModelUnavailable", err)
	}
	if info, err := r.Status(ctx); err != nil || info != nil {
		t.Errorf("Status() without model = %v, %v, want nil, nil", info, err)
	}
	if _, err := storage.NewArtifacts(store).LoadModelSnapshot(ctx); !errors.Is(err, storage.ErrNoArtifact) {
		t.Errorf("Recommend() trained a model: LoadModelSnapshot() error = %v", err)
	}

	saveMatrix(t, store, fanMatrix())
	train(t, store)

	if _, err := r.Recommend(ctx, "Nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Recommend(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := r.Recommend(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Recommend(wrong case) error = %v, want ErrNotFound", err)
	}
}

func TestTrainRejectsBadMatrix(t *testing.T) {
	tests := []struct {
		name   string
		matrix *storage.MatrixSnapshot
	}{
		{"empty", &storage.MatrixSnapshot{}},
		{"no users", &storage.MatrixSnapshot{Books: []string{"A"}, Data: [][]float64{{}}}},
		{"ragged", &storage.MatrixSnapshot{
			Books:   []string{"A", "B"},
			UserIDs: []string{"1", "2"},
			Data:    [][]float64{{1, 2}, {3}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := openStore(t)
			saveMatrix(t, store, tt.matrix)
			tr, _ := NewTrainer(store, nil)
			if _, err := tr.Train(context.Background()); !errors.Is(err, ErrTraining) {
				t.Errorf("Train() error = %v, want ErrTraining", err)
			}
		})
	}
}

func TestTrainWithoutMatrix(t *testing.T) {
	tr, _ := NewTrainer(openStore(t), nil)
	if _, err := tr.Train(context.Background()); !errors.Is(err, ErrTraining) {
		t.Errorf("Train() error = %v, want ErrTraining", err)
	}
}

func TestFailedTrainingKeepsModel(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	saveMatrix(t, store, fanMatrix())
	before := train(t, store)

	saveMatrix(t, store, &storage.MatrixSnapshot{})
	tr, _ := NewTrainer(store, nil)
	if _, err := tr.Train(ctx); err == nil {
		t.Fatal("Train() on empty matrix error = nil")
	}

	snap, err := storage.NewArtifacts(store).LoadModelSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadModelSnapshot() error = %v", err)
	}
	if snap.Checksum != before.Checksum {
		t.Errorf("checksum = %s, want %s", snap.Checksum, before.Checksum)
	}
}

func TestServesNewlyPersistedModel(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	saveMatrix(t, store, fanMatrix())
	train(t, store)
	r := newRecommender(t, store)

	first, err := r.Model(ctx)
	if err != nil {
		t.Fatalf("Model() error = %v", err)
	}
	if again, _ := r.Model(ctx); again != first {
		t.Error("Model() decoded an unchanged snapshot twice")
	}
	if _, _, err := r.RecommendWithMetadata(ctx, "A"); err != nil {
		t.Fatalf("RecommendWithMetadata(A) error = %v", err)
	}

	// A retrain that nobody reports to the recommender.
	saveMatrix(t, store, &storage.MatrixSnapshot{
		Books:   []string{"X", "Y"},
		UserIDs: []string{"1"},
		Data:    [][]float64{{1}, {2}},
	})
	want := train(t, store)

	recs, err := r.Recommend(ctx, "X")
	if err != nil {
		t.Fatalf("Recommend(X) error = %v", err)
	}
	if got := titles(recs); len(got) != 1 || got[0] != "Y" {
		t.Errorf("Recommend(X) = %v, want [Y]", got)
	}
	if _, err := r.Recommend(ctx, "A"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Recommend(A) error = %v, want ErrNotFound", err)
	}
	if _, _, err := r.RecommendWithMetadata(ctx, "A"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RecommendWithMetadata(A) error = %v, want ErrNotFound", err)
	}

	info, err := r.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if info == nil || len(info.BookNames) != 2 || info.Checksum != want.Checksum {
		t.Errorf("Status() = %+v, want checksum %s with 2 books", info, want.Checksum)
	}
}

func TestRecommendWithMetadata(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	saveMatrix(t, store, fanMatrix())
	train(t, store)

	facts := []models.FactRow{
		{UserID: "1", ISBN: "b-1", Title: "B", Author: "Bee", Rating: 7},
		{UserID: "2", ISBN: "b-2", Title: "B", Author: "Second", Rating: 3},
		{UserID: "1", ISBN: "c-1", Title: "c", Author: "Sea", Rating: 5},
	}
	bodies := make([][]byte, len(facts))
	for i := range facts {
		b, err := json.Marshal(&facts[i])
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		bodies[i] = b
	}
	if err := store.ReplaceAll(ctx, database.CollectionFinalDataset, bodies); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}

	r := newRecommender(t, store)
	resp, cached, err := r.RecommendWithMetadata(ctx, "A")
	if err != nil {
		t.Fatalf("RecommendWithMetadata() error = %v", err)
	}
	if cached {
		t.Error("first RecommendWithMetadata() reported cached")
	}
	if resp.SearchedTitle != "A" || len(resp.Recommendations) != 5 {
		t.Fatalf("RecommendWithMetadata() = %+v", resp)
	}

	b, c, d := resp.Recommendations[0], resp.Recommendations[1], resp.Recommendations[2]
	if b.Metadata == nil || b.Metadata.Author != "Bee" || b.FromCollection != "final_dataset" {
		t.Errorf("B metadata = %+v from %q, want first B row", b.Metadata, b.FromCollection)
	}
	if c.Metadata == nil || c.Metadata.Author != "Sea" {
		t.Errorf("C metadata = %+v, want case-insensitive match", c.Metadata)
	}
	if d.Metadata != nil || d.FromCollection != "" {
		t.Errorf("D metadata = %+v from %q, want none", d.Metadata, d.FromCollection)
	}

	if _, cached, _ := r.RecommendWithMetadata(ctx, "A"); !cached {
		t.Error("second RecommendWithMetadata() not cached")
	}
	r.Invalidate()
	if _, cached, _ := r.RecommendWithMetadata(ctx, "A"); cached {
		t.Error("RecommendWithMetadata() cached after Invalidate")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"one neighbor", func(c *Config) { c.NeighborCount = 1 }, true},
		{"no results", func(c *Config) { c.ResultLimit = 0 }, true},
		{"euclidean", func(c *Config) { c.Metric = "euclidean" }, true},
		{"no model cache", func(c *Config) { c.ModelCacheSize = 0 }, true},
		{"response cache off", func(c *Config) { c.ResponseCacheSize = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
