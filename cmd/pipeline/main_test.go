// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/bookshelf/internal/config"
	"github.com/tomtom215/bookshelf/internal/recommend"
)

func rawConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		return p
	}
	return &config.Config{
		Store: config.StoreConfig{Backend: "badger", InMemory: true},
		Data: config.DataConfig{
			BooksPath: write("Books.csv",
				"ISBN;Book-Title;Book-Author;Year-Of-Publication;Publisher;Image-URL-S;Image-URL-M;Image-URL-L\n"+
					"1;A;Ann;2001;P;s;m;l1\n2;B;Bob;2002;P;s;m;l2\n3;C;Cy;2003;P;s;m;l3\n"),
			UsersPath: write("Users.csv", "User-ID,Location,Age\n10,x,20\n20,y,30\n30,z,40\n"),
			RatingsPath: write("Ratings.csv",
				"User-ID,ISBN,Book-Rating\n10,1,5\n10,2,3\n20,1,4\n20,2,0\n20,3,7\n30,1,9\n40,1,8\n40,2,8\n"),
		},
		Recommend: config.RecommendConfig{
			NeighborCount:       6,
			ResultLimit:         5,
			Metric:              "cosine",
			ActiveUserThreshold: 1,
			MinItemRatings:      2,
			QueueSize:           1,
			ModelCacheSize:      1,
		},
	}
}

func TestRunAllStages(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), rawConfig(t), options{stage: stageAll}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	var got summary
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("summary is not JSON: %v: %s", err, out.String())
	}
	if got.Pipeline == nil || got.Pipeline.Shape != "(2, 2)" || !got.Pipeline.Seeded {
		t.Errorf("pipeline = %+v, want seeded (2, 2)", got.Pipeline)
	}
	if got.Model == nil || got.Model.BookCount != 2 || got.Model.Checksum == "" {
		t.Errorf("model = %+v, want 2 books", got.Model)
	}
	if got.Store != "badger" {
		t.Errorf("store = %q, want badger", got.Store)
	}
}

func TestRunStages(t *testing.T) {
	tests := []struct {
		stage    string
		wantErr  error
		pipeline bool
		model    bool
		anyErr   bool
	}{
		{stage: stagePipeline, pipeline: true},
		// a fresh in-memory store has no matrix to train from
		{stage: stageTrain, wantErr: recommend.ErrTraining},
		{stage: "bogus", anyErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			var out bytes.Buffer
			err := run(context.Background(), rawConfig(t), options{stage: tt.stage}, &out)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("run() error = %v, want %v", err, tt.wantErr)
				}
				return
			case tt.anyErr:
				if err == nil {
					t.Fatal("run() error = nil, want an error")
				}
				return
			case err != nil:
				t.Fatalf("run() error = %v", err)
			}

			var got summary
			if err := json.Unmarshal(out.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if (got.Pipeline != nil) != tt.pipeline || (got.Model != nil) != tt.model {
				t.Errorf("summary = %+v, want pipeline %v model %v", got, tt.pipeline, tt.model)
			}
		})
	}
}
