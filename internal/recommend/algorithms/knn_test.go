// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package algorithms

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 0},
		{"scaled", []float64{1, 2, 3}, []float64{2, 4, 6}, 0},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 1},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, 2},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 1},
		{"both zero", []float64{0, 0}, []float64{0, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineDistance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("CosineDistance() = %v, want %v", got, tt.want)
			}
			if got < 0 || got > 2 {
				t.Errorf("CosineDistance() = %v, outside [0, 2]", got)
			}
		})
	}
}

func TestNewBruteForceKNN(t *testing.T) {
	if _, err := NewBruteForceKNN(KNNConfig{Metric: "euclidean"}); err == nil {
		t.Error("NewBruteForceKNN(euclidean) error = nil, want error")
	}
	k, err := NewBruteForceKNN(KNNConfig{})
	if err != nil {
		t.Fatalf("NewBruteForceKNN() error = %v", err)
	}
	if k.Metric() != MetricCosine {
		t.Errorf("Metric() = %q, want %q", k.Metric(), MetricCosine)
	}
	if k.IsFitted() {
		t.Error("IsFitted() = true before Fit")
	}
	if _, err := k.KNeighbors(context.Background(), []float64{1}, 1); !errors.Is(err, ErrNotFitted) {
		t.Errorf("KNeighbors() before Fit error = %v, want ErrNotFitted", err)
	}
}

func TestBruteForceKNN_Fit(t *testing.T) {
	tests := []struct {
		name    string
		vectors [][]float64
		wantErr bool
	}{
		{"empty", nil, true},
		{"no columns", [][]float64{{}}, true},
		{"ragged", [][]float64{{1, 2}, {1}}, true},
		{"ok", [][]float64{{1, 2}, {3, 4}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, _ := NewBruteForceKNN(DefaultKNNConfig())
			err := k.Fit(context.Background(), tt.vectors)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Fit() error = %v, wantErr %v", err, tt.wantErr)
			}
			if k.IsFitted() == tt.wantErr {
				t.Errorf("IsFitted() = %v, want %v", k.IsFitted(), !tt.wantErr)
			}
		})
	}
}

func TestBruteForceKNN_FitCopiesInput(t *testing.T) {
	k, _ := NewBruteForceKNN(DefaultKNNConfig())
	rows := [][]float64{{1, 0}, {0, 1}}
	if err := k.Fit(context.Background(), rows); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	rows[0][0] = 99
	got, ok := k.Row(0)
	if !ok || got[0] != 1 {
		t.Errorf("Row(0) = %v, want [1 0]", got)
	}
	if _, ok := k.Row(2); ok {
		t.Error("Row(2) ok = true, want false")
	}
}

func TestBruteForceKNN_KNeighbors(t *testing.T) {
	rows := [][]float64{
		{5, 5, 0, 0}, // 0
		{5, 5, 0, 0}, // 1: same as 0
		{5, 4, 1, 0}, // 2
		{0, 0, 5, 5}, // 3
		{0, 0, 0, 0}, // 4: zero row
		{5, 5, 0, 0}, // 5: tie with 1
	}
	k, _ := NewBruteForceKNN(DefaultKNNConfig())
	if err := k.Fit(context.Background(), rows); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	got, err := k.KNeighbors(context.Background(), rows[0], 4)
	if err != nil {
		t.Fatalf("KNeighbors() error = %v", err)
	}
	wantIdx := []int{0, 1, 5, 2}
	if len(got) != len(wantIdx) {
		t.Fatalf("KNeighbors() len = %d, want %d", len(got), len(wantIdx))
	}
	for i, n := range got {
		if n.Index != wantIdx[i] {
			t.Errorf("KNeighbors()[%d].Index = %d, want %d", i, n.Index, wantIdx[i])
		}
		if i > 0 && n.Distance < got[i-1].Distance {
			t.Errorf("distances not non-decreasing at %d: %v < %v", i, n.Distance, got[i-1].Distance)
		}
	}

	all, err := k.KNeighbors(context.Background(), rows[0], 100)
	if err != nil {
		t.Fatalf("KNeighbors(100) error = %v", err)
	}
	if len(all) != len(rows) {
		t.Errorf("KNeighbors(100) len = %d, want %d", len(all), len(rows))
	}

	if _, err := k.KNeighbors(context.Background(), []float64{1}, 1); !errors.Is(err, ErrDimension) {
		t.Errorf("KNeighbors(short query) error = %v, want ErrDimension", err)
	}
}

func TestBruteForceKNN_ParallelMatchesSerial(t *testing.T) {
	rows := make([][]float64, 257)
	for i := range rows {
		rows[i] = []float64{float64(i % 7), float64(i % 11), float64(i % 3), 1}
	}

	serial, _ := NewBruteForceKNN(KNNConfig{NumWorkers: 1})
	parallel, _ := NewBruteForceKNN(KNNConfig{NumWorkers: 4, ParallelThreshold: 10})
	for _, k := range []*BruteForceKNN{serial, parallel} {
		if err := k.Fit(context.Background(), rows); err != nil {
			t.Fatalf("Fit() error = %v", err)
		}
	}

	a, err := serial.KNeighbors(context.Background(), rows[10], 20)
	if err != nil {
		t.Fatalf("serial KNeighbors() error = %v", err)
	}
	b, err := parallel.KNeighbors(context.Background(), rows[10], 20)
	if err != nil {
		t.Fatalf("parallel KNeighbors() error = %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("result %d: serial %+v, parallel %+v", i, a[i], b[i])
		}
	}
}

func TestBruteForceKNN_CanceledContext(t *testing.T) {
	rows := make([][]float64, 64)
	for i := range rows {
		rows[i] = []float64{float64(i), 1}
	}
	k, _ := NewBruteForceKNN(KNNConfig{NumWorkers: 4, ParallelThreshold: 8})
	if err := k.Fit(context.Background(), rows); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := k.KNeighbors(ctx, rows[0], 3); !errors.Is(err, context.Canceled) {
		t.Errorf("KNeighbors() error = %v, want context.Canceled", err)
	}
}
