// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package storage

import (
	"errors"
	"reflect"
	"testing"
)

func testState() *ModelState {
	return &ModelState{
		Metric:        "cosine",
		NeighborCount: 6,
		Labels:        []string{"A", "B", "C"},
		Vectors: [][]float64{
			{5, 0, 3},
			{4, 0, 3},
			{0, 8, 0},
		},
	}
}

func TestEncodeDecodeModel(t *testing.T) {
	state := testState()
	blob, checksum, err := EncodeModel(state)
	if err != nil {
		t.Fatalf("EncodeModel() error = %v", err)
	}
	if len(checksum) != 64 {
		t.Errorf("checksum length = %d, want 64", len(checksum))
	}

	got, err := DecodeModel(blob, checksum)
	if err != nil {
		t.Fatalf("DecodeModel() error = %v", err)
	}
	if !reflect.DeepEqual(got, state) {
		t.Errorf("DecodeModel() = %+v, want %+v", got, state)
	}
}

func TestEncodeModelDeterministic(t *testing.T) {
	_, a, err := EncodeModel(testState())
	if err != nil {
		t.Fatalf("EncodeModel() error = %v", err)
	}
	_, b, err := EncodeModel(testState())
	if err != nil {
		t.Fatalf("EncodeModel() error = %v", err)
	}
	if a != b {
		t.Errorf("checksums differ for identical state: %s vs %s", a, b)
	}
}

func TestDecodeModelChecksumMismatch(t *testing.T) {
	blob, _, err := EncodeModel(testState())
	if err != nil {
		t.Fatalf("EncodeModel() error = %v", err)
	}
	_, err = DecodeModel(blob, "deadbeef")
	if !errors.Is(err, ErrChecksum) {
		t.Errorf("DecodeModel() error = %v, want ErrChecksum", err)
	}
}

func TestDecodeModelGarbage(t *testing.T) {
	if _, err := DecodeModel([]byte("not gzip"), ""); err == nil {
		t.Error("DecodeModel(garbage) error = nil, want error")
	}
}
