// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

// Package storage persists pipeline artifacts: the rating matrix and the
// trained neighbor model.
//
// # Storage Format
//
// Both artifacts are single documents stored under fixed ids and replaced
// wholesale on every write. The model state is gob encoded, checksummed
// with SHA-256 over the raw encoding and gzip compressed; the checksum is
// stored next to the blob and verified on every load.
package storage

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ErrChecksum is returned when a decoded model does not match its checksum.
var ErrChecksum = errors.New("model checksum mismatch")

// ModelState is the serializable state of a fitted neighbor index. Labels
// and vectors travel together so they can never be loaded out of step.
type ModelState struct {
	Metric        string
	NeighborCount int
	Labels        []string
	Vectors       [][]float64
}

// EncodeModel serializes state and returns the compressed blob and the
// hex SHA-256 checksum of the uncompressed encoding.
func EncodeModel(state *ModelState) (blob []byte, checksum string, err error) {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(state); err != nil {
		return nil, "", fmt.Errorf("encode model: %w", err)
	}

	hash := sha256.Sum256(raw.Bytes())
	checksum = hex.EncodeToString(hash[:])

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw.Bytes()); err != nil {
		return nil, "", fmt.Errorf("compress model: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize compression: %w", err)
	}
	return compressed.Bytes(), checksum, nil
}

// DecodeModel reverses EncodeModel. An empty checksum skips verification.
func DecodeModel(blob []byte, checksum string) (*ModelState, error) {
	gzr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("decompress model: %w", err)
	}
	defer func() { _ = gzr.Close() }()

	raw, err := io.ReadAll(gzr)
	if err != nil {
		return nil, fmt.Errorf("read decompressed model: %w", err)
	}

	if checksum != "" {
		hash := sha256.Sum256(raw)
		if got := hex.EncodeToString(hash[:]); got != checksum {
			return nil, fmt.Errorf("%w: expected %s, got %s", ErrChecksum, checksum, got)
		}
	}

	var state ModelState
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&state); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return &state, nil
}
