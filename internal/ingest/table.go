// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

// Package ingest reads the raw books, users and ratings CSV tables and
// uploaded fact-row files.
//
// Raw tables are kept as untyped string cells addressed by column name;
// renaming, typing and filtering happen in the pipeline's normalizer.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tomtom215/bookshelf/internal/recommend"
)

// Table is a CSV file held in memory.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string

	index map[string]int
}

// NewTable builds a table and its column index. Duplicate column names keep
// the first occurrence.
func NewTable(name string, header []string, rows [][]string) *Table {
	t := &Table{Name: name, Header: header, Rows: rows, index: make(map[string]int, len(header))}
	for i, h := range header {
		if _, ok := t.index[h]; !ok {
			t.index[h] = i
		}
	}
	return t
}

// Column returns the position of the named column.
func (t *Table) Column(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// Missing lists the names not present in the header, in argument order.
func (t *Table) Missing(names ...string) []string {
	var out []string
	for _, n := range names {
		if _, ok := t.index[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// Cell returns the trimmed value of column col in row, or "" when the row
// is short.
func Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Stats summarizes one read.
type Stats struct {
	Table     string
	Rows      int
	Malformed int
	StartTime time.Time
	EndTime   time.Time
}

// Duration returns how long the read took.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// readTable parses r as CSV with a header row. The delimiter is sniffed
// from the header: Book-Crossing dumps use ';', most re-exports use ','.
// Rows that cannot be parsed are counted and skipped.
func readTable(name string, r io.Reader) (*Table, *Stats, error) {
	stats := &Stats{Table: name, StartTime: time.Now()}

	br := newSniffReader(r)
	comma, err := br.sniffDelimiter()
	if err != nil {
		return nil, stats, err
	}

	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, stats, fmt.Errorf("%s: file is empty: %w", name, recommend.ErrDataFormat)
	}
	if err != nil {
		return nil, stats, fmt.Errorf("%s: read header: %v: %w", name, err, recommend.ErrDataFormat)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows [][]string
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			stats.Malformed++
			continue
		}
		if err != nil {
			return nil, stats, fmt.Errorf("%s: read row: %w", name, err)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		rows = append(rows, row)
	}

	stats.Rows = len(rows)
	stats.EndTime = time.Now()
	return NewTable(name, header, rows), stats, nil
}
