// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/bookshelf/internal/logging"
)

// Table names used in logs and errors.
const (
	TableBooks   = "books"
	TableUsers   = "users"
	TableRatings = "ratings"
)

// Paths locates the three raw tables.
type Paths struct {
	Books   string
	Users   string
	Ratings string
}

// RawTables holds the three raw tables of one ingestion.
type RawTables struct {
	Books   *Table
	Users   *Table
	Ratings *Table
}

// sniffReader buffers the input so the header line can be inspected
// before the CSV reader consumes it.
type sniffReader struct {
	*bufio.Reader
}

func newSniffReader(r io.Reader) *sniffReader {
	return &sniffReader{Reader: bufio.NewReaderSize(r, 64*1024)}
}

// sniffDelimiter picks ';' when the header line has more semicolons than
// commas, otherwise ','.
func (s *sniffReader) sniffDelimiter() (rune, error) {
	line, err := s.Peek(s.Size())
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return 0, fmt.Errorf("read header: %w", err)
	}
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';', nil
	}
	return ',', nil
}

// ReadTable parses a CSV stream with a header row.
func ReadTable(name string, r io.Reader) (*Table, error) {
	t, stats, err := readTable(name, r)
	if err != nil {
		return nil, err
	}
	ev := logging.Debug()
	if stats.Malformed > 0 {
		ev = logging.Warn()
	}
	ev.Str("table", name).
		Int("rows", stats.Rows).
		Int("malformed", stats.Malformed).
		Dur("duration", stats.Duration()).
		Msg("table read")
	return t, nil
}

// ReadFile opens path and parses it with ReadTable.
func ReadFile(name, path string) (*Table, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("open %s table: %w", name, err)
	}
	defer func() { _ = f.Close() }()
	return ReadTable(name, f)
}

// LoadAll reads the three raw tables concurrently. The first failure
// cancels the remaining reads.
func LoadAll(ctx context.Context, p Paths) (*RawTables, error) {
	var out RawTables
	g, ctx := errgroup.WithContext(ctx)

	load := func(name, path string, dst **Table) {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := ReadFile(name, path)
			if err != nil {
				return err
			}
			*dst = t
			return nil
		})
	}
	load(TableBooks, p.Books, &out.Books)
	load(TableUsers, p.Users, &out.Users)
	load(TableRatings, p.Ratings, &out.Ratings)

	if err := g.Wait(); err != nil {
		return nil, err
	}

	logging.Info().
		Int("books", out.Books.Len()).
		Int("users", out.Users.Len()).
		Int("ratings", out.Ratings.Len()).
		Msg("raw tables loaded")
	return &out, nil
}
