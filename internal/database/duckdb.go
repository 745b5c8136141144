// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver

	"github.com/tomtom215/bookshelf/internal/logging"
)

const duckdbSchema = `
CREATE TABLE IF NOT EXISTS collections (
	name VARCHAR PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS documents (
	collection VARCHAR NOT NULL,
	id         VARCHAR NOT NULL,
	body       VARCHAR NOT NULL,
	PRIMARY KEY (collection, id)
);
`

// DuckDBStore is a Store backed by a single DuckDB documents table.
// Bodies are stored as text and filtered in Go so that both backends share
// one matching rule.
type DuckDBStore struct {
	conn   *sql.DB
	closed atomic.Bool

	// writeMu serializes writers; DuckDB aborts conflicting transactions
	// instead of waiting for them.
	writeMu sync.Mutex
}

// OpenDuckDB opens (or creates) a DuckDB store at path. With inMemory the
// database lives only as long as the process.
func OpenDuckDB(path string, inMemory bool) (*DuckDBStore, error) {
	dsn := ""
	if !inMemory {
		if path == "" {
			return nil, fmt.Errorf("duckdb store path must not be empty")
		}
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create store directory %s: %w", dir, err)
			}
		}
		dsn = fmt.Sprintf("%s?access_mode=read_write&threads=%d", path, runtime.NumCPU())
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// An in-memory database is private to its connector; keeping one
	// connection open keeps it alive between calls.
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxIdleTime(0)
	conn.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := conn.ExecContext(ctx, duckdbSchema); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("create duckdb schema: %w", err)
	}

	logging.Info().
		Str("path", path).
		Bool("in_memory", inMemory).
		Msg("document store opened")

	return &DuckDBStore{conn: conn}, nil
}

func closeQuietly(conn *sql.DB) {
	if err := conn.Close(); err != nil {
		logging.Warn().Err(err).Msg("failed to close duckdb connection")
	}
}

// Backend implements Store.
func (s *DuckDBStore) Backend() string { return "duckdb" }

// Close implements Store.
func (s *DuckDBStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.conn.Close()
}

func (s *DuckDBStore) check(ctx context.Context, collection string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return validateCollection(collection)
}

func (s *DuckDBStore) scan(ctx context.Context, collection string, filter *Filter, fn func(Document) bool) error {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, body FROM documents WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return fmt.Errorf("query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return fmt.Errorf("scan document: %w", err)
		}
		b := []byte(body)
		if !filter.Match(b) {
			continue
		}
		if !fn(Document{ID: id, Body: b}) {
			return nil
		}
	}
	return rows.Err()
}

// Find implements Store.
func (s *DuckDBStore) Find(ctx context.Context, collection string, filter *Filter) (docs []Document, err error) {
	defer func(start time.Time) { observe("duckdb", "find", collection, start, err) }(time.Now())
	if err = s.check(ctx, collection); err != nil {
		return nil, err
	}
	docs = []Document{}
	err = s.scan(ctx, collection, filter, func(d Document) bool {
		docs = append(docs, d)
		return true
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// FindFirst implements Store.
func (s *DuckDBStore) FindFirst(ctx context.Context, collection string, filter *Filter) (doc Document, err error) {
	defer func(start time.Time) { observe("duckdb", "find_first", collection, start, err) }(time.Now())
	if err = s.check(ctx, collection); err != nil {
		return Document{}, err
	}
	found := false
	err = s.scan(ctx, collection, filter, func(d Document) bool {
		doc, found = d, true
		return false
	})
	if err != nil {
		return Document{}, err
	}
	if !found {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// FindOne implements Store.
func (s *DuckDBStore) FindOne(ctx context.Context, collection, id string) (doc Document, err error) {
	defer func(start time.Time) { observe("duckdb", "find_one", collection, start, err) }(time.Now())
	if err = s.check(ctx, collection); err != nil {
		return Document{}, err
	}
	var body string
	err = s.conn.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return Document{ID: id, Body: []byte(body)}, nil
}

// withTx runs fn inside a transaction under the writer lock.
func (s *DuckDBStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.Warn().Err(rbErr).Msg("duckdb rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func ensureCollection(ctx context.Context, tx *sql.Tx, collection string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO collections (name) VALUES (?) ON CONFLICT DO NOTHING`, collection); err != nil {
		return fmt.Errorf("create collection %s: %w", collection, err)
	}
	return nil
}

func insertDocuments(ctx context.Context, tx *sql.Tx, collection string, bodies [][]byte) ([]string, error) {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	ids := make([]string, len(bodies))
	for i, body := range bodies {
		ids[i] = NewID()
		if _, err := stmt.ExecContext(ctx, collection, ids[i], string(body)); err != nil {
			return nil, fmt.Errorf("insert document: %w", err)
		}
	}
	return ids, nil
}

// ReplaceOne implements Store.
func (s *DuckDBStore) ReplaceOne(ctx context.Context, collection, id string, body []byte, upsert bool) (err error) {
	defer func(start time.Time) { observe("duckdb", "replace_one", collection, start, err) }(time.Now())
	if err = s.check(ctx, collection); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("document id must not be empty")
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if !upsert {
			res, err := tx.ExecContext(ctx,
				`UPDATE documents SET body = ? WHERE collection = ? AND id = ?`, string(body), collection, id)
			if err != nil {
				return fmt.Errorf("update document %s: %w", id, err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return ErrNotFound
			}
			return nil
		}
		if err := ensureCollection(ctx, tx, collection); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)
			ON CONFLICT (collection, id) DO UPDATE SET body = excluded.body`,
			collection, id, string(body))
		if err != nil {
			return fmt.Errorf("upsert document %s: %w", id, err)
		}
		return nil
	})
}

// InsertMany implements Store.
func (s *DuckDBStore) InsertMany(ctx context.Context, collection string, bodies [][]byte) (ids []string, err error) {
	defer func(start time.Time) { observe("duckdb", "insert_many", collection, start, err) }(time.Now())
	if err = s.check(ctx, collection); err != nil {
		return nil, err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureCollection(ctx, tx, collection); err != nil {
			return err
		}
		var err error
		ids, err = insertDocuments(ctx, tx, collection, bodies)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ReplaceAll implements Store. Delete and insert share one transaction.
func (s *DuckDBStore) ReplaceAll(ctx context.Context, collection string, bodies [][]byte) (err error) {
	defer func(start time.Time) { observe("duckdb", "replace_all", collection, start, err) }(time.Now())
	if err = s.check(ctx, collection); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureCollection(ctx, tx, collection); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, collection); err != nil {
			return fmt.Errorf("clear collection %s: %w", collection, err)
		}
		_, err := insertDocuments(ctx, tx, collection, bodies)
		return err
	})
}

// Drop implements Store.
func (s *DuckDBStore) Drop(ctx context.Context, collection string) (err error) {
	defer func(start time.Time) { observe("duckdb", "drop", collection, start, err) }(time.Now())
	if err = s.check(ctx, collection); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, collection); err != nil {
			return fmt.Errorf("drop documents of %s: %w", collection, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, collection); err != nil {
			return fmt.Errorf("drop collection %s: %w", collection, err)
		}
		return nil
	})
}

// Count implements Store. Unfiltered counts are answered by SQL.
func (s *DuckDBStore) Count(ctx context.Context, collection string, filter *Filter) (n int, err error) {
	defer func(start time.Time) { observe("duckdb", "count", collection, start, err) }(time.Now())
	if err = s.check(ctx, collection); err != nil {
		return 0, err
	}
	if filter == nil {
		err = s.conn.QueryRowContext(ctx,
			`SELECT count(*) FROM documents WHERE collection = ?`, collection).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("count documents: %w", err)
		}
		return n, nil
	}
	err = s.scan(ctx, collection, filter, func(Document) bool {
		n++
		return true
	})
	return n, err
}

// Collections implements Store.
func (s *DuckDBStore) Collections(ctx context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := s.conn.QueryContext(ctx, `SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
