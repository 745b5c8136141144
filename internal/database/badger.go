// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

package database

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/rs/zerolog"

	"github.com/tomtom215/bookshelf/internal/logging"
)

// Key layout:
//
//	col/<collection>                  -> current generation (uint64, big endian)
//	doc/<collection>/<gen>/<id>       -> JSON body
//
// ReplaceAll writes a whole new generation and then flips the col/ pointer
// in one transaction, so readers never observe a half-replaced collection
// even when the new contents are too large for a single transaction.
const (
	metaPrefix = "col/"
	docPrefix  = "doc/"
)

// BadgerStore is a Store backed by an embedded Badger database.
type BadgerStore struct {
	db     *badger.DB
	closed atomic.Bool

	// writeMu serializes writers so generation numbers are never reused.
	writeMu sync.Mutex
}

// OpenBadger opens (or creates) a Badger store at path. With inMemory the
// path is ignored and nothing is written to disk.
func OpenBadger(path string, inMemory bool) (*BadgerStore, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if path == "" {
			return nil, fmt.Errorf("badger store path must not be empty")
		}
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path).WithCompression(options.Snappy)
	}
	opts = opts.WithLogger(badgerLogger{logger: logging.WithComponent("badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", path).
		Bool("in_memory", inMemory).
		Msg("document store opened")

	return &BadgerStore{db: db}, nil
}

// Backend implements Store.
func (s *BadgerStore) Backend() string { return "badger" }

// Close implements Store.
func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func metaKey(collection string) []byte {
	return []byte(metaPrefix + collection)
}

func genPrefix(collection string, gen uint64) []byte {
	return []byte(fmt.Sprintf("%s%s/%016x/", docPrefix, collection, gen))
}

func docKey(collection string, gen uint64, id string) []byte {
	return append(genPrefix(collection, gen), id...)
}

// currentGen returns the collection's generation; ok is false when the
// collection does not exist.
func currentGen(txn *badger.Txn, collection string) (gen uint64, ok bool, err error) {
	item, err := txn.Get(metaKey(collection))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read collection %s: %w", collection, err)
	}
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt generation for collection %s", collection)
		}
		gen = binary.BigEndian.Uint64(val)
		return nil
	})
	return gen, err == nil, err
}

func setGen(txn *badger.Txn, collection string, gen uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], gen)
	return txn.Set(metaKey(collection), buf[:])
}

func (s *BadgerStore) check(ctx context.Context, collection string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return validateCollection(collection)
}

// scan walks the documents of collection that match filter, in id order,
// stopping early when fn returns false.
func (s *BadgerStore) scan(ctx context.Context, collection string, filter *Filter, fn func(Document) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		gen, ok, err := currentGen(txn, collection)
		if err != nil || !ok {
			return err
		}

		prefix := genPrefix(collection, gen)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			body, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}
			if !filter.Match(body) {
				continue
			}
			id := string(item.Key()[len(prefix):])
			if !fn(Document{ID: id, Body: body}) {
				return nil
			}
		}
		return nil
	})
}

// Find implements Store.
func (s *BadgerStore) Find(ctx context.Context, collection string, filter *Filter) (docs []Document, err error) {
	defer func(start time.Time) { observe("badger", "find", collection, start, err) }(time.Now())
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
func (s *BadgerStore) FindFirst(ctx context.Context, collection string, filter *Filter) (doc Document, err error) {
	defer func(start time.Time) { observe("badger", "find_first", collection, start, err) }(time.Now())
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
func (s *BadgerStore) FindOne(ctx context.Context, collection, id string) (doc Document, err error) {
	defer func(start time.Time) { observe("badger", "find_one", collection, start, err) }(time.Now())
	if err = s.check(ctx, collection); err != nil {
		return Document{}, err
	}
	err = s.db.View(func(txn *badger.Txn) error {
		gen, ok, err := currentGen(txn, collection)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		item, err := txn.Get(docKey(collection, gen, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get document %s: %w", id, err)
		}
		body, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read document %s: %w", id, err)
		}
		doc = Document{ID: id, Body: body}
		return nil
	})
	return doc, err
}

// ReplaceOne implements Store. The check and the write share a transaction.
func (s *BadgerStore) ReplaceOne(ctx context.Context, collection, id string, body []byte, upsert bool) (err error) {
	defer func(start time.Time) { observe("badger", "replace_one", collection, start, err) }(time.Now())
	if err = s.check(ctx, collection); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("document id must not be empty")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		gen, ok, err := currentGen(txn, collection)
		if err != nil {
			return err
		}
		if !ok {
			if !upsert {
				return ErrNotFound
			}
			gen = 1
			if err := setGen(txn, collection, gen); err != nil {
				return fmt.Errorf("create collection %s: %w", collection, err)
			}
		}
		key := docKey(collection, gen, id)
		if !upsert {
			if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			} else if err != nil {
				return fmt.Errorf("get document %s: %w", id, err)
			}
		}
		if err := txn.Set(key, body); err != nil {
			return fmt.Errorf("set document %s: %w", id, err)
		}
		return nil
	})
}

// InsertMany implements Store. Documents are written through a WriteBatch
// so large inserts are not bounded by the transaction size limit.
func (s *BadgerStore) InsertMany(ctx context.Context, collection string, bodies [][]byte) (ids []string, err error) {
	defer func(start time.Time) { observe("badger", "insert_many", collection, start, err) }(time.Now())
	if err = s.check(ctx, collection); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var gen uint64
	err = s.db.Update(func(txn *badger.Txn) error {
		g, ok, err := currentGen(txn, collection)
		if err != nil {
			return err
		}
		if ok {
			gen = g
			return nil
		}
		gen = 1
		return setGen(txn, collection, gen)
	})
	if err != nil {
		return nil, err
	}

	ids, err = s.writeGeneration(ctx, collection, gen, bodies)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ReplaceAll implements Store.
func (s *BadgerStore) ReplaceAll(ctx context.Context, collection string, bodies [][]byte) (err error) {
	defer func(start time.Time) { observe("badger", "replace_all", collection, start, err) }(time.Now())
	if err = s.check(ctx, collection); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var (
		oldGen uint64
		exists bool
	)
	err = s.db.View(func(txn *badger.Txn) error {
		var err error
		oldGen, exists, err = currentGen(txn, collection)
		return err
	})
	if err != nil {
		return err
	}
	newGen := oldGen + 1

	if _, err = s.writeGeneration(ctx, collection, newGen, bodies); err != nil {
		// The pointer never moved, so readers still see the old generation.
		s.dropPrefix(genPrefix(collection, newGen))
		return err
	}

	if err = s.db.Update(func(txn *badger.Txn) error {
		return setGen(txn, collection, newGen)
	}); err != nil {
		s.dropPrefix(genPrefix(collection, newGen))
		return fmt.Errorf("switch collection %s: %w", collection, err)
	}

	if exists {
		s.dropPrefix(genPrefix(collection, oldGen))
	}
	return nil
}

func (s *BadgerStore) writeGeneration(ctx context.Context, collection string, gen uint64, bodies [][]byte) ([]string, error) {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	ids := make([]string, len(bodies))
	for i, body := range bodies {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		ids[i] = NewID()
		if err := wb.Set(docKey(collection, gen, ids[i]), body); err != nil {
			return nil, fmt.Errorf("write document: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return nil, fmt.Errorf("flush documents: %w", err)
	}
	return ids, nil
}

// dropPrefix deletes every key under prefix. Failures only leak disk
// space, so they are logged rather than returned.
func (s *BadgerStore) dropPrefix(prefix []byte) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err == nil && len(keys) > 0 {
		wb := s.db.NewWriteBatch()
		defer wb.Cancel()
		for _, k := range keys {
			if err = wb.Delete(k); err != nil {
				break
			}
		}
		if err == nil {
			err = wb.Flush()
		}
	}
	if err != nil {
		logging.Warn().Err(err).Str("prefix", string(prefix)).Msg("failed to drop stale documents")
	}
}

// Drop implements Store.
func (s *BadgerStore) Drop(ctx context.Context, collection string) (err error) {
	defer func(start time.Time) { observe("badger", "drop", collection, start, err) }(time.Now())
	if err = s.check(ctx, collection); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(metaKey(collection)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("drop collection %s: %w", collection, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.dropPrefix([]byte(docPrefix + collection + "/"))
	return nil
}

// Count implements Store.
func (s *BadgerStore) Count(ctx context.Context, collection string, filter *Filter) (n int, err error) {
	defer func(start time.Time) { observe("badger", "count", collection, start, err) }(time.Now())
	if err = s.check(ctx, collection); err != nil {
		return 0, err
	}
	err = s.scan(ctx, collection, filter, func(Document) bool {
		n++
		return true
	})
	return n, err
}

// Collections implements Store.
func (s *BadgerStore) Collections(ctx context.Context) (names []string, err error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	names = []string{}
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(metaPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), metaPrefix))
		}
		return nil
	})
	sort.Strings(names)
	return names, err
}

// badgerLogger routes Badger's internal logging into zerolog.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
