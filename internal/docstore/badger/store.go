// Package badger stores documents in an embedded BadgerDB key-value store.
//
// Keys are "<collection>\x00<id>", values are the JSON-encoded document.
// Queries scan the collection prefix and order in memory.
package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/quillsociety/auditions/internal/docstore"
)

// Config controls how the database is opened.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is set.
	Path     string
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *slog.Logger
	// GCInterval runs value log GC periodically when positive.
	GCInterval     time.Duration
	GCDiscardRatio float64
}

// DefaultConfig returns production settings for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns settings for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Engine implements docstore.Engine on BadgerDB.
type Engine struct {
	db *badger.DB
	// commitMu serializes read-write transactions. Badger's optimistic
	// transactions would otherwise fail every concurrent writer of a key
	// with ErrConflict, even when they touch different fields.
	commitMu sync.Mutex

	logger *slog.Logger
	stopGC chan struct{}
	gcDone chan struct{}
}

var _ docstore.Engine = (*Engine)(nil)

// Open opens or creates the database described by cfg.
func Open(cfg Config) (*Engine, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	e := &Engine{db: db, logger: cfg.Logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		e.stopGC = make(chan struct{})
		e.gcDone = make(chan struct{})
		go e.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return e, nil
}

func (e *Engine) runGC(interval time.Duration, ratio float64) {
	defer close(e.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopGC:
			return
		case <-ticker.C:
			err := e.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && e.logger != nil {
				e.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}

func key(collection, id string) []byte {
	return append(prefix(collection), id...)
}

func prefix(collection string) []byte {
	b := make([]byte, 0, len(collection)+1)
	b = append(b, collection...)
	return append(b, 0)
}

func (e *Engine) Get(_ context.Context, collection, id string) (*docstore.Document, error) {
	var data map[string]any
	err := e.db.View(func(txn *badger.Txn) error {
		var err error
		data, err = readDoc(txn, collection, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, docstore.ErrNotFound
	}
	return &docstore.Document{Collection: collection, ID: id, Data: data}, nil
}

func (e *Engine) Query(_ context.Context, collection string, q docstore.Query) ([]*docstore.Document, error) {
	var docs []*docstore.Document
	p := prefix(collection)
	err := e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			id := string(bytes.TrimPrefix(item.KeyCopy(nil), p))
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s/%s: %w", collection, id, err)
			}
			data, err := decode(raw)
			if err != nil {
				return fmt.Errorf("decode %s/%s: %w", collection, id, err)
			}
			docs = append(docs, &docstore.Document{Collection: collection, ID: id, Data: data})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docstore.SortDocuments(docs, q), nil
}

// Commit applies ops in a single read-write transaction. Badger transactions
// see their own pending writes, so later ops observe earlier ones.
func (e *Engine) Commit(_ context.Context, ops []docstore.Op) error {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	return e.db.Update(func(txn *badger.Txn) error {
		for _, op := range ops {
			current, err := readDoc(txn, op.Collection, op.ID)
			if err != nil {
				return err
			}
			next, remove, err := docstore.Apply(current, current != nil, op)
			if err != nil {
				return err
			}
			if next == nil && !remove {
				continue
			}
			k := key(op.Collection, op.ID)
			if remove {
				if err := txn.Delete(k); err != nil {
					return fmt.Errorf("delete %s/%s: %w", op.Collection, op.ID, err)
				}
				continue
			}
			b, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("encode %s/%s: %w", op.Collection, op.ID, err)
			}
			if err := txn.Set(k, b); err != nil {
				return fmt.Errorf("set %s/%s: %w", op.Collection, op.ID, err)
			}
		}
		return nil
	})
}

func readDoc(txn *badger.Txn, collection, id string) (map[string]any, error) {
	item, err := txn.Get(key(collection, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	var data map[string]any
	err = item.Value(func(val []byte) error {
		var derr error
		data, derr = decode(val)
		return derr
	})
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return data, nil
}

func (e *Engine) Close() error {
	if e.stopGC != nil {
		close(e.stopGC)
		<-e.gcDone
	}
	return e.db.Close()
}

func decode(raw []byte) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
