// Package memory is an in-process docstore engine. It is used by tests and
// by single-node development servers.
package memory

import (
	"context"
	"sync"

	"github.com/quillsociety/auditions/internal/docstore"
)

// Engine keeps documents in nested maps guarded by a RWMutex.
type Engine struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	closed      bool
}

// NewEngine returns an empty engine.
func NewEngine() *Engine {
	return &Engine{collections: map[string]map[string]map[string]any{}}
}

// NewStore returns a ready-to-use store backed by a fresh engine.
func NewStore(opts ...docstore.Option) *docstore.Client {
	return docstore.New(NewEngine(), opts...)
}

var _ docstore.Engine = (*Engine)(nil)

func (e *Engine) Get(_ context.Context, collection, id string) (*docstore.Document, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, docstore.ErrClosed
	}
	data, ok := e.collections[collection][id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return &docstore.Document{Collection: collection, ID: id, Data: docstore.CloneMap(data)}, nil
}

func (e *Engine) Query(_ context.Context, collection string, q docstore.Query) ([]*docstore.Document, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, docstore.ErrClosed
	}
	docs := make([]*docstore.Document, 0, len(e.collections[collection]))
	for id, data := range e.collections[collection] {
		docs = append(docs, &docstore.Document{Collection: collection, ID: id, Data: docstore.CloneMap(data)})
	}
	e.mu.RUnlock()
	return docstore.SortDocuments(docs, q), nil
}

type stagedKey struct{ collection, id string }

type staged struct {
	data    map[string]any
	removed bool
}

// Commit stages every op against a private overlay and only publishes the
// overlay once all ops succeeded.
func (e *Engine) Commit(_ context.Context, ops []docstore.Op) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return docstore.ErrClosed
	}
	overlay := map[stagedKey]*staged{}
	order := make([]stagedKey, 0, len(ops))
	for _, op := range ops {
		key := stagedKey{op.Collection, op.ID}
		var (
			current map[string]any
			exists  bool
		)
		if st, ok := overlay[key]; ok {
			current, exists = st.data, !st.removed
		} else {
			current, exists = e.collections[op.Collection][op.ID]
			order = append(order, key)
		}
		next, remove, err := docstore.Apply(current, exists, op)
		if err != nil {
			return err
		}
		if next == nil && !remove {
			continue
		}
		overlay[key] = &staged{data: next, removed: remove}
	}
	for _, key := range order {
		st := overlay[key]
		if st == nil {
			continue
		}
		if st.removed {
			delete(e.collections[key.collection], key.id)
			continue
		}
		col := e.collections[key.collection]
		if col == nil {
			col = map[string]map[string]any{}
			e.collections[key.collection] = col
		}
		col[key.id] = st.data
	}
	return nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
