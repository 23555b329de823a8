// Package docstore is a small document database client: documents live in flat
// collections, are addressed by (collection, id) and hold JSON-shaped data.
//
// The client offers whole-document get/set (optionally merging), dotted-path
// partial updates with a field-deletion sentinel, atomic multi-document write
// batches and query snapshot listeners. Storage engines only implement Engine;
// everything else is shared by Client.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrInvalidArgument flags malformed paths or payloads.
	ErrInvalidArgument = errors.New("docstore: invalid argument")
	// ErrBatchCommitted is returned when a batch is reused after Commit.
	ErrBatchCommitted = errors.New("docstore: batch already committed")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("docstore: store closed")
)

// Document is a snapshot of one stored document.
type Document struct {
	Collection string
	ID         string
	Data       map[string]any
}

// DataTo decodes the document data into v using its json tags.
func (d *Document) DataTo(v any) error {
	if d == nil {
		return ErrNotFound
	}
	b, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", d.Collection, d.ID, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", d.Collection, d.ID, err)
	}
	return nil
}

// Query selects every document of a collection in a given order.
type Query struct {
	// OrderBy is a dotted field path. Empty orders by document id.
	OrderBy string
	Desc    bool
	// Limit caps the result size when positive.
	Limit int
}

type setConfig struct {
	merge    bool
	ifExists bool
}

// SetOption tunes Set.
type SetOption func(*setConfig)

// Merge makes Set deep-merge data into an existing document instead of
// replacing it. DeleteField values remove fields while merging.
func Merge() SetOption {
	return func(c *setConfig) { c.merge = true }
}

// IfExists makes a merging Set skip documents that do not exist instead of
// creating them. It requires Merge.
func IfExists() SetOption {
	return func(c *setConfig) { c.ifExists = true }
}

// Store is the client surface used by repositories.
type Store interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Set(ctx context.Context, collection, id string, data map[string]any, opts ...SetOption) error
	// Update applies dotted-path updates to an existing document. It fails
	// with ErrNotFound when the document is missing.
	Update(ctx context.Context, collection, id string, updates map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, q Query) ([]*Document, error)
	Batch() WriteBatch
	// Watch delivers a fresh query snapshot to fn now and after every change
	// to the collection, until ctx is cancelled.
	Watch(ctx context.Context, collection string, q Query, fn SnapshotFunc) error
	Close() error
}

// WriteBatch groups writes that commit atomically.
type WriteBatch interface {
	Set(collection, id string, data map[string]any, opts ...SetOption) WriteBatch
	Update(collection, id string, updates map[string]any) WriteBatch
	Delete(collection, id string) WriteBatch
	Len() int
	Commit(ctx context.Context) error
}

// SnapshotFunc receives query snapshots from Watch.
type SnapshotFunc func(docs []*Document, err error)

// Engine is implemented by storage backends. Commit must apply every op or
// none of them; Apply gives the shared semantics for one op.
type Engine interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, collection string, q Query) ([]*Document, error)
	Commit(ctx context.Context, ops []Op) error
	Close() error
}
