package docstore

import (
	"context"
	"log/slog"
	"sync"
)

// QueryFunc runs a query for the hub.
type QueryFunc func(ctx context.Context, collection string, q Query) ([]*Document, error)

// Hub fans commit notifications out to in-process snapshot listeners.
// Notifications coalesce: a slow listener sees the latest state, not every
// intermediate one.
type Hub struct {
	query  QueryFunc
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[int]*subscription
	nextID int
	closed bool
	done   chan struct{}
}

type subscription struct {
	collection string
	signal     chan struct{}
}

// NewHub creates a hub that re-runs queries with query.
func NewHub(query QueryFunc, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		query:  query,
		logger: logger,
		subs:   map[int]*subscription{},
		done:   make(chan struct{}),
	}
}

// Watch registers fn and returns immediately. The first snapshot is
// delivered asynchronously; fn is never called concurrently with itself.
func (h *Hub) Watch(ctx context.Context, collection string, q Query, fn SnapshotFunc) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	id := h.nextID
	h.nextID++
	sub := &subscription{collection: collection, signal: make(chan struct{}, 1)}
	sub.signal <- struct{}{}
	h.subs[id] = sub
	h.mu.Unlock()

	go func() {
		defer h.remove(id)
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.done:
				return
			case <-sub.signal:
				docs, err := h.query(ctx, collection, q)
				if ctx.Err() != nil {
					return
				}
				if err != nil {
					h.logger.Warn("docstore watch query failed", "collection", collection, "error", err)
				}
				fn(docs, err)
			}
		}
	}()
	return nil
}

// Notify wakes listeners of the given collections.
func (h *Hub) Notify(collections ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		for _, c := range collections {
			if sub.collection != c {
				continue
			}
			select {
			case sub.signal <- struct{}{}:
			default:
			}
			break
		}
	}
}

// Listeners returns the number of active listeners.
func (h *Hub) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close stops every listener.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}
