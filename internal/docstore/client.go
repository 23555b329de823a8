package docstore

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Client implements Store on top of an Engine.
type Client struct {
	engine Engine
	hub    *Hub
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for watch and commit diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New wraps an engine into a Store.
func New(engine Engine, opts ...Option) *Client {
	c := &Client{engine: engine, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	c.hub = NewHub(engine.Query, c.logger)
	return c
}

var _ Store = (*Client)(nil)

// NewID returns a fresh random document id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}

func (c *Client) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := checkTarget(collection, id); err != nil {
		return nil, err
	}
	return c.engine.Get(ctx, collection, id)
}

func (c *Client) Set(ctx context.Context, collection, id string, data map[string]any, opts ...SetOption) error {
	op, err := SetOp(collection, id, data, opts...)
	if err != nil {
		return err
	}
	return c.commit(ctx, []Op{op})
}

func (c *Client) Update(ctx context.Context, collection, id string, updates map[string]any) error {
	op, err := UpdateOp(collection, id, updates)
	if err != nil {
		return err
	}
	return c.commit(ctx, []Op{op})
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	op, err := DeleteOp(collection, id)
	if err != nil {
		return err
	}
	return c.commit(ctx, []Op{op})
}

func (c *Client) Query(ctx context.Context, collection string, q Query) ([]*Document, error) {
	if err := ValidateID(collection); err != nil {
		return nil, err
	}
	if q.OrderBy != "" {
		if _, err := SplitPath(q.OrderBy); err != nil {
			return nil, err
		}
	}
	return c.engine.Query(ctx, collection, q)
}

func (c *Client) Batch() WriteBatch {
	return &batch{commit: c.commit}
}

func (c *Client) Watch(ctx context.Context, collection string, q Query, fn SnapshotFunc) error {
	if err := ValidateID(collection); err != nil {
		return err
	}
	return c.hub.Watch(ctx, collection, q, fn)
}

func (c *Client) Close() error {
	c.hub.Close()
	return c.engine.Close()
}

func (c *Client) commit(ctx context.Context, ops []Op) error {
	if err := c.engine.Commit(ctx, ops); err != nil {
		return err
	}
	c.hub.Notify(Collections(ops)...)
	return nil
}
