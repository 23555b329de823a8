// Package postgres stores documents as JSONB rows in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillsociety/auditions/internal/docstore"
)

// Engine implements docstore.Engine on a pgx connection pool.
type Engine struct {
	pool *pgxpool.Pool
}

var _ docstore.Engine = (*Engine)(nil)

// Open connects to url and ensures the documents table exists.
func Open(ctx context.Context, url string) (*Engine, error) {
	if url == "" {
		return nil, errors.New("postgres url is required")
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	e := &Engine{pool: pool}
	if err := e.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return e, nil
}

// EnsureSchema creates the documents table.
func (e *Engine) EnsureSchema(ctx context.Context) error {
	_, err := e.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS documents (
	collection text NOT NULL,
	id text NOT NULL,
	data jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

func (e *Engine) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	var raw []byte
	err := e.pool.QueryRow(ctx, `SELECT data FROM documents WHERE collection=$1 AND id=$2`, collection, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select %s/%s: %w", collection, id, err)
	}
	data, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s/%s: %w", collection, id, err)
	}
	return &docstore.Document{Collection: collection, ID: id, Data: data}, nil
}

func (e *Engine) Query(ctx context.Context, collection string, q docstore.Query) ([]*docstore.Document, error) {
	var (
		sb   strings.Builder
		args = []any{collection}
	)
	sb.WriteString(`SELECT id, data FROM documents WHERE collection=$1 ORDER BY `)
	if q.OrderBy != "" {
		args = append(args, strings.Split(q.OrderBy, "."))
		if q.Desc {
			sb.WriteString(`data #> $2::text[] DESC NULLS LAST, id ASC`)
		} else {
			sb.WriteString(`data #> $2::text[] ASC NULLS FIRST, id ASC`)
		}
	} else if q.Desc {
		sb.WriteString(`id DESC`)
	} else {
		sb.WriteString(`id ASC`)
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}

	rows, err := e.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()
	var docs []*docstore.Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		data, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s/%s: %w", collection, id, err)
		}
		docs = append(docs, &docstore.Document{Collection: collection, ID: id, Data: data})
	}
	return docs, rows.Err()
}

// Commit applies every op in one transaction, locking touched rows.
func (e *Engine) Commit(ctx context.Context, ops []docstore.Op) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, op := range ops {
		var (
			raw     []byte
			current map[string]any
			exists  = true
		)
		err := tx.QueryRow(ctx, `SELECT data FROM documents WHERE collection=$1 AND id=$2 FOR UPDATE`, op.Collection, op.ID).Scan(&raw)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			exists = false
		case err != nil:
			return fmt.Errorf("select %s/%s: %w", op.Collection, op.ID, err)
		default:
			if current, err = decode(raw); err != nil {
				return fmt.Errorf("unmarshal %s/%s: %w", op.Collection, op.ID, err)
			}
		}
		next, remove, err := docstore.Apply(current, exists, op)
		if err != nil {
			return err
		}
		if next == nil && !remove {
			continue
		}
		if remove {
			if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE collection=$1 AND id=$2`, op.Collection, op.ID); err != nil {
				return fmt.Errorf("delete %s/%s: %w", op.Collection, op.ID, err)
			}
			continue
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal %s/%s: %w", op.Collection, op.ID, err)
		}
		_, err = tx.Exec(ctx, `
INSERT INTO documents (collection, id, data, updated_at)
VALUES ($1,$2,$3,now())
ON CONFLICT (collection, id)
DO UPDATE SET data=EXCLUDED.data, updated_at=now();`, op.Collection, op.ID, payload)
		if err != nil {
			return fmt.Errorf("upsert %s/%s: %w", op.Collection, op.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func (e *Engine) Close() error {
	e.pool.Close()
	return nil
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
