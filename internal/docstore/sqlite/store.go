// Package sqlite stores documents as JSON rows in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quillsociety/auditions/internal/docstore"
)

// Engine implements docstore.Engine with one row per document.
type Engine struct {
	db *sql.DB
}

var _ docstore.Engine = (*Engine)(nil)

// Open creates the database file if needed, applies migrations and pragmas.
func Open(path, migrationsDir string) (*Engine, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", filepath.ToSlash(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	e, err := NewEngine(db, migrationsDir)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return e, nil
}

// NewEngine wraps an already opened database.
func NewEngine(db *sql.DB, migrationsDir string) (*Engine, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	if err := RunMigrations(db, migrationsDir); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Engine{db: db}, nil
}

func (e *Engine) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	var raw string
	err := e.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select %s/%s: %w", collection, id, err)
	}
	data, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return &docstore.Document{Collection: collection, ID: id, Data: data}, nil
}

func (e *Engine) Query(ctx context.Context, collection string, q docstore.Query) ([]*docstore.Document, error) {
	var (
		sb   strings.Builder
		args = []any{collection}
	)
	sb.WriteString(`SELECT id, data FROM documents WHERE collection = ? ORDER BY `)
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	if q.OrderBy != "" {
		sb.WriteString(`json_extract(data, ?) ` + dir + `, id ASC`)
		args = append(args, "$."+q.OrderBy)
	} else {
		sb.WriteString(`id ` + dir)
	}
	limit := -1
	if q.Limit > 0 {
		limit = q.Limit
	}
	sb.WriteString(` LIMIT ?`)
	args = append(args, limit)

	rows, err := e.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()
	var docs []*docstore.Document
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		data, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		docs = append(docs, &docstore.Document{Collection: collection, ID: id, Data: data})
	}
	return docs, rows.Err()
}

// Commit runs every op inside one SQL transaction.
func (e *Engine) Commit(ctx context.Context, ops []docstore.Op) (retErr error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, op := range ops {
		var (
			raw     string
			current map[string]any
			exists  = true
		)
		err := tx.QueryRowContext(ctx, `SELECT data FROM documents WHERE collection = ? AND id = ?`, op.Collection, op.ID).Scan(&raw)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			exists = false
		case err != nil:
			return fmt.Errorf("select %s/%s: %w", op.Collection, op.ID, err)
		default:
			if current, err = decode(raw); err != nil {
				return fmt.Errorf("decode %s/%s: %w", op.Collection, op.ID, err)
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
			if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, op.Collection, op.ID); err != nil {
				return fmt.Errorf("delete %s/%s: %w", op.Collection, op.ID, err)
			}
			continue
		}
		b, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", op.Collection, op.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO documents (collection, id, data, updated_at)
VALUES (?, ?, ?, CAST(strftime('%s', 'now') AS INTEGER))
ON CONFLICT(collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
			op.Collection, op.ID, string(b)); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", op.Collection, op.ID, err)
		}
	}
	return tx.Commit()
}

func (e *Engine) Close() error { return e.db.Close() }

func decode(raw string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
