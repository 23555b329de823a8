// Package db maps the service layer onto the document store.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quillsociety/auditions/internal/docstore"
	"github.com/quillsociety/auditions/internal/models"
	"github.com/quillsociety/auditions/internal/services"
)

// Repository implements every services store interface over one
// docstore.Store.
type Repository struct {
	store  docstore.Store
	logger *slog.Logger
}

var (
	_ services.QuestionStore = (*Repository)(nil)
	_ services.SessionStore  = (*Repository)(nil)
	_ services.ReviewStore   = (*Repository)(nil)
	_ services.MemberStore   = (*Repository)(nil)
	_ services.AuditStore    = (*Repository)(nil)
)

func NewRepository(store docstore.Store, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{store: store, logger: logger}
}

// Store exposes the underlying document store.
func (r *Repository) Store() docstore.Store { return r.store }

func (r *Repository) Close() error { return r.store.Close() }

func (r *Repository) logErr(op string, err error) {
	if err != nil {
		r.logger.Error("repository error", "op", op, "error", err)
	}
}

// toData converts a model struct into document data using its json tags.
func toData(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// mapErr turns document store sentinels into service errors. Anything else
// passes through and becomes "unavailable" at the service boundary.
func mapErr(err error, notFound string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return services.NewNotFoundError(notFound)
	case errors.Is(err, docstore.ErrInvalidArgument):
		return services.NewInvalidError(err.Error())
	default:
		return err
	}
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func decodeErr(doc *docstore.Document, err error) error {
	return fmt.Errorf("decode %s/%s: %w", doc.Collection, doc.ID, err)
}

// Ping runs a one-document query against the store.
func (r *Repository) Ping(ctx context.Context) error {
	_, err := r.store.Query(ctx, models.CollectionQuestions, docstore.Query{Limit: 1})
	return err
}
