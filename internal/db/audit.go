package db

import (
	"context"
	"fmt"
	"time"

	"github.com/quillsociety/auditions/internal/docstore"
	"github.com/quillsociety/auditions/internal/models"
	"github.com/quillsociety/auditions/internal/services"
)

// AddAudit appends an entry. Failures are logged only; auditing never fails
// the operation being audited.
func (r *Repository) AddAudit(ctx context.Context, e services.AuditEntry) {
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	id := e.ID
	if id == "" {
		id = docstore.NewID()
	}
	data, err := toData(models.AuditEntry{
		Time:   millis(ts),
		Actor:  e.Actor,
		Action: e.Action,
		Target: e.Target,
		Note:   e.Note,
	})
	if err != nil {
		r.logErr("AddAudit", err)
		return
	}
	r.logErr("AddAudit", r.store.Set(ctx, models.CollectionAudit, id, data))
}

// ListAudit returns up to limit entries, newest first.
func (r *Repository) ListAudit(ctx context.Context, limit int) ([]services.AuditEntry, error) {
	docs, err := r.store.Query(ctx, models.CollectionAudit, docstore.Query{OrderBy: "time", Desc: true, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	out := make([]services.AuditEntry, 0, len(docs))
	for _, doc := range docs {
		var m models.AuditEntry
		if err := doc.DataTo(&m); err != nil {
			return nil, decodeErr(doc, err)
		}
		out = append(out, services.AuditEntry{
			ID:     doc.ID,
			Time:   fromMillis(m.Time),
			Actor:  m.Actor,
			Action: m.Action,
			Target: m.Target,
			Note:   m.Note,
		})
	}
	return out, nil
}
