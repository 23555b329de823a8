package services

import "context"

type AuditStore interface {
	ListAudit(ctx context.Context, limit int) ([]AuditEntry, error)
}

// AuditService exposes the audit log to administrators, newest first.
type AuditService struct{ store AuditStore }

func NewAuditService(store AuditStore) *AuditService { return &AuditService{store: store} }

func (s *AuditService) List(ctx context.Context, caller Caller, limit int) ([]AuditEntry, error) {
	if err := authorize(caller, ActionReadAudit, Resource{}); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	entries, err := s.store.ListAudit(ctx, limit)
	if err != nil {
		return nil, storeError("list audit", err)
	}
	return entries, nil
}
