package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/quillsociety/auditions/internal/docstore"
	"github.com/quillsociety/auditions/internal/models"
	"github.com/quillsociety/auditions/internal/services"
)

func memberFromDoc(doc *docstore.Document) (*services.Member, error) {
	var m models.Member
	if err := doc.DataTo(&m); err != nil {
		return nil, decodeErr(doc, err)
	}
	role, ok := services.ParseRole(m.Role)
	if !ok {
		role = services.RoleStudent
	}
	return &services.Member{
		ID:        doc.ID,
		Email:     m.Email,
		Name:      m.Name,
		Role:      role,
		PassHash:  m.PassHash,
		CreatedAt: fromMillis(m.CreatedAt),
	}, nil
}

// FindMemberByEmail scans the members collection. Member counts are small
// (the society roster), so there is no email index.
func (r *Repository) FindMemberByEmail(ctx context.Context, email string) (*services.Member, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	ms, err := r.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range ms {
		if strings.ToLower(m.Email) == email {
			return m, nil
		}
	}
	return nil, nil
}

func (r *Repository) GetMember(ctx context.Context, id string) (*services.Member, error) {
	doc, err := r.store.Get(ctx, models.CollectionMembers, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err, "member not found")
	}
	return memberFromDoc(doc)
}

func (r *Repository) PutMember(ctx context.Context, m *services.Member) error {
	data, err := toData(models.Member{
		Email:     m.Email,
		Name:      m.Name,
		Role:      string(m.Role),
		PassHash:  m.PassHash,
		CreatedAt: millis(m.CreatedAt),
	})
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, models.CollectionMembers, m.ID, data); err != nil {
		return mapErr(err, "member not found")
	}
	return nil
}

// ListMembers returns accounts ordered by name.
func (r *Repository) ListMembers(ctx context.Context) ([]*services.Member, error) {
	docs, err := r.store.Query(ctx, models.CollectionMembers, docstore.Query{})
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	out := make([]*services.Member, 0, len(docs))
	for _, doc := range docs {
		m, err := memberFromDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}
