package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/quillsociety/auditions/internal/docstore"
	"github.com/quillsociety/auditions/internal/models"
	"github.com/quillsociety/auditions/internal/services"
)

func questionToModel(q *services.Question) models.Question {
	return models.Question{
		Text:         q.Text,
		AddedBy:      q.AddedBy,
		AddedByID:    q.AddedByID,
		Type:         string(q.Type),
		LastEditedBy: q.LastEditedBy,
		CreatedAt:    millis(q.CreatedAt),
	}
}

func questionFromDoc(doc *docstore.Document) (*services.Question, error) {
	var m models.Question
	if err := doc.DataTo(&m); err != nil {
		return nil, decodeErr(doc, err)
	}
	typ := services.QuestionType(m.Type)
	if typ != services.QuestionEdit {
		typ = services.QuestionAdd
	}
	return &services.Question{
		ID:           doc.ID,
		Text:         m.Text,
		AddedBy:      m.AddedBy,
		AddedByID:    m.AddedByID,
		Type:         typ,
		LastEditedBy: m.LastEditedBy,
		CreatedAt:    fromMillis(m.CreatedAt),
	}, nil
}

// InsertQuestion stores q under a fresh id.
func (r *Repository) InsertQuestion(ctx context.Context, q *services.Question) (*services.Question, error) {
	data, err := toData(questionToModel(q))
	if err != nil {
		return nil, err
	}
	id := docstore.NewID()
	if err := r.store.Set(ctx, models.CollectionQuestions, id, data); err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}
	out := *q
	out.ID = id
	return &out, nil
}

func (r *Repository) GetQuestion(ctx context.Context, id string) (*services.Question, error) {
	doc, err := r.store.Get(ctx, models.CollectionQuestions, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err, "question not found")
	}
	return questionFromDoc(doc)
}

// UpdateQuestion writes the mutable fields of q. A cleared LastEditedBy
// removes the field.
func (r *Repository) UpdateQuestion(ctx context.Context, q *services.Question) error {
	updates := map[string]any{
		"text": q.Text,
		"type": string(q.Type),
	}
	if q.LastEditedBy != "" {
		updates["lastEditedBy"] = q.LastEditedBy
	} else {
		updates["lastEditedBy"] = docstore.DeleteField
	}
	return mapErr(r.store.Update(ctx, models.CollectionQuestions, q.ID, updates), "question not found")
}

func (r *Repository) DeleteQuestion(ctx context.Context, id string) error {
	return mapErr(r.store.Delete(ctx, models.CollectionQuestions, id), "question not found")
}

// ListQuestions returns the bank newest first.
func (r *Repository) ListQuestions(ctx context.Context) ([]*services.Question, error) {
	docs, err := r.store.Query(ctx, models.CollectionQuestions, docstore.Query{OrderBy: "createdAt", Desc: true})
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	out := make([]*services.Question, 0, len(docs))
	for _, doc := range docs {
		q, err := questionFromDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	services.SortBank(out)
	return out, nil
}

// WatchQuestions calls fn with the current bank and again after every
// change, until ctx is done.
func (r *Repository) WatchQuestions(ctx context.Context, fn func([]*services.Question, error)) error {
	q := docstore.Query{OrderBy: "createdAt", Desc: true}
	return r.store.Watch(ctx, models.CollectionQuestions, q, func(docs []*docstore.Document, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		out := make([]*services.Question, 0, len(docs))
		for _, doc := range docs {
			q, err := questionFromDoc(doc)
			if err != nil {
				fn(nil, err)
				return
			}
			out = append(out, q)
		}
		services.SortBank(out)
		fn(out, nil)
	})
}
