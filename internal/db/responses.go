package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/quillsociety/auditions/internal/docstore"
	"github.com/quillsociety/auditions/internal/models"
	"github.com/quillsociety/auditions/internal/services"
)

func recordFromDoc(doc *docstore.Document) (*services.ResponseRecord, error) {
	var m models.Response
	if err := doc.DataTo(&m); err != nil {
		return nil, decodeErr(doc, err)
	}
	rec := &services.ResponseRecord{
		RespondentID: doc.ID,
		Questions:    make(map[string]services.QuestionEntry, len(m.Questions)),
	}
	for qid, e := range m.Questions {
		rec.Questions[qid] = services.QuestionEntry{Text: e.Text, Response: e.Response}
	}
	if m.CompletedAt != nil && *m.CompletedAt != 0 {
		t := fromMillis(*m.CompletedAt)
		rec.CompletedAt = &t
	}
	for round, byReviewer := range m.MemberComments {
		rd, err := services.ParseRound(round)
		if err != nil {
			// Unknown rounds are kept out of reports.
			continue
		}
		if rec.MemberComments == nil {
			rec.MemberComments = map[services.Round]map[string]services.MemberComment{}
		}
		comments := make(map[string]services.MemberComment, len(byReviewer))
		for reviewer, c := range byReviewer {
			comments[reviewer] = services.MemberComment{MemberName: c.MemberName, MemberComment: c.MemberComment}
		}
		rec.MemberComments[rd] = comments
	}
	return rec, nil
}

func (r *Repository) GetResponse(ctx context.Context, respondentID string) (*services.ResponseRecord, error) {
	doc, err := r.store.Get(ctx, models.CollectionResponses, respondentID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err, "response not found")
	}
	return recordFromDoc(doc)
}

// CreateResponse merges an empty questions map into responses/{id}, which
// creates the record on a first visit and leaves an existing one as is.
func (r *Repository) CreateResponse(ctx context.Context, respondentID string) (*services.ResponseRecord, error) {
	err := r.store.Set(ctx, models.CollectionResponses, respondentID,
		map[string]any{"questions": map[string]any{}}, docstore.Merge())
	if err != nil {
		return nil, mapErr(err, "response not found")
	}
	rec, err := r.GetResponse(ctx, respondentID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("response %s vanished after create", respondentID)
	}
	return rec, nil
}

// ListResponses returns every record ordered by respondent id.
func (r *Repository) ListResponses(ctx context.Context) ([]*services.ResponseRecord, error) {
	docs, err := r.store.Query(ctx, models.CollectionResponses, docstore.Query{})
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	out := make([]*services.ResponseRecord, 0, len(docs))
	for _, doc := range docs {
		rec, err := recordFromDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RespondentID < out[j].RespondentID })
	return out, nil
}

// ApplyRecordPatches commits the patches as one batch. Each patch merges into
// an existing record only: a record deleted since it was read is skipped, not
// recreated. Inserts leave an existing response alone, so an answer saved
// after the caller read the record survives.
func (r *Repository) ApplyRecordPatches(ctx context.Context, patches []services.RecordPatch) error {
	if len(patches) == 0 {
		return nil
	}
	b := r.store.Batch()
	for _, p := range patches {
		var entry any
		switch p.Kind {
		case services.PatchInsert:
			entry = map[string]any{"text": p.Text, "response": docstore.IfAbsent(nil)}
		case services.PatchText:
			entry = map[string]any{"text": p.Text}
		case services.PatchRemove:
			entry = docstore.DeleteField
		default:
			return services.NewInvalidError(fmt.Sprintf("unknown patch kind %d", p.Kind))
		}
		b.Set(models.CollectionResponses, p.RespondentID,
			map[string]any{"questions": map[string]any{p.QuestionID: entry}}, docstore.Merge(), docstore.IfExists())
	}
	if err := b.Commit(ctx); err != nil {
		return mapErr(err, "response not found")
	}
	return nil
}

func (r *Repository) SetAnswer(ctx context.Context, respondentID, questionID, text string) error {
	err := r.store.Update(ctx, models.CollectionResponses, respondentID, map[string]any{
		"questions." + questionID + ".response": text,
	})
	return mapErr(err, "response not found")
}

func (r *Repository) SetCompletedAt(ctx context.Context, respondentID string, at time.Time) error {
	err := r.store.Update(ctx, models.CollectionResponses, respondentID, map[string]any{
		"completedAt": millis(at),
	})
	return mapErr(err, "response not found")
}

func commentPath(round services.Round, reviewerID string) string {
	return "memberComments." + string(round) + "." + reviewerID
}

func (r *Repository) SetComment(ctx context.Context, respondentID string, round services.Round, reviewerID string, c services.MemberComment) error {
	err := r.store.Update(ctx, models.CollectionResponses, respondentID, map[string]any{
		commentPath(round, reviewerID): map[string]any{
			"memberName":    c.MemberName,
			"memberComment": c.MemberComment,
		},
	})
	return mapErr(err, "response not found")
}

func (r *Repository) DeleteComment(ctx context.Context, respondentID string, round services.Round, reviewerID string) error {
	err := r.store.Update(ctx, models.CollectionResponses, respondentID, map[string]any{
		commentPath(round, reviewerID): docstore.DeleteField,
	})
	return mapErr(err, "response not found")
}
