package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quillsociety/auditions/internal/metrics"
)

// DefaultFanOutBatchSize bounds the writes per atomic fan-out batch.
const DefaultFanOutBatchSize = 500

// QuestionStore is the persistence the question bank needs. GetQuestion
// returns nil, nil when the question does not exist.
type QuestionStore interface {
	InsertQuestion(ctx context.Context, q *Question) (*Question, error)
	GetQuestion(ctx context.Context, id string) (*Question, error)
	UpdateQuestion(ctx context.Context, q *Question) error
	DeleteQuestion(ctx context.Context, id string) error
	ListQuestions(ctx context.Context) ([]*Question, error)
	ListResponses(ctx context.Context) ([]*ResponseRecord, error)
	// ApplyRecordPatches writes every patch in one atomic batch.
	ApplyRecordPatches(ctx context.Context, patches []RecordPatch) error
	AddAudit(ctx context.Context, entry AuditEntry)
}

type QuestionService struct {
	store     QuestionStore
	logger    *slog.Logger
	now       func() time.Time
	batchSize int
}

func NewQuestionService(store QuestionStore, logger *slog.Logger) *QuestionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuestionService{
		store:     store,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		batchSize: DefaultFanOutBatchSize,
	}
}

// SetBatchSize changes the fan-out batch size. Non-positive values restore
// the default.
func (s *QuestionService) SetBatchSize(n int) {
	if n <= 0 {
		n = DefaultFanOutBatchSize
	}
	s.batchSize = n
}

// FanOutError reports a fan-out that stopped part way.
type FanOutError struct {
	Action  string
	Applied int
	Total   int
	Err     error
}

func (e *FanOutError) Error() string {
	return fmt.Sprintf("%s fan-out patched %d of %d records: %v", e.Action, e.Applied, e.Total, e.Err)
}

func (e *FanOutError) Unwrap() error { return e.Err }

func (s *QuestionService) ListQuestions(ctx context.Context, caller Caller) ([]*Question, error) {
	if err := authorize(caller, ActionListQuestions, Resource{}); err != nil {
		return nil, err
	}
	qs, err := s.store.ListQuestions(ctx)
	if err != nil {
		return nil, storeError("list questions", err)
	}
	return qs, nil
}

func (s *QuestionService) GetQuestion(ctx context.Context, caller Caller, id string) (*Question, error) {
	if err := authorize(caller, ActionListQuestions, Resource{}); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

func (s *QuestionService) load(ctx context.Context, id string) (*Question, error) {
	if strings.TrimSpace(id) == "" {
		return nil, NewInvalidError("question id required")
	}
	q, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return nil, storeError("get question", err)
	}
	if q == nil {
		return nil, NewNotFoundError("question not found")
	}
	return q, nil
}

// AddQuestion creates a question and copies it into every response record.
// A failed fan-out is logged and audited but does not fail the call; the
// next session start for each affected respondent repairs it.
func (s *QuestionService) AddQuestion(ctx context.Context, caller Caller, text string) (*Question, error) {
	if err := authorize(caller, ActionAddQuestion, Resource{}); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, NewInvalidError("question text required")
	}
	q := &Question{
		Text:      text,
		AddedBy:   caller.Name,
		AddedByID: caller.UserID,
		Type:      QuestionAdd,
		CreatedAt: s.now(),
	}
	created, err := s.store.InsertQuestion(ctx, q)
	metrics.Observe("question_add", err)
	if err != nil {
		return nil, storeError("insert question", err)
	}
	s.store.AddAudit(ctx, AuditEntry{Time: s.now(), Actor: caller.UserID, Action: "question.add", Target: created.ID})

	err = s.fanOut(ctx, "add", func(rec *ResponseRecord) (RecordPatch, bool) {
		if _, ok := rec.Questions[created.ID]; ok {
			return RecordPatch{}, false
		}
		return RecordPatch{Kind: PatchInsert, RespondentID: rec.RespondentID, QuestionID: created.ID, Text: created.Text}, true
	})
	if err != nil {
		s.fanOutFailed(ctx, caller, "add", "fanout_partial", created.ID, err)
	}
	return created, nil
}

// EditQuestion changes the text. The author keeps type "add" only while no
// one else has edited the question.
func (s *QuestionService) EditQuestion(ctx context.Context, caller Caller, id, text string) (*Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, NewInvalidError("question text required")
	}
	q, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, ActionEditQuestion, Resource{OwnerID: q.AddedByID, QuestionType: q.Type}); err != nil {
		return nil, err
	}
	updated := *q
	updated.Text = text
	if caller.UserID != q.AddedByID || q.Type != QuestionAdd {
		updated.Type = QuestionEdit
		updated.LastEditedBy = caller.Name
	}
	err = s.store.UpdateQuestion(ctx, &updated)
	metrics.Observe("question_edit", err)
	if err != nil {
		return nil, storeError("update question", err)
	}
	s.store.AddAudit(ctx, AuditEntry{Time: s.now(), Actor: caller.UserID, Action: "question.edit", Target: id, Note: string(updated.Type)})

	err = s.fanOut(ctx, "edit", func(rec *ResponseRecord) (RecordPatch, bool) {
		if _, ok := rec.Questions[id]; !ok {
			return RecordPatch{}, false
		}
		return RecordPatch{Kind: PatchText, RespondentID: rec.RespondentID, QuestionID: id, Text: text}, true
	})
	if err != nil {
		s.fanOutFailed(ctx, caller, "edit", "fanout_partial", id, err)
	}
	return &updated, nil
}

// DeleteQuestion removes the question, then drops it from every record. Only
// the first step decides the result; answers stored under the question are
// lost with it. Records the cascade missed are audited as residual_delete
// for an operator to clean up.
func (s *QuestionService) DeleteQuestion(ctx context.Context, caller Caller, id string) error {
	q, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(caller, ActionDeleteQuestion, Resource{OwnerID: q.AddedByID, QuestionType: q.Type}); err != nil {
		return err
	}
	err = s.store.DeleteQuestion(ctx, id)
	metrics.Observe("question_delete", err)
	if err != nil {
		return storeError("delete question", err)
	}
	s.store.AddAudit(ctx, AuditEntry{Time: s.now(), Actor: caller.UserID, Action: "question.delete", Target: id})

	err = s.fanOut(ctx, "delete", func(rec *ResponseRecord) (RecordPatch, bool) {
		if _, ok := rec.Questions[id]; !ok {
			return RecordPatch{}, false
		}
		return RecordPatch{Kind: PatchRemove, RespondentID: rec.RespondentID, QuestionID: id}, true
	})
	if err != nil {
		s.fanOutFailed(ctx, caller, "delete", "residual_delete", id, err)
	}
	return nil
}

// fanOut builds one patch per matching record and commits them in batches of
// batchSize. It stops at the first failed batch.
func (s *QuestionService) fanOut(ctx context.Context, action string, build func(*ResponseRecord) (RecordPatch, bool)) error {
	records, err := s.store.ListResponses(ctx)
	if err != nil {
		return &FanOutError{Action: action, Err: fmt.Errorf("list responses: %w", err)}
	}
	var patches []RecordPatch
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if p, ok := build(rec); ok {
			patches = append(patches, p)
		}
	}
	applied := 0
	for start := 0; start < len(patches); start += s.batchSize {
		end := start + s.batchSize
		if end > len(patches) {
			end = len(patches)
		}
		if err := s.store.ApplyRecordPatches(ctx, patches[start:end]); err != nil {
			metrics.FanOutRecords.WithLabelValues(action).Add(float64(applied))
			return &FanOutError{Action: action, Applied: applied, Total: len(patches), Err: err}
		}
		applied = end
	}
	metrics.FanOutRecords.WithLabelValues(action).Add(float64(applied))
	s.logger.Debug("question fan-out done", "action", action, "records", applied)
	return nil
}

func (s *QuestionService) fanOutFailed(ctx context.Context, caller Caller, action, auditAction, questionID string, err error) {
	metrics.FanOutFailures.WithLabelValues(action).Inc()
	s.logger.Error("question fan-out incomplete",
		"action", action,
		"question_id", questionID,
		"error", err,
	)
	s.store.AddAudit(ctx, AuditEntry{
		Time:   s.now(),
		Actor:  caller.UserID,
		Action: auditAction,
		Target: questionID,
		Note:   err.Error(),
	})
}
