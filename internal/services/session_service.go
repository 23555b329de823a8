package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quillsociety/auditions/internal/metrics"
)

// SessionStore is the persistence the session engine needs. GetResponse
// returns nil, nil for a respondent without a record.
type SessionStore interface {
	GetResponse(ctx context.Context, respondentID string) (*ResponseRecord, error)
	// CreateResponse makes an empty record if none exists and returns the
	// stored record.
	CreateResponse(ctx context.Context, respondentID string) (*ResponseRecord, error)
	ListQuestions(ctx context.Context) ([]*Question, error)
	ApplyRecordPatches(ctx context.Context, patches []RecordPatch) error
	SetAnswer(ctx context.Context, respondentID, questionID, text string) error
	SetCompletedAt(ctx context.Context, respondentID string, at time.Time) error
}

type SessionService struct {
	store  SessionStore
	logger *slog.Logger
	now    func() time.Time
}

func NewSessionService(store SessionStore, logger *slog.Logger) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CompletionResult is returned by Complete.
type CompletionResult struct {
	AllAnswered bool      `json:"allAnswered"`
	CompletedAt time.Time `json:"completedAt"`
	// FirstCompletion is true when this call stamped completedAt.
	FirstCompletion bool `json:"firstCompletion"`
}

// InitializeSession loads (or creates) the respondent's record, adds any
// bank question it lacks and returns a session over the unanswered ones.
func (s *SessionService) InitializeSession(ctx context.Context, caller Caller, respondentID string) (*Session, error) {
	if err := s.check(caller, respondentID); err != nil {
		return nil, err
	}
	var (
		record *ResponseRecord
		bank   []*Question
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		record, err = s.store.GetResponse(gctx, respondentID)
		return err
	})
	g.Go(func() error {
		var err error
		bank, err = s.store.ListQuestions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		metrics.Observe("session_init", err)
		return nil, storeError("load session", err)
	}
	if record == nil {
		var err error
		record, err = s.store.CreateResponse(ctx, respondentID)
		if err != nil {
			metrics.Observe("session_init", err)
			return nil, storeError("create response", err)
		}
		s.logger.Info("response record created", "respondent_id", respondentID)
	}

	rec := Reconcile(record, bank)
	if len(rec.Missing) > 0 {
		patches := make([]RecordPatch, 0, len(rec.Missing))
		for _, q := range rec.Missing {
			patches = append(patches, RecordPatch{Kind: PatchInsert, RespondentID: respondentID, QuestionID: q.ID, Text: q.Text})
		}
		if err := s.store.ApplyRecordPatches(ctx, patches); err != nil {
			metrics.Observe("session_init", err)
			return nil, storeError("reconcile response", err)
		}
		metrics.ReconciledEntries.Add(float64(len(patches)))
		s.logger.Debug("response record reconciled", "respondent_id", respondentID, "added", len(patches))
	}
	metrics.Observe("session_init", nil)
	return NewSession(respondentID, rec.Unanswered), nil
}

// Answer stores a response. Answers are final: a question that already has
// a response, or that the record does not contain, is rejected.
func (s *SessionService) Answer(ctx context.Context, caller Caller, respondentID, questionID, text string) error {
	if err := s.check(caller, respondentID); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return NewInvalidError("answer text required")
	}
	if strings.TrimSpace(questionID) == "" {
		return NewInvalidError("question id required")
	}
	record, err := s.store.GetResponse(ctx, respondentID)
	if err != nil {
		return storeError("get response", err)
	}
	if record == nil {
		return NewNotFoundError("session not initialized")
	}
	entry, ok := record.Questions[questionID]
	if !ok {
		return NewNotFoundError("question not in this session")
	}
	if entry.Answered() {
		return NewConflictError("question already answered")
	}
	err = s.store.SetAnswer(ctx, respondentID, questionID, text)
	metrics.Observe("session_answer", err)
	if err != nil {
		return storeError("save answer", err)
	}
	return nil
}

// Complete reports whether every question in the record is answered, using
// current data. completedAt is written only the first time.
func (s *SessionService) Complete(ctx context.Context, caller Caller, respondentID string) (*CompletionResult, error) {
	if err := s.check(caller, respondentID); err != nil {
		return nil, err
	}
	record, err := s.store.GetResponse(ctx, respondentID)
	if err != nil {
		return nil, storeError("get response", err)
	}
	if record == nil {
		return nil, NewNotFoundError("session not initialized")
	}
	res := &CompletionResult{AllAnswered: AllAnswered(record)}
	if record.CompletedAt != nil {
		res.CompletedAt = *record.CompletedAt
		metrics.Observe("session_complete", nil)
		return res, nil
	}
	now := s.now()
	err = s.store.SetCompletedAt(ctx, respondentID, now)
	metrics.Observe("session_complete", err)
	if err != nil {
		return nil, storeError("complete session", err)
	}
	res.CompletedAt = now
	res.FirstCompletion = true
	s.logger.Info("session completed", "respondent_id", respondentID, "all_answered", res.AllAnswered)
	return res, nil
}

func (s *SessionService) check(caller Caller, respondentID string) error {
	if strings.TrimSpace(respondentID) == "" {
		return NewInvalidError("respondent id required")
	}
	return authorize(caller, ActionTakeSession, Resource{OwnerID: respondentID})
}
