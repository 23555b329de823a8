package services

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quillsociety/auditions/internal/metrics"
)

// ReviewStore persists reviewer comments. SetComment and DeleteComment
// return a not_found ServiceError when the respondent has no record.
type ReviewStore interface {
	GetResponse(ctx context.Context, respondentID string) (*ResponseRecord, error)
	ListResponses(ctx context.Context) ([]*ResponseRecord, error)
	ListQuestions(ctx context.Context) ([]*Question, error)
	SetComment(ctx context.Context, respondentID string, round Round, reviewerID string, c MemberComment) error
	DeleteComment(ctx context.Context, respondentID string, round Round, reviewerID string) error
	AddAudit(ctx context.Context, entry AuditEntry)
}

type ReviewService struct {
	store  ReviewStore
	logger *slog.Logger
	now    func() time.Time
	// concurrency bounds parallel record reads in CompileReports.
	concurrency int
}

func NewReviewService(store ReviewStore, logger *slog.Logger) *ReviewService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewService{
		store:       store,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		concurrency: 8,
	}
}

// SaveComment records the caller's comment for a round, replacing any
// earlier comment by the same reviewer.
func (s *ReviewService) SaveComment(ctx context.Context, caller Caller, respondentID string, round Round, text string) error {
	if err := authorize(caller, ActionSaveComment, Resource{}); err != nil {
		return err
	}
	if strings.TrimSpace(respondentID) == "" {
		return NewInvalidError("respondent id required")
	}
	if _, err := ParseRound(string(round)); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return NewInvalidError("comment text required")
	}
	err := s.store.SetComment(ctx, respondentID, round, caller.UserID, MemberComment{MemberName: caller.Name, MemberComment: text})
	metrics.Observe("comment_save", err)
	if err != nil {
		return storeError("save comment", err)
	}
	s.store.AddAudit(ctx, AuditEntry{Time: s.now(), Actor: caller.UserID, Action: "comment.save", Target: respondentID, Note: string(round)})
	return nil
}

// DeleteComment removes one reviewer's comment for a round. Other
// reviewers' comments are untouched.
func (s *ReviewService) DeleteComment(ctx context.Context, caller Caller, respondentID string, round Round, reviewerID string) error {
	if reviewerID == "" {
		reviewerID = caller.UserID
	}
	if err := authorize(caller, ActionDeleteComment, Resource{OwnerID: reviewerID}); err != nil {
		return err
	}
	if strings.TrimSpace(respondentID) == "" {
		return NewInvalidError("respondent id required")
	}
	if _, err := ParseRound(string(round)); err != nil {
		return err
	}
	err := s.store.DeleteComment(ctx, respondentID, round, reviewerID)
	metrics.Observe("comment_delete", err)
	if err != nil {
		return storeError("delete comment", err)
	}
	s.store.AddAudit(ctx, AuditEntry{Time: s.now(), Actor: caller.UserID, Action: "comment.delete", Target: respondentID, Note: string(round) + ":" + reviewerID})
	return nil
}

// CompileReport returns every comment of a round. Entries are ordered by
// reviewer id, or by reviewer name when sortByName is set.
func (s *ReviewService) CompileReport(ctx context.Context, caller Caller, respondentID string, round Round, sortByName bool) ([]ReportEntry, error) {
	if err := authorize(caller, ActionReadReport, Resource{}); err != nil {
		return nil, err
	}
	if _, err := ParseRound(string(round)); err != nil {
		return nil, err
	}
	record, err := s.store.GetResponse(ctx, respondentID)
	if err != nil {
		return nil, storeError("get response", err)
	}
	if record == nil {
		return nil, NewNotFoundError("response not found")
	}
	return reportEntries(record, round, sortByName), nil
}

// CompileReports builds the round report for several respondents at once.
// An empty list means every respondent with a record.
func (s *ReviewService) CompileReports(ctx context.Context, caller Caller, respondentIDs []string, round Round, sortByName bool) ([]ReportEntry, error) {
	if err := authorize(caller, ActionReadReport, Resource{}); err != nil {
		return nil, err
	}
	if _, err := ParseRound(string(round)); err != nil {
		return nil, err
	}
	if len(respondentIDs) == 0 {
		records, err := s.store.ListResponses(ctx)
		if err != nil {
			return nil, storeError("list responses", err)
		}
		var out []ReportEntry
		for _, rec := range records {
			out = append(out, reportEntries(rec, round, sortByName)...)
		}
		return out, nil
	}

	results := make([][]ReportEntry, len(respondentIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range respondentIDs {
		g.Go(func() error {
			rec, err := s.store.GetResponse(gctx, id)
			if err != nil {
				return err
			}
			if rec == nil {
				s.logger.Warn("report skipped respondent without record", "respondent_id", id)
				return nil
			}
			results[i] = reportEntries(rec, round, sortByName)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storeError("compile reports", err)
	}
	var out []ReportEntry
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// ExportResponses renders every respondent's answers as CSV.
func (s *ReviewService) ExportResponses(ctx context.Context, caller Caller) ([]byte, error) {
	if err := authorize(caller, ActionReadReport, Resource{}); err != nil {
		return nil, err
	}
	var (
		records []*ResponseRecord
		bank    []*Question
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = s.store.ListResponses(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		bank, err = s.store.ListQuestions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, storeError("export responses", err)
	}
	return ExportResponsesCSV(records, bank)
}

func reportEntries(rec *ResponseRecord, round Round, sortByName bool) []ReportEntry {
	byReviewer := rec.MemberComments[round]
	out := make([]ReportEntry, 0, len(byReviewer))
	for reviewerID, c := range byReviewer {
		out = append(out, ReportEntry{
			RespondentID:  rec.RespondentID,
			Round:         round,
			ReviewerID:    reviewerID,
			MemberName:    c.MemberName,
			MemberComment: c.MemberComment,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if sortByName && out[i].MemberName != out[j].MemberName {
			return strings.ToLower(out[i].MemberName) < strings.ToLower(out[j].MemberName)
		}
		return out[i].ReviewerID < out[j].ReviewerID
	})
	return out
}
