package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillsociety/auditions/internal/docstore/memory"
	"github.com/quillsociety/auditions/internal/models"
	"github.com/quillsociety/auditions/internal/services"
)

var (
	student = services.Caller{UserID: "R", Name: "Rae", Role: services.RoleStudent}
	member  = services.Caller{UserID: "mem1", Name: "Mona", Role: services.RoleMember}
	member2 = services.Caller{UserID: "mem2", Name: "Bert", Role: services.RoleMember}
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	repo := NewRepository(memory.NewStore(), nil)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func insertQuestion(t *testing.T, repo *Repository, text string, created time.Time) *services.Question {
	t.Helper()
	q, err := repo.InsertQuestion(context.Background(), &services.Question{
		Text: text, AddedBy: "Mona", AddedByID: "mem1", Type: services.QuestionAdd, CreatedAt: created,
	})
	require.NoError(t, err)
	return q
}

func unansweredIDs(s *services.Session) []string {
	var out []string
	for _, q := range s.Unanswered() {
		out = append(out, q.ID)
	}
	return out
}

func TestQuestionRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	q := insertQuestion(t, repo, "Why poetry?", created)
	require.NotEmpty(t, q.ID)

	got, err := repo.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, q, got)

	got.Text = "Why verse?"
	got.Type = services.QuestionEdit
	got.LastEditedBy = "Bert"
	require.NoError(t, repo.UpdateQuestion(ctx, got))
	again, err := repo.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "Why verse?", again.Text)
	assert.Equal(t, services.QuestionEdit, again.Type)
	assert.Equal(t, "Bert", again.LastEditedBy)

	missing, err := repo.GetQuestion(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = repo.UpdateQuestion(ctx, &services.Question{ID: "nope", Text: "x"})
	assert.True(t, services.IsCode(err, services.ErrorNotFound), "err = %v", err)

	require.NoError(t, repo.DeleteQuestion(ctx, q.ID))
	gone, err := repo.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestListQuestionsNewestFirst(t *testing.T) {
	repo := newRepo(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	old := insertQuestion(t, repo, "old", base)
	newer := insertQuestion(t, repo, "newer", base.Add(time.Hour))
	qs, err := repo.ListQuestions(context.Background())
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, newer.ID, qs[0].ID)
	assert.Equal(t, old.ID, qs[1].ID)
}

// Bank [Q1, Q2]; R has no record; answer Q2; re-init; complete.
func TestSessionScenarioEndToEnd(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	q1 := insertQuestion(t, repo, "one", base)
	q2 := insertQuestion(t, repo, "two", base.Add(time.Minute))
	sessions := services.NewSessionService(repo, nil)

	sess, err := sessions.InitializeSession(ctx, student, "R")
	require.NoError(t, err)
	assert.Equal(t, []string{q2.ID, q1.ID}, unansweredIDs(sess))

	doc, err := repo.Store().Get(ctx, models.CollectionResponses, "R")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		q1.ID: map[string]any{"text": "one", "response": nil},
		q2.ID: map[string]any{"text": "two", "response": nil},
	}, doc.Data["questions"])
	assert.Nil(t, doc.Data["completedAt"])

	require.NoError(t, sessions.Answer(ctx, student, "R", q2.ID, "hello"))
	rec, err := repo.GetResponse(ctx, "R")
	require.NoError(t, err)
	require.NotNil(t, rec.Questions[q2.ID].Response)
	assert.Equal(t, "hello", *rec.Questions[q2.ID].Response)

	sess, err = sessions.InitializeSession(ctx, student, "R")
	require.NoError(t, err)
	assert.Equal(t, []string{q1.ID}, unansweredIDs(sess))

	res, err := sessions.Complete(ctx, student, "R")
	require.NoError(t, err)
	assert.False(t, res.AllAnswered)
	assert.True(t, res.FirstCompletion)

	rec, err = repo.GetResponse(ctx, "R")
	require.NoError(t, err)
	require.NotNil(t, rec.CompletedAt)
	assert.WithinDuration(t, res.CompletedAt, *rec.CompletedAt, time.Millisecond)
}

func TestFanOutThroughRepository(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	_, err := repo.CreateResponse(ctx, "R1")
	require.NoError(t, err)
	_, err = repo.CreateResponse(ctx, "R2")
	require.NoError(t, err)
	questions := services.NewQuestionService(repo, nil)

	q, err := questions.AddQuestion(ctx, member, "Favourite line?")
	require.NoError(t, err)
	for _, rid := range []string{"R1", "R2"} {
		rec, err := repo.GetResponse(ctx, rid)
		require.NoError(t, err)
		require.Contains(t, rec.Questions, q.ID)
		assert.Nil(t, rec.Questions[q.ID].Response)
	}

	require.NoError(t, repo.SetAnswer(ctx, "R1", q.ID, "to be or not"))
	_, err = questions.EditQuestion(ctx, member2, q.ID, "Favourite stanza?")
	require.NoError(t, err)
	rec, err := repo.GetResponse(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, "Favourite stanza?", rec.Questions[q.ID].Text)
	require.NotNil(t, rec.Questions[q.ID].Response)
	assert.Equal(t, "to be or not", *rec.Questions[q.ID].Response)

	require.NoError(t, questions.DeleteQuestion(ctx, member, q.ID))
	for _, rid := range []string{"R1", "R2"} {
		rec, err := repo.GetResponse(ctx, rid)
		require.NoError(t, err)
		assert.NotContains(t, rec.Questions, q.ID)
	}

	entries, err := repo.ListAudit(ctx, 10)
	require.NoError(t, err)
	var actions []string
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.ElementsMatch(t, []string{"question.add", "question.edit", "question.delete"}, actions)
}

// staleListing runs hook once right after ListResponses returns, so the
// fan-out works from a listing that is already out of date.
type staleListing struct {
	*Repository
	hook func()
}

func (s *staleListing) ListResponses(ctx context.Context) ([]*services.ResponseRecord, error) {
	recs, err := s.Repository.ListResponses(ctx)
	if s.hook != nil {
		s.hook()
		s.hook = nil
	}
	return recs, err
}

func TestAddFanOutKeepsAnswerSavedAfterListing(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	_, err := repo.CreateResponse(ctx, "R")
	require.NoError(t, err)
	sessions := services.NewSessionService(repo, nil)

	var answered string
	store := &staleListing{Repository: repo}
	store.hook = func() {
		sess, err := sessions.InitializeSession(ctx, student, "R")
		require.NoError(t, err)
		ids := unansweredIDs(sess)
		require.Len(t, ids, 1)
		answered = ids[0]
		require.NoError(t, sessions.Answer(ctx, student, "R", answered, "first thoughts"))
	}
	q, err := services.NewQuestionService(store, nil).AddQuestion(ctx, member, "Why poetry?")
	require.NoError(t, err)
	require.Equal(t, q.ID, answered)

	rec, err := repo.GetResponse(ctx, "R")
	require.NoError(t, err)
	require.NotNil(t, rec.Questions[q.ID].Response)
	assert.Equal(t, "first thoughts", *rec.Questions[q.ID].Response)
	assert.Equal(t, "Why poetry?", rec.Questions[q.ID].Text)
}

func TestCreateResponseKeepsExistingRecord(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	_, err := repo.CreateResponse(ctx, "R")
	require.NoError(t, err)
	require.NoError(t, repo.ApplyRecordPatches(ctx, []services.RecordPatch{
		{Kind: services.PatchInsert, RespondentID: "R", QuestionID: "q1", Text: "t"},
	}))
	require.NoError(t, repo.SetAnswer(ctx, "R", "q1", "kept"))
	done := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SetCompletedAt(ctx, "R", done))

	rec, err := repo.CreateResponse(ctx, "R")
	require.NoError(t, err)
	require.NotNil(t, rec.Questions["q1"].Response)
	assert.Equal(t, "kept", *rec.Questions["q1"].Response)
	require.NotNil(t, rec.CompletedAt)
	assert.True(t, done.Equal(*rec.CompletedAt))
}

func TestRecordPatchesCommitTogether(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	_, err := repo.CreateResponse(ctx, "R")
	require.NoError(t, err)
	require.NoError(t, repo.ApplyRecordPatches(ctx, []services.RecordPatch{
		{Kind: services.PatchInsert, RespondentID: "R", QuestionID: "a", Text: "A"},
		{Kind: services.PatchInsert, RespondentID: "R", QuestionID: "b", Text: "B"},
		{Kind: services.PatchText, RespondentID: "R", QuestionID: "a", Text: "A2"},
		{Kind: services.PatchRemove, RespondentID: "R", QuestionID: "b"},
	}))
	rec, err := repo.GetResponse(ctx, "R")
	require.NoError(t, err)
	assert.Equal(t, map[string]services.QuestionEntry{"a": {Text: "A2"}}, rec.Questions)

	err = repo.ApplyRecordPatches(ctx, []services.RecordPatch{
		{Kind: services.PatchInsert, RespondentID: "R", QuestionID: "c", Text: "C"},
		{Kind: services.PatchInsert, RespondentID: "bad/id", QuestionID: "d", Text: "D"},
	})
	require.Error(t, err)
	rec, err = repo.GetResponse(ctx, "R")
	require.NoError(t, err)
	assert.NotContains(t, rec.Questions, "c", "a failed batch must not apply partially")
}

func TestInsertPatchKeepsSavedAnswer(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	_, err := repo.CreateResponse(ctx, "R")
	require.NoError(t, err)
	require.NoError(t, repo.ApplyRecordPatches(ctx, []services.RecordPatch{
		{Kind: services.PatchInsert, RespondentID: "R", QuestionID: "q1", Text: "first"},
	}))
	require.NoError(t, repo.SetAnswer(ctx, "R", "q1", "mine"))

	// A fan-out working from a listing taken before the answer.
	require.NoError(t, repo.ApplyRecordPatches(ctx, []services.RecordPatch{
		{Kind: services.PatchInsert, RespondentID: "R", QuestionID: "q1", Text: "first"},
	}))
	rec, err := repo.GetResponse(ctx, "R")
	require.NoError(t, err)
	require.NotNil(t, rec.Questions["q1"].Response)
	assert.Equal(t, "mine", *rec.Questions["q1"].Response)
}

func TestRecordPatchesSkipDeletedRecords(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	for _, id := range []string{"R", "S"} {
		_, err := repo.CreateResponse(ctx, id)
		require.NoError(t, err)
	}
	require.NoError(t, repo.store.Delete(ctx, models.CollectionResponses, "S"))

	require.NoError(t, repo.ApplyRecordPatches(ctx, []services.RecordPatch{
		{Kind: services.PatchInsert, RespondentID: "R", QuestionID: "q1", Text: "T"},
		{Kind: services.PatchInsert, RespondentID: "S", QuestionID: "q1", Text: "T"},
		{Kind: services.PatchText, RespondentID: "S", QuestionID: "q1", Text: "T2"},
		{Kind: services.PatchRemove, RespondentID: "S", QuestionID: "q0"},
	}))
	rec, err := repo.GetResponse(ctx, "S")
	require.NoError(t, err)
	assert.Nil(t, rec, "patches must not recreate a deleted record")
	rec, err = repo.GetResponse(ctx, "R")
	require.NoError(t, err)
	assert.Equal(t, map[string]services.QuestionEntry{"q1": {Text: "T"}}, rec.Questions)
}

func TestCommentsPerReviewer(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	_, err := repo.CreateResponse(ctx, "R")
	require.NoError(t, err)
	reviews := services.NewReviewService(repo, nil)

	require.NoError(t, reviews.SaveComment(ctx, member, "R", services.Round1, "first"))
	require.NoError(t, reviews.SaveComment(ctx, member, "R", services.Round1, "second"))
	require.NoError(t, reviews.SaveComment(ctx, member2, "R", services.Round1, "other"))

	report, err := reviews.CompileReport(ctx, member, "R", services.Round1, false)
	require.NoError(t, err)
	require.Len(t, report, 2)
	assert.Equal(t, "second", report[0].MemberComment)
	assert.Equal(t, "Mona", report[0].MemberName)

	require.NoError(t, reviews.DeleteComment(ctx, member, "R", services.Round1, ""))
	report, err = reviews.CompileReport(ctx, member, "R", services.Round1, false)
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, "mem2", report[0].ReviewerID)

	err = reviews.SaveComment(ctx, member, "ghost", services.Round2, "x")
	assert.True(t, services.IsCode(err, services.ErrorNotFound), "err = %v", err)
}

func TestMembers(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	auth := services.NewAuthService(repo, func(uid, name string, role services.Role, ttl time.Duration) (string, error) {
		return "tok-" + uid, nil
	})
	m, err := auth.AddMember(ctx, "Ada@Example.com", "Ada", "pw-123", services.RoleAdmin)
	require.NoError(t, err)

	found, err := repo.FindMemberByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, m.ID, found.ID)
	assert.Equal(t, services.RoleAdmin, found.Role)
	assert.Equal(t, m.PassHash, found.PassHash)

	res, err := auth.Login(ctx, "ada@example.com", "pw-123")
	require.NoError(t, err)
	assert.Equal(t, "tok-"+m.ID, res.Token)

	none, err := repo.FindMemberByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestAuditNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, a := range []string{"one", "two", "three"} {
		repo.AddAudit(ctx, services.AuditEntry{Time: base.Add(time.Duration(i) * time.Second), Action: a})
	}
	entries, err := repo.ListAudit(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "three", entries[0].Action)
	assert.Equal(t, "two", entries[1].Action)
	assert.Equal(t, base.Add(2*time.Second), entries[0].Time)
}

func TestWatchQuestions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := newRepo(t)
	snapshots := make(chan []*services.Question, 8)
	require.NoError(t, repo.WatchQuestions(ctx, func(qs []*services.Question, err error) {
		if err == nil {
			snapshots <- qs
		}
	}))

	next := func() []*services.Question {
		select {
		case qs := <-snapshots:
			return qs
		case <-time.After(2 * time.Second):
			t.Fatal("no snapshot")
			return nil
		}
	}
	assert.Empty(t, next())
	q := insertQuestion(t, repo, "live", time.Now())
	got := next()
	require.Len(t, got, 1)
	assert.Equal(t, q.ID, got[0].ID)
}

func TestCopyCollections(t *testing.T) {
	ctx := context.Background()
	src := newRepo(t)
	insertQuestion(t, src, "one", time.Now())
	insertQuestion(t, src, "two", time.Now())
	_, err := src.CreateResponse(ctx, "R")
	require.NoError(t, err)

	dst := memory.NewStore()
	defer dst.Close()
	stats, err := CopyCollections(ctx, src.Store(), dst, nil, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats[models.CollectionQuestions])
	assert.Equal(t, 1, stats[models.CollectionResponses])

	copied, err := NewRepository(dst, nil).ListQuestions(ctx)
	require.NoError(t, err)
	assert.Len(t, copied, 2)

	_, err = CopyCollections(ctx, nil, dst, nil, 0, nil)
	assert.Error(t, err)
}
