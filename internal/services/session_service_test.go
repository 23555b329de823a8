package services

import (
	"context"
	"testing"
	"time"
)

func newSessionSvc(store *fakeStore, now time.Time) *SessionService {
	svc := NewSessionService(store, nil)
	svc.now = func() time.Time { return now }
	return svc
}

// Bank [Q1, Q2], respondent R has no record.
func TestSessionScenario(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.seedQuestion("Q1", "one", "m", base)
	store.seedQuestion("Q2", "two", "m", base.Add(time.Minute))
	svc := newSessionSvc(store, base.Add(time.Hour))

	sess, err := svc.InitializeSession(ctx, student, "R")
	if err != nil {
		t.Fatalf("InitializeSession: %v", err)
	}
	if got := ids(sess.Unanswered()); !sameIDs(got, []string{"Q2", "Q1"}) {
		t.Fatalf("unanswered = %v, want [Q2 Q1]", got)
	}
	rec := store.record("R")
	if len(rec.Questions) != 2 || rec.Questions["Q1"].Response != nil || rec.Questions["Q2"].Response != nil {
		t.Fatalf("record after init = %+v", rec.Questions)
	}
	if rec.CompletedAt != nil {
		t.Fatalf("new record should not be completed")
	}

	if err := svc.Answer(ctx, student, "R", "Q2", "hello"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got := store.record("R").Questions["Q2"].Response; got == nil || *got != "hello" {
		t.Fatalf("Q2 response = %v", got)
	}

	sess, err = svc.InitializeSession(ctx, student, "R")
	if err != nil {
		t.Fatalf("second InitializeSession: %v", err)
	}
	if got := ids(sess.Unanswered()); !sameIDs(got, []string{"Q1"}) {
		t.Fatalf("unanswered = %v, want [Q1]", got)
	}

	res, err := svc.Complete(ctx, student, "R")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.AllAnswered {
		t.Fatalf("allAnswered = true with Q1 open")
	}
}

func TestSkipEverythingThenComplete(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.seedQuestion("Q1", "one", "m", time.Now())
	store.seedQuestion("Q2", "two", "m", time.Now())
	svc := newSessionSvc(store, time.Now())

	sess, err := svc.InitializeSession(ctx, student, "R")
	if err != nil {
		t.Fatalf("InitializeSession: %v", err)
	}
	for !sess.Done() {
		sess.Skip()
	}
	res, err := svc.Complete(ctx, student, "R")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.AllAnswered {
		t.Fatalf("skipping everything must not count as answered")
	}
}

func TestAnswerEverythingThenComplete(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.seedQuestion("Q1", "one", "m", time.Now())
	store.seedQuestion("Q2", "two", "m", time.Now())
	svc := newSessionSvc(store, time.Now())

	sess, err := svc.InitializeSession(ctx, student, "R")
	if err != nil {
		t.Fatalf("InitializeSession: %v", err)
	}
	for !sess.Done() {
		q, _ := sess.Current()
		if err := svc.Answer(ctx, student, "R", q.ID, "answer to "+q.ID); err != nil {
			t.Fatalf("Answer %s: %v", q.ID, err)
		}
		sess.Advance()
	}
	res, err := svc.Complete(ctx, student, "R")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !res.AllAnswered || !res.FirstCompletion {
		t.Fatalf("result = %+v", res)
	}
}

func TestCompleteStampsOnceAndRecomputes(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.seedQuestion("Q1", "one", "m", time.Now())
	first := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	svc := newSessionSvc(store, first)

	if _, err := svc.InitializeSession(ctx, student, "R"); err != nil {
		t.Fatalf("InitializeSession: %v", err)
	}
	res, err := svc.Complete(ctx, student, "R")
	if err != nil || res.AllAnswered || !res.FirstCompletion {
		t.Fatalf("first Complete = %+v, %v", res, err)
	}

	if err := svc.Answer(ctx, student, "R", "Q1", "late"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	svc.now = func() time.Time { return first.Add(24 * time.Hour) }
	res, err = svc.Complete(ctx, student, "R")
	if err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if !res.AllAnswered {
		t.Fatalf("allAnswered must reflect current data")
	}
	if res.FirstCompletion || !res.CompletedAt.Equal(first) {
		t.Fatalf("completedAt overwritten: %+v", res)
	}
	if got := store.record("R").CompletedAt; got == nil || !got.Equal(first) {
		t.Fatalf("stored completedAt = %v", got)
	}
}

func TestAnswerRules(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.seedQuestion("Q1", "one", "m", time.Now())
	svc := newSessionSvc(store, time.Now())

	if err := svc.Answer(ctx, student, "R", "Q1", "x"); !IsCode(err, ErrorNotFound) {
		t.Fatalf("answer before init err = %v", err)
	}
	if _, err := svc.InitializeSession(ctx, student, "R"); err != nil {
		t.Fatalf("InitializeSession: %v", err)
	}
	if err := svc.Answer(ctx, student, "R", "Q1", "   "); !IsCode(err, ErrorInvalid) {
		t.Fatalf("blank answer err = %v", err)
	}
	if store.record("R").Questions["Q1"].Response != nil {
		t.Fatalf("blank answer was written")
	}
	if err := svc.Answer(ctx, student, "R", "nope", "x"); !IsCode(err, ErrorNotFound) {
		t.Fatalf("unknown question err = %v", err)
	}
	if err := svc.Answer(ctx, student, "R", "Q1", " first "); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if err := svc.Answer(ctx, student, "R", "Q1", "second"); !IsCode(err, ErrorConflict) {
		t.Fatalf("re-answer err = %v", err)
	}
	if got := *store.record("R").Questions["Q1"].Response; got != "first" {
		t.Fatalf("response = %q, want first", got)
	}
	if err := svc.Answer(ctx, Caller{UserID: "other", Role: RoleStudent}, "R", "Q1", "x"); !IsCode(err, ErrorForbidden) {
		t.Fatalf("foreign respondent err = %v", err)
	}
}

func TestInitializeSessionPicksUpNewQuestions(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.seedQuestion("Q1", "one", "m", base)
	svc := newSessionSvc(store, base)
	if _, err := svc.InitializeSession(ctx, student, "R"); err != nil {
		t.Fatalf("InitializeSession: %v", err)
	}
	// Added behind the fan-out's back.
	store.seedQuestion("Q3", "three", "m", base.Add(time.Hour))
	sess, err := svc.InitializeSession(ctx, student, "R")
	if err != nil {
		t.Fatalf("InitializeSession: %v", err)
	}
	if got := ids(sess.Unanswered()); !sameIDs(got, []string{"Q3", "Q1"}) {
		t.Fatalf("unanswered = %v", got)
	}
	bank, _ := store.ListQuestions(ctx)
	rec := store.record("R")
	for _, q := range bank {
		if _, ok := rec.Questions[q.ID]; !ok {
			t.Fatalf("bank question %s missing from record", q.ID)
		}
	}
}
