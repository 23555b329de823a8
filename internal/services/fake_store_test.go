package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// fakeStore implements every store interface of the package in memory.
type fakeStore struct {
	mu        sync.Mutex
	questions map[string]*Question
	records   map[string]*ResponseRecord
	members   map[string]*Member
	audit     []AuditEntry
	nextID    int

	// patchCalls counts ApplyRecordPatches calls; failPatchCall makes the
	// call with that 1-based number fail.
	patchCalls    int
	failPatchCall int
	failList      bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		questions: map[string]*Question{},
		records:   map[string]*ResponseRecord{},
		members:   map[string]*Member{},
	}
}

var (
	_ QuestionStore = (*fakeStore)(nil)
	_ SessionStore  = (*fakeStore)(nil)
	_ ReviewStore   = (*fakeStore)(nil)
	_ MemberStore   = (*fakeStore)(nil)
	_ AuditStore    = (*fakeStore)(nil)
)

func (s *fakeStore) InsertQuestion(_ context.Context, q *Question) (*Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	cp := *q
	cp.ID = fmt.Sprintf("q%02d", s.nextID)
	s.questions[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *fakeStore) GetQuestion(_ context.Context, id string) (*Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[id]
	if !ok {
		return nil, nil
	}
	cp := *q
	return &cp, nil
}

func (s *fakeStore) UpdateQuestion(_ context.Context, q *Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[q.ID]; !ok {
		return NewNotFoundError("question not found")
	}
	cp := *q
	s.questions[q.ID] = &cp
	return nil
}

func (s *fakeStore) DeleteQuestion(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.questions, id)
	return nil
}

func (s *fakeStore) ListQuestions(_ context.Context) ([]*Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Question, 0, len(s.questions))
	for _, q := range s.questions {
		cp := *q
		out = append(out, &cp)
	}
	SortBank(out)
	return out, nil
}

func (s *fakeStore) ListResponses(_ context.Context) ([]*ResponseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, errors.New("list failed")
	}
	out := make([]*ResponseRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RespondentID < out[j].RespondentID })
	return out, nil
}

func (s *fakeStore) ApplyRecordPatches(_ context.Context, patches []RecordPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patchCalls++
	if s.failPatchCall == s.patchCalls {
		return errors.New("batch rejected")
	}
	for _, p := range patches {
		rec := s.records[p.RespondentID]
		if rec == nil {
			continue
		}
		if rec.Questions == nil {
			rec.Questions = map[string]QuestionEntry{}
		}
		switch p.Kind {
		case PatchInsert:
			e := rec.Questions[p.QuestionID]
			e.Text = p.Text
			rec.Questions[p.QuestionID] = e
		case PatchText:
			e := rec.Questions[p.QuestionID]
			e.Text = p.Text
			rec.Questions[p.QuestionID] = e
		case PatchRemove:
			delete(rec.Questions, p.QuestionID)
		}
	}
	return nil
}

func (s *fakeStore) AddAudit(_ context.Context, entry AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
}

func (s *fakeStore) ListAudit(_ context.Context, limit int) ([]AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEntry, 0, len(s.audit))
	for i := len(s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.audit[i])
	}
	return out, nil
}

func (s *fakeStore) auditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.audit))
	for _, e := range s.audit {
		out = append(out, e.Action)
	}
	return out
}

func (s *fakeStore) GetResponse(_ context.Context, id string) (*ResponseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].Clone(), nil
}

func (s *fakeStore) CreateResponse(_ context.Context, id string) (*ResponseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		s.records[id] = &ResponseRecord{RespondentID: id, Questions: map[string]QuestionEntry{}}
	}
	return s.records[id].Clone(), nil
}

func (s *fakeStore) SetAnswer(_ context.Context, rid, qid, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[rid]
	if !ok {
		return NewNotFoundError("response not found")
	}
	e := rec.Questions[qid]
	v := text
	e.Response = &v
	rec.Questions[qid] = e
	return nil
}

func (s *fakeStore) SetCompletedAt(_ context.Context, rid string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[rid]
	if !ok {
		return NewNotFoundError("response not found")
	}
	t := at
	rec.CompletedAt = &t
	return nil
}

func (s *fakeStore) SetComment(_ context.Context, rid string, round Round, reviewerID string, c MemberComment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[rid]
	if !ok {
		return NewNotFoundError("response not found")
	}
	if rec.MemberComments == nil {
		rec.MemberComments = map[Round]map[string]MemberComment{}
	}
	if rec.MemberComments[round] == nil {
		rec.MemberComments[round] = map[string]MemberComment{}
	}
	rec.MemberComments[round][reviewerID] = c
	return nil
}

func (s *fakeStore) DeleteComment(_ context.Context, rid string, round Round, reviewerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[rid]
	if !ok {
		return NewNotFoundError("response not found")
	}
	delete(rec.MemberComments[round], reviewerID)
	return nil
}

func (s *fakeStore) FindMemberByEmail(_ context.Context, email string) (*Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if m.Email == email {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) GetMember(_ context.Context, id string) (*Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) PutMember(_ context.Context, m *Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.members[m.ID] = &cp
	return nil
}

func (s *fakeStore) ListMembers(_ context.Context) ([]*Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Member, 0, len(s.members))
	for _, m := range s.members {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

// seedQuestion inserts a question directly, bypassing fan-out.
func (s *fakeStore) seedQuestion(id, text, authorID string, created time.Time) *Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := &Question{ID: id, Text: text, AddedBy: "name-" + authorID, AddedByID: authorID, Type: QuestionAdd, CreatedAt: created}
	s.questions[id] = q
	cp := *q
	return &cp
}

func (s *fakeStore) record(id string) *ResponseRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].Clone()
}

func strPtr(s string) *string { return &s }

var (
	admin   = Caller{UserID: "admin1", Name: "Ada Admin", Role: RoleAdmin}
	member  = Caller{UserID: "mem1", Name: "Mona Member", Role: RoleMember}
	member2 = Caller{UserID: "mem2", Name: "Bert Member", Role: RoleMember}
	lcite   = Caller{UserID: "lc1", Name: "Lea LCite", Role: RoleLCite}
	student = Caller{UserID: "R", Name: "Rae Student", Role: RoleStudent}
)
