package services

import (
	"strings"
	"time"
)

// Role is the caller's standing in the society.
type Role string

const (
	RoleStudent Role = "student"
	RoleLCite   Role = "LCite"
	RoleMember  Role = "member"
	RoleAdmin   Role = "admin"
)

// ParseRole accepts a role name case-insensitively.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "student":
		return RoleStudent, true
	case "lcite":
		return RoleLCite, true
	case "member":
		return RoleMember, true
	case "admin":
		return RoleAdmin, true
	}
	return "", false
}

// Caller is the resolved identity making a request.
type Caller struct {
	UserID string
	Name   string
	Role   Role
}

type QuestionType string

const (
	QuestionAdd  QuestionType = "add"
	QuestionEdit QuestionType = "edit"
)

// Question is one entry in the shared audition question bank.
type Question struct {
	ID           string       `json:"id"`
	Text         string       `json:"text"`
	AddedBy      string       `json:"addedBy"`
	AddedByID    string       `json:"addedById"`
	Type         QuestionType `json:"type"`
	LastEditedBy string       `json:"lastEditedBy,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// QuestionEntry is a respondent's copy of a question. Response is nil until
// answered.
type QuestionEntry struct {
	Text     string  `json:"text"`
	Response *string `json:"response"`
}

// Answered reports whether the entry holds a response.
func (e QuestionEntry) Answered() bool { return e.Response != nil }

type Round string

const (
	Round1 Round = "round1"
	Round2 Round = "round2"
	Round3 Round = "round3"
)

// Rounds lists the review rounds in order.
var Rounds = []Round{Round1, Round2, Round3}

func ParseRound(s string) (Round, error) {
	switch r := Round(strings.ToLower(strings.TrimSpace(s))); r {
	case Round1, Round2, Round3:
		return r, nil
	}
	return "", NewInvalidError("round must be round1, round2 or round3")
}

type MemberComment struct {
	MemberName    string `json:"memberName"`
	MemberComment string `json:"memberComment"`
}

// ResponseRecord is the per-respondent document.
type ResponseRecord struct {
	RespondentID   string                              `json:"respondentId"`
	Questions      map[string]QuestionEntry            `json:"questions"`
	CompletedAt    *time.Time                          `json:"completedAt"`
	MemberComments map[Round]map[string]MemberComment `json:"memberComments,omitempty"`
}

// Clone returns a deep copy.
func (r *ResponseRecord) Clone() *ResponseRecord {
	if r == nil {
		return nil
	}
	out := &ResponseRecord{
		RespondentID: r.RespondentID,
		Questions:    make(map[string]QuestionEntry, len(r.Questions)),
	}
	for id, e := range r.Questions {
		if e.Response != nil {
			v := *e.Response
			e.Response = &v
		}
		out.Questions[id] = e
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	if r.MemberComments != nil {
		out.MemberComments = make(map[Round]map[string]MemberComment, len(r.MemberComments))
		for round, byReviewer := range r.MemberComments {
			cp := make(map[string]MemberComment, len(byReviewer))
			for k, v := range byReviewer {
				cp[k] = v
			}
			out.MemberComments[round] = cp
		}
	}
	return out
}

// ReportEntry is one reviewer's comment in a compiled round report.
type ReportEntry struct {
	RespondentID  string `json:"respondentId"`
	Round         Round  `json:"round"`
	ReviewerID    string `json:"reviewerId"`
	MemberName    string `json:"memberName"`
	MemberComment string `json:"memberComment"`
}

// RecordPatchKind selects what a fan-out patch does to one record.
type RecordPatchKind int

const (
	// PatchInsert adds {text, response: null} for a question.
	PatchInsert RecordPatchKind = iota + 1
	// PatchText replaces the text of an existing entry.
	PatchText
	// PatchRemove drops the entry.
	PatchRemove
)

// RecordPatch is one write against a respondent's questions map.
type RecordPatch struct {
	Kind         RecordPatchKind
	RespondentID string
	QuestionID   string
	Text         string
}

// Member is a login account.
type Member struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	PassHash  []byte    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

type AuditEntry struct {
	ID     string    `json:"id"`
	Time   time.Time `json:"time"`
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Note   string    `json:"note,omitempty"`
}
