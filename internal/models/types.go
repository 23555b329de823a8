package models

// Collection names in the document store.
const (
	CollectionQuestions = "audition_questions"
	CollectionResponses = "responses"
	CollectionMembers   = "members"
	CollectionAudit     = "audit_log"
)

// AllCollections is every collection the service writes, in copy order.
var AllCollections = []string{
	CollectionQuestions,
	CollectionResponses,
	CollectionMembers,
	CollectionAudit,
}

// Question is the stored shape of audition_questions/{id}. Timestamps are
// Unix milliseconds.
type Question struct {
	Text         string `json:"text"`
	AddedBy      string `json:"addedBy"`
	AddedByID    string `json:"addedById"`
	Type         string `json:"type"`
	LastEditedBy string `json:"lastEditedBy,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
}

// QuestionEntry is a question snapshot inside a response record. A nil
// Response means unanswered.
type QuestionEntry struct {
	Text     string  `json:"text"`
	Response *string `json:"response"`
}

// MemberComment is one reviewer's note for one round.
type MemberComment struct {
	MemberName    string `json:"memberName"`
	MemberComment string `json:"memberComment"`
}

// Response is the stored shape of responses/{respondentId}.
type Response struct {
	Questions      map[string]QuestionEntry            `json:"questions"`
	CompletedAt    *int64                              `json:"completedAt"`
	MemberComments map[string]map[string]MemberComment `json:"memberComments,omitempty"`
}

// Member is a login account, members/{uid}.
type Member struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	PassHash  []byte `json:"passHash"`
	CreatedAt int64  `json:"createdAt"`
}

// AuditEntry is audit_log/{id}.
type AuditEntry struct {
	Time   int64  `json:"time"`
	Actor  string `json:"actor"`
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
	Note   string `json:"note,omitempty"`
}
