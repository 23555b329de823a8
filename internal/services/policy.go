package services

// Action names a guarded operation.
type Action string

const (
	ActionListQuestions  Action = "questions.list"
	ActionAddQuestion    Action = "questions.add"
	ActionEditQuestion   Action = "questions.edit"
	ActionDeleteQuestion Action = "questions.delete"
	ActionTakeSession    Action = "session.take"
	ActionSaveComment    Action = "comments.save"
	ActionDeleteComment  Action = "comments.delete"
	ActionReadReport     Action = "reports.read"
	ActionReadAudit      Action = "audit.read"
	ActionManageMembers  Action = "members.manage"
)

// Resource describes what an action touches. OwnerID is the question author,
// the respondent or the reviewer depending on the action.
type Resource struct {
	OwnerID      string
	QuestionType QuestionType
}

// Authorize is the one place role and ownership rules live.
func Authorize(caller Caller, action Action, res Resource) bool {
	if caller.UserID == "" {
		return false
	}
	switch action {
	case ActionListQuestions, ActionAddQuestion:
		return isKnownRole(caller.Role) && caller.Role != RoleStudent
	case ActionEditQuestion, ActionDeleteQuestion:
		if isReviewer(caller.Role) {
			return true
		}
		// LCite authors may manage their own question until someone else edits it.
		return caller.Role == RoleLCite &&
			caller.UserID == res.OwnerID &&
			res.QuestionType == QuestionAdd
	case ActionTakeSession:
		return caller.UserID == res.OwnerID
	case ActionSaveComment, ActionReadReport:
		return isReviewer(caller.Role)
	case ActionDeleteComment:
		if caller.Role == RoleAdmin {
			return true
		}
		return isReviewer(caller.Role) && caller.UserID == res.OwnerID
	case ActionReadAudit, ActionManageMembers:
		return caller.Role == RoleAdmin
	}
	return false
}

func isReviewer(r Role) bool {
	return r == RoleMember || r == RoleAdmin
}

func isKnownRole(r Role) bool {
	switch r {
	case RoleStudent, RoleLCite, RoleMember, RoleAdmin:
		return true
	}
	return false
}

func authorize(caller Caller, action Action, res Resource) error {
	if caller.UserID == "" {
		return NewUnauthorizedError("unauthorized")
	}
	if !Authorize(caller, action, res) {
		return NewForbiddenError("forbidden")
	}
	return nil
}
