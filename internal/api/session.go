package api

import (
	"net/http"

	"github.com/quillsociety/auditions/internal/services"
)

type sessionView struct {
	RespondentID string               `json:"respondentId"`
	Questions    []*services.Question `json:"questions"`
	Complete     bool                 `json:"complete"`
}

type answerRequest struct {
	QuestionID string `json:"questionId" validate:"required"`
	Text       string `json:"text" validate:"required,max=10000"`
}

// POST /api/session starts (or resumes) the caller's session and returns the
// questions still unanswered. Clients skip by simply not answering.
func (rt *Router) handleStartSession(w http.ResponseWriter, r *http.Request) {
	caller, ok := rt.caller(w, r)
	if !ok {
		return
	}
	sess, err := rt.sessions.InitializeSession(r.Context(), caller, caller.UserID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView{
		RespondentID: sess.RespondentID,
		Questions:    sess.Unanswered(),
		Complete:     sess.Done(),
	})
}

// POST /api/session/answers
func (rt *Router) handleAnswer(w http.ResponseWriter, r *http.Request) {
	caller, ok := rt.caller(w, r)
	if !ok {
		return
	}
	var req answerRequest
	if err := rt.decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if err := rt.sessions.Answer(r.Context(), caller, caller.UserID, req.QuestionID, req.Text); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/session/complete
func (rt *Router) handleComplete(w http.ResponseWriter, r *http.Request) {
	caller, ok := rt.caller(w, r)
	if !ok {
		return
	}
	res, err := rt.sessions.Complete(r.Context(), caller, caller.UserID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
