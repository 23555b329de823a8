package api

import (
	"net/http"
)

type questionRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

// GET /api/questions
func (rt *Router) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	caller, ok := rt.caller(w, r)
	if !ok {
		return
	}
	qs, err := rt.questions.ListQuestions(r.Context(), caller)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": qs})
}

// POST /api/questions
func (rt *Router) handleAddQuestion(w http.ResponseWriter, r *http.Request) {
	caller, ok := rt.caller(w, r)
	if !ok {
		return
	}
	var req questionRequest
	if err := rt.decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	q, err := rt.questions.AddQuestion(r.Context(), caller, req.Text)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// PUT /api/questions/{id}
func (rt *Router) handleEditQuestion(w http.ResponseWriter, r *http.Request) {
	caller, ok := rt.caller(w, r)
	if !ok {
		return
	}
	var req questionRequest
	if err := rt.decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	q, err := rt.questions.EditQuestion(r.Context(), caller, r.PathValue("id"), req.Text)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// DELETE /api/questions/{id}
func (rt *Router) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	caller, ok := rt.caller(w, r)
	if !ok {
		return
	}
	if err := rt.questions.DeleteQuestion(r.Context(), caller, r.PathValue("id")); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
