package api

import (
	"net/http"
	"strconv"

	"github.com/quillsociety/auditions/internal/services"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type memberRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=200"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=student LCite member admin"`
}

// POST /api/auth/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !rt.limiter.allow(r) {
		rt.writeError(w, r, services.NewTooManyRequestsError("too many login attempts"))
		return
	}
	var req loginRequest
	if err := rt.decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	res, err := rt.members.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/admin/members
func (rt *Router) handleListMembers(w http.ResponseWriter, r *http.Request) {
	caller, ok := rt.caller(w, r)
	if !ok {
		return
	}
	ms, err := rt.members.ListMembers(r.Context(), caller)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": ms})
}

// POST /api/admin/members
func (rt *Router) handleAddMember(w http.ResponseWriter, r *http.Request) {
	caller, ok := rt.caller(w, r)
	if !ok {
		return
	}
	if !services.Authorize(caller, services.ActionManageMembers, services.Resource{}) {
		rt.writeError(w, r, services.NewForbiddenError("forbidden"))
		return
	}
	var req memberRequest
	if err := rt.decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	role, _ := services.ParseRole(req.Role)
	m, err := rt.members.AddMember(r.Context(), req.Email, req.Name, req.Password, role)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// GET /api/admin/audit?limit=200
func (rt *Router) handleAudit(w http.ResponseWriter, r *http.Request) {
	caller, ok := rt.caller(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := rt.audit.List(r.Context(), caller, limit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
