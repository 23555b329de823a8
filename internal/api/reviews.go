package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/quillsociety/auditions/internal/services"
)

type commentRequest struct {
	Comment string `json:"comment" validate:"required,max=10000"`
}

// PUT /api/responses/{rid}/comments/{round}
func (rt *Router) handleSaveComment(w http.ResponseWriter, r *http.Request) {
	caller, ok := rt.caller(w, r)
	if !ok {
		return
	}
	round, err := services.ParseRound(r.PathValue("round"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	var req commentRequest
	if err := rt.decode(r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if err := rt.reviews.SaveComment(r.Context(), caller, r.PathValue("rid"), round, req.Comment); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/responses/{rid}/comments/{round}[/{reviewer}]
// Without a reviewer segment the caller's own comment is removed.
func (rt *Router) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	caller, ok := rt.caller(w, r)
	if !ok {
		return
	}
	round, err := services.ParseRound(r.PathValue("round"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	reviewer := r.PathValue("reviewer")
	if reviewer == "" {
		reviewer = caller.UserID
	}
	if err := rt.reviews.DeleteComment(r.Context(), caller, r.PathValue("rid"), round, reviewer); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func wantsCSV(r *http.Request) bool {
	return strings.EqualFold(r.URL.Query().Get("format"), "csv")
}

func sortByName(r *http.Request) bool {
	return strings.EqualFold(r.URL.Query().Get("sort"), "name")
}

// GET /api/responses/{rid}/report?round=round1&sort=name&format=json|csv
func (rt *Router) handleReport(w http.ResponseWriter, r *http.Request) {
	caller, ok := rt.caller(w, r)
	if !ok {
		return
	}
	round, err := services.ParseRound(r.URL.Query().Get("round"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rid := r.PathValue("rid")
	entries, err := rt.reviews.CompileReport(r.Context(), caller, rid, round, sortByName(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if wantsCSV(r) {
		b, err := services.ExportReportCSV(entries)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeCSV(w, fmt.Sprintf("report-%s-%s.csv", rid, round), b)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"respondentId": rid, "round": round, "entries": entries})
}

// GET /api/reports?round=round1&respondent=R1&respondent=R2&sort=name&format=json|csv
// No respondent parameter means every respondent with a record.
func (rt *Router) handleReports(w http.ResponseWriter, r *http.Request) {
	caller, ok := rt.caller(w, r)
	if !ok {
		return
	}
	round, err := services.ParseRound(r.URL.Query().Get("round"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	entries, err := rt.reviews.CompileReports(r.Context(), caller, r.URL.Query()["respondent"], round, sortByName(r))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if wantsCSV(r) {
		b, err := services.ExportReportCSV(entries)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeCSV(w, fmt.Sprintf("report-%s.csv", round), b)
		return
	}
	if entries == nil {
		entries = []services.ReportEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"round": round, "entries": entries})
}

// GET /api/export/responses
func (rt *Router) handleExportResponses(w http.ResponseWriter, r *http.Request) {
	caller, ok := rt.caller(w, r)
	if !ok {
		return
	}
	b, err := rt.reviews.ExportResponses(r.Context(), caller)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeCSV(w, "responses.csv", b)
}
