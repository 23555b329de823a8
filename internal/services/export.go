package services

import (
	"bytes"
	"encoding/csv"
	"sort"
	"time"
)

// ExportReportCSV renders compiled report entries, one comment per row.
func ExportReportCSV(entries []ReportEntry) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"respondent_id", "round", "reviewer_id", "member_name", "member_comment"})
	for _, e := range entries {
		rec := []string{
			e.RespondentID,
			string(e.Round),
			e.ReviewerID,
			e.MemberName,
			e.MemberComment,
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportResponsesCSV renders a wide CSV with one row per respondent and one
// column per question of bank, in bank order. Unanswered cells are empty.
// Entries for questions no longer in the bank are not exported.
func ExportResponsesCSV(records []*ResponseRecord, bank []*Question) ([]byte, error) {
	recs := append([]*ResponseRecord(nil), records...)
	sort.Slice(recs, func(i, j int) bool { return recs[i].RespondentID < recs[j].RespondentID })

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := make([]string, 0, 2+len(bank))
	header = append(header, "respondent_id", "completed_at")
	for _, q := range bank {
		header = append(header, q.Text)
	}
	_ = w.Write(header)
	for _, r := range recs {
		row := make([]string, 0, len(header))
		completed := ""
		if r.CompletedAt != nil {
			completed = r.CompletedAt.UTC().Format(time.RFC3339)
		}
		row = append(row, r.RespondentID, completed)
		for _, q := range bank {
			cell := ""
			if e, ok := r.Questions[q.ID]; ok && e.Response != nil {
				cell = *e.Response
			}
			row = append(row, cell)
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
