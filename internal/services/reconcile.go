package services

import (
	"sort"
)

// Reconciliation is the outcome of comparing a record with the bank.
type Reconciliation struct {
	// Record is a copy of the input with the missing entries added.
	Record *ResponseRecord
	// Missing are bank questions the record did not contain, in bank order.
	Missing []*Question
	// Unanswered are bank questions without a response, in bank order.
	Unanswered []*Question
}

// Reconcile brings record up to date with bank without touching any store.
// bank must already be in display order (newest first). Entries for
// questions no longer in the bank are left alone.
func Reconcile(record *ResponseRecord, bank []*Question) Reconciliation {
	out := record.Clone()
	if out == nil {
		out = &ResponseRecord{}
	}
	if out.Questions == nil {
		out.Questions = map[string]QuestionEntry{}
	}
	var res Reconciliation
	for _, q := range bank {
		if q == nil {
			continue
		}
		entry, ok := out.Questions[q.ID]
		if !ok {
			entry = QuestionEntry{Text: q.Text}
			out.Questions[q.ID] = entry
			res.Missing = append(res.Missing, q)
		}
		if !entry.Answered() {
			res.Unanswered = append(res.Unanswered, q)
		}
	}
	res.Record = out
	return res
}

// AllAnswered reports whether every entry of the record has a response. An
// empty record counts as fully answered.
func AllAnswered(record *ResponseRecord) bool {
	if record == nil {
		return true
	}
	for _, e := range record.Questions {
		if !e.Answered() {
			return false
		}
	}
	return true
}

// SortBank orders questions newest first, ties broken by id.
func SortBank(bank []*Question) {
	sort.SliceStable(bank, func(i, j int) bool {
		if !bank[i].CreatedAt.Equal(bank[j].CreatedAt) {
			return bank[i].CreatedAt.After(bank[j].CreatedAt)
		}
		return bank[i].ID < bank[j].ID
	})
}
