package api

import (
	"context"

	"github.com/quillsociety/auditions/internal/services"
)

// Store is everything the HTTP layer needs from persistence. db.Repository
// satisfies it.
type Store interface {
	services.QuestionStore
	services.SessionStore
	services.ReviewStore
	services.MemberStore
	services.AuditStore

	WatchQuestions(ctx context.Context, fn func([]*services.Question, error)) error
	Ping(ctx context.Context) error
}
