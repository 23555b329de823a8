// Package api exposes the question bank, response sessions and reviews over
// HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/quillsociety/auditions/internal/metrics"
	"github.com/quillsociety/auditions/internal/middleware"
	"github.com/quillsociety/auditions/internal/services"
)

type Options struct {
	CORSOrigins []string
	// LoginRate is attempts per minute per client address; zero disables
	// the limit.
	LoginRate   float64
	LoginBurst  int
	FanOutBatch int
	TokenTTL    time.Duration
	Commit      string
	BuildTime   string
}

type Router struct {
	store     Store
	auth      *middleware.Auth
	questions *services.QuestionService
	sessions  *services.SessionService
	reviews   *services.ReviewService
	members   *services.AuthService
	audit     *services.AuditService

	opts     Options
	logger   *slog.Logger
	validate *validator.Validate
	limiter  *loginLimiter
	upgrader websocket.Upgrader
}

func NewRouter(store Store, auth *middleware.Auth, opts Options, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	qs := services.NewQuestionService(store, logger)
	qs.SetBatchSize(opts.FanOutBatch)
	ms := services.NewAuthService(store, auth.SignToken)
	ms.SetTokenTTL(opts.TokenTTL)

	rt := &Router{
		store:     store,
		auth:      auth,
		questions: qs,
		sessions:  services.NewSessionService(store, logger),
		reviews:   services.NewReviewService(store, logger),
		members:   ms,
		audit:     services.NewAuditService(store),
		opts:      opts,
		logger:    logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		limiter:   newLoginLimiter(opts.LoginRate, opts.LoginBurst),
	}
	rt.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin:     rt.checkOrigin,
	}
	return rt
}

// Register mounts every route on mux.
func (rt *Router) Register(mux *http.ServeMux) {
	rt.handle(mux, "POST /api/auth/login", rt.handleLogin)

	rt.handle(mux, "GET /api/questions", rt.handleListQuestions)
	rt.handle(mux, "POST /api/questions", rt.handleAddQuestion)
	rt.handle(mux, "PUT /api/questions/{id}", rt.handleEditQuestion)
	rt.handle(mux, "DELETE /api/questions/{id}", rt.handleDeleteQuestion)
	rt.handle(mux, "GET /api/questions/watch", rt.handleWatchQuestions)

	rt.handle(mux, "POST /api/session", rt.handleStartSession)
	rt.handle(mux, "POST /api/session/answers", rt.handleAnswer)
	rt.handle(mux, "POST /api/session/complete", rt.handleComplete)

	rt.handle(mux, "PUT /api/responses/{rid}/comments/{round}", rt.handleSaveComment)
	rt.handle(mux, "DELETE /api/responses/{rid}/comments/{round}", rt.handleDeleteComment)
	rt.handle(mux, "DELETE /api/responses/{rid}/comments/{round}/{reviewer}", rt.handleDeleteComment)
	rt.handle(mux, "GET /api/responses/{rid}/report", rt.handleReport)
	rt.handle(mux, "GET /api/reports", rt.handleReports)
	rt.handle(mux, "GET /api/export/responses", rt.handleExportResponses)

	rt.handle(mux, "GET /api/admin/audit", rt.handleAudit)
	rt.handle(mux, "GET /api/admin/members", rt.handleListMembers)
	rt.handle(mux, "POST /api/admin/members", rt.handleAddMember)

	rt.handle(mux, "GET /health", rt.handleHealth)
	rt.handle(mux, "GET /version", rt.handleVersion)
	mux.Handle("GET /metrics", metrics.Handler())
}

func (rt *Router) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, metrics.Instrument(pattern, h))
}

// Handler returns the routes wrapped in the standard middleware chain.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	rt.Register(mux)
	var h http.Handler = mux
	h = middleware.RequestLog(rt.logger)(h)
	h = rt.auth.WithAuth(h)
	h = middleware.NoStore(h)
	h = middleware.SecureHeaders(h)
	h = middleware.CORS(rt.opts.CORSOrigins)(h)
	return h
}

func (rt *Router) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(rt.opts.CORSOrigins) == 0 || slices.Contains(rt.opts.CORSOrigins, "*") {
		return true
	}
	return slices.Contains(rt.opts.CORSOrigins, origin)
}

// GET /health
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := http.StatusOK
	body := map[string]any{
		"ok":         true,
		"name":       "Auditions API",
		"commit":     rt.opts.Commit,
		"build_time": rt.opts.BuildTime,
	}
	if err := rt.store.Ping(ctx); err != nil {
		rt.logger.Warn("health check failed", "error", err)
		status = http.StatusServiceUnavailable
		body["ok"] = false
	}
	writeJSON(w, status, body)
}

// GET /version
func (rt *Router) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"commit":     rt.opts.Commit,
		"build_time": rt.opts.BuildTime,
	})
}
