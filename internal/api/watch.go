package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quillsociety/auditions/internal/metrics"
	"github.com/quillsociety/auditions/internal/services"
)

const (
	watchWriteWait  = 10 * time.Second
	watchPingPeriod = 30 * time.Second
)

type watchMessage struct {
	Questions []*services.Question `json:"questions"`
	Error     string               `json:"error,omitempty"`
}

// GET /api/questions/watch upgrades to a websocket that receives the whole
// bank now and after every change. Only the newest pending snapshot is sent
// to a slow reader.
func (rt *Router) handleWatchQuestions(w http.ResponseWriter, r *http.Request) {
	caller, ok := rt.caller(w, r)
	if !ok {
		return
	}
	if !services.Authorize(caller, services.ActionListQuestions, services.Resource{}) {
		rt.writeError(w, r, services.NewForbiddenError("forbidden"))
		return
	}
	conn, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rt.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	metrics.WatchListeners.Inc()
	defer metrics.WatchListeners.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	snapshots := make(chan watchMessage, 1)
	err = rt.store.WatchQuestions(ctx, func(qs []*services.Question, err error) {
		msg := watchMessage{Questions: qs}
		if err != nil {
			rt.logger.Warn("question watch snapshot failed", "error", err)
			msg = watchMessage{Error: "snapshot failed"}
		}
		if msg.Questions == nil && msg.Error == "" {
			msg.Questions = []*services.Question{}
		}
		select {
		case <-snapshots:
		default:
		}
		select {
		case snapshots <- msg:
		default:
		}
	})
	if err != nil {
		rt.logger.Error("question watch failed", "error", err)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "watch failed"))
		return
	}
	rt.logger.Info("question watch opened", "uid", caller.UserID)

	// The read loop only notices the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(watchPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			rt.logger.Info("question watch closed", "uid", caller.UserID)
			return
		case msg := <-snapshots:
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				rt.logger.Info("question watch write failed", "uid", caller.UserID, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(watchWriteWait)); err != nil {
				return
			}
		}
	}
}
