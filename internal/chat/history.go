package chat

import (
	"context"
	"time"

	"github.com/tutorllm/tutorllm/internal/api"
)

// historyTimeout bounds one background refresh.
const historyTimeout = 30 * time.Second

// History returns the last successfully fetched chat list, in
// server-assigned recency order. A failed refresh leaves this stale rather
// than clearing it.
func (e *Engine) History() []api.ChatSummary {
	e.histMu.RLock()
	defer e.histMu.RUnlock()
	out := make([]api.ChatSummary, len(e.history))
	copy(out, e.history)
	return out
}

// HistoryUpdates signals after each successful refresh so the view can
// re-render the sidebar. The channel has a capacity of one; signals
// coalesce.
func (e *Engine) HistoryUpdates() <-chan struct{} {
	return e.historyCh
}

// RefreshHistory re-fetches the user's chat list wholesale. History is a
// secondary, best-effort affordance: anonymous users have none, and errors
// are logged without being surfaced; the previous list stays on screen.
func (e *Engine) RefreshHistory(ctx context.Context) {
	profile := e.Profile()
	if !profile.Persistent() {
		return
	}

	chats, err := e.backend.ListChats(ctx, profile.Email)
	if err != nil {
		e.logger.Warn("history refresh failed, keeping stale list", "error", err)
		return
	}

	e.histMu.Lock()
	e.history = chats
	e.histMu.Unlock()

	select {
	case e.historyCh <- struct{}{}:
	default: // a signal is already pending
	}
}

// TriggerHistoryRefresh schedules a refresh in the background, throttled so
// bursts of mutating actions (send, upload) coalesce into few requests.
// Detached from the caller's context: the refresh outlives the operation
// that triggered it.
func (e *Engine) TriggerHistoryRefresh() {
	if !e.Profile().Persistent() {
		return
	}
	if !e.limiter.Allow() {
		e.logger.Debug("history refresh throttled")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		e.RefreshHistory(ctx)
	}()
}
