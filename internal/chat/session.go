package chat

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/tutorllm/tutorllm/internal/identity"
	"github.com/tutorllm/tutorllm/internal/transcript"
)

// DeriveTitle truncates a first message to TitleMaxLen characters, marking
// truncation with an ellipsis, matching how the server titles chats.
func DeriveTitle(firstMessage string) string {
	if utf8.RuneCountInString(firstMessage) <= TitleMaxLen {
		return firstMessage
	}
	runes := []rune(firstMessage)
	return string(runes[:TitleMaxLen]) + "..."
}

// ensureSession guarantees a server-side chat identity for the current
// session before the answer request is issued, creating one lazily from the
// first message. Returns the assigned chat ID, or "" when the session stays
// ephemeral (anonymous user, or creation failed).
//
// Idempotent per session lifetime: a second call while a creation is
// outstanding joins the in-flight result instead of issuing a duplicate
// POST /chats; once assigned, the ID is reused until an explicit new chat.
func (e *Engine) ensureSession(ctx context.Context, firstMessage string, profile identity.Profile) string {
	if !profile.Persistent() {
		return ""
	}

	for {
		e.mu.Lock()
		switch e.session.State {
		case SessionAssigned:
			id := e.session.ID
			e.mu.Unlock()
			return id

		case SessionCreating:
			done := e.creating
			e.mu.Unlock()
			select {
			case <-done:
				// Re-check: the creation we joined has resolved either way.
				continue
			case <-ctx.Done():
				return ""
			}

		case SessionNone:
			done := make(chan struct{})
			e.creating = done
			e.session.State = SessionCreating
			e.mu.Unlock()

			title := DeriveTitle(firstMessage)
			id, err := e.backend.CreateChat(ctx, profile.Email, title)

			e.mu.Lock()
			e.creating = nil
			if err != nil {
				// Degraded persistence: the exchange proceeds without a
				// chat identity rather than blocking the send.
				e.session.State = SessionNone
				e.mu.Unlock()
				close(done)
				e.logger.Warn("chat creation failed, continuing ephemeral", "error", err)
				return ""
			}
			e.session = Session{State: SessionAssigned, ID: id, Title: title}
			e.mu.Unlock()
			close(done)
			e.logger.Info("chat created", "chat_id", id, "title", title)
			return id
		}
	}
}

// LoadChat opens a persisted chat: it fetches the full transcript, replaces
// the open transcript wholesale, and supersedes any in-flight stream or
// upload (their writes become orphaned and are discarded at write time).
// Loading the chat that is already open is a no-op with no network call.
func (e *Engine) LoadChat(ctx context.Context, chatID string) error {
	e.mu.Lock()
	if e.session.State == SessionAssigned && e.session.ID == chatID {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	profile, err := e.ident.Profile()
	if err != nil || !profile.Persistent() {
		return ErrNoIdentity
	}

	detail, err := e.backend.LoadChat(ctx, chatID, profile.Email)
	if err != nil {
		return err
	}

	messages := make([]transcript.Message, 0, len(detail.Messages))
	for _, m := range detail.Messages {
		role := transcript.RoleAssistant
		if m.Role == "user" {
			role = transcript.RoleUser
		}
		messages = append(messages, transcript.Message{
			Role:  role,
			Text:  m.Content,
			Phase: transcript.PhaseSettled,
		})
	}

	e.mu.Lock()
	// The replacement starts a new generation; cancel the superseded
	// stream so its transport is released promptly.
	if e.streamCancel != nil {
		e.streamCancel()
		e.streamCancel = nil
	}
	e.sendActive = false
	e.store.ReplaceAll(messages)
	e.session = Session{State: SessionAssigned, ID: chatID, Title: detail.Title}
	e.mu.Unlock()

	e.logger.Info("chat loaded", "chat_id", chatID, "messages", len(messages))
	return nil
}

// NewChat resets the session to a fresh, identity-less conversation seeded
// with the greeting. Any in-flight stream is superseded.
func (e *Engine) NewChat() {
	e.mu.Lock()
	if e.streamCancel != nil {
		e.streamCancel()
		e.streamCancel = nil
	}
	e.sendActive = false
	e.store.Reset(Greeting)
	e.session = Session{}
	e.mu.Unlock()
}

// errIsContext reports whether err stems from context cancellation.
func errIsContext(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
