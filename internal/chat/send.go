package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/tutorllm/tutorllm/internal/api"
	"github.com/tutorllm/tutorllm/internal/transcript"
)

// Send runs one question/answer exchange against the open chat:
//
//  1. append a user message with the literal input
//  2. append an empty assistant placeholder in the streaming phase
//  3. ensure a chat identity (lazy creation on the first send of a session)
//  4. issue the answer request and apply increments in arrival order
//  5. settle the placeholder on normal termination, or mark it failed
//
// The returned channel carries progress events and is closed when the
// exchange is over; consume it until closed. Only one exchange may be in
// flight per open chat: a second Send returns ErrStreamInFlight.
//
// Failures never escape as errors here; they are written into the
// transcript (fixed apology when nothing streamed yet, preserved partial
// text otherwise) and mirrored as an Event.Err for the view.
func (e *Engine) Send(ctx context.Context, text string) (<-chan Event, error) {
	question := strings.TrimSpace(text)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	e.mu.Lock()
	if e.sendActive {
		e.mu.Unlock()
		return nil, ErrStreamInFlight
	}
	e.sendActive = true
	e.sendSeq++
	seq := e.sendSeq
	e.mu.Unlock()

	gen := e.store.Generation()
	if _, err := e.store.Append(gen, transcript.Message{
		Role:  transcript.RoleUser,
		Text:  question,
		Phase: transcript.PhaseSettled,
	}); err != nil {
		e.releaseSend(seq)
		return nil, err
	}
	if _, err := e.store.Append(gen, transcript.Message{
		Role:  transcript.RoleAssistant,
		Phase: transcript.PhaseStreaming,
	}); err != nil {
		e.releaseSend(seq)
		return nil, err
	}

	streamCtx, cancel := context.WithTimeout(ctx, e.streamTimeout)
	e.mu.Lock()
	e.streamCancel = cancel
	e.mu.Unlock()

	events := make(chan Event, eventBufferSize)
	go e.runStream(streamCtx, cancel, events, question, gen, seq)
	return events, nil
}

// runStream consumes the answer stream and writes it into the transcript.
// All writes carry gen; once the transcript is replaced (chat switch), the
// writes are rejected as stale and the stream is abandoned.
func (e *Engine) runStream(ctx context.Context, cancel context.CancelFunc, events chan<- Event, question string, gen transcript.Generation, seq uint64) {
	defer close(events)
	defer e.releaseSend(seq)
	defer cancel()

	profile := e.Profile()
	chatID := e.ensureSession(ctx, question, profile)

	req := api.QueryRequest{
		Question:  question,
		UserEmail: profile.Email,
		ChatID:    chatID,
	}

	var gotIncrement bool
	var failure error
	for chunk, err := range e.backend.Query(ctx, req) {
		if err != nil {
			failure = err
			break
		}
		werr := e.store.UpdateLast(gen, func(m *transcript.Message) {
			m.Text += chunk
		})
		if werr != nil {
			if errors.Is(werr, transcript.ErrStaleGeneration) {
				// Orphaned by a chat switch: stop consuming, write nothing.
				e.logger.Debug("discarding orphaned stream", "chat_id", chatID)
				return
			}
			// ErrNoActiveStream here means the placeholder vanished while
			// its stream is live, which is an invariant violation rather than a user error.
			e.logger.Error("stream increment lost", "error", werr)
			failure = werr
			break
		}
		gotIncrement = true
		emit(ctx, events, Event{Chunk: chunk})
	}

	if failure != nil {
		e.failPlaceholder(gen, gotIncrement)
		if !errIsContext(failure) {
			e.logger.Warn("answer stream failed", "error", failure, "had_increments", gotIncrement)
		}
		emit(ctx, events, Event{Err: failure})
	} else {
		werr := e.store.UpdateLast(gen, func(m *transcript.Message) {
			m.Phase = transcript.PhaseSettled
		})
		if werr != nil && !errors.Is(werr, transcript.ErrStaleGeneration) {
			e.logger.Error("settling answer failed", "error", werr)
		}
		emit(ctx, events, Event{Done: true})
	}

	// Keep recency ordering and title preview current after both success
	// and failure.
	e.TriggerHistoryRefresh()
}

// failPlaceholder marks the streaming placeholder failed. Before any
// increment arrived the text is replaced with the fixed apology; partially
// streamed content is preserved as-is.
func (e *Engine) failPlaceholder(gen transcript.Generation, hadIncrements bool) {
	err := e.store.UpdateLast(gen, func(m *transcript.Message) {
		if !hadIncrements {
			m.Text = apology
		}
		m.Phase = transcript.PhaseFailed
	})
	if err != nil && !errors.Is(err, transcript.ErrStaleGeneration) {
		e.logger.Error("marking answer failed", "error", err)
	}
}

// CancelStream aborts the in-flight answer stream, if any. The placeholder
// is marked failed by the stream goroutine; partial text stays visible.
func (e *Engine) CancelStream() {
	e.mu.Lock()
	if e.streamCancel != nil {
		e.streamCancel()
	}
	e.mu.Unlock()
}

// releaseSend clears the in-flight guard, unless a newer exchange owns it.
func (e *Engine) releaseSend(seq uint64) {
	e.mu.Lock()
	if e.sendSeq == seq {
		e.sendActive = false
		e.streamCancel = nil
	}
	e.mu.Unlock()
}
