package tui

import (
	"context"
	"io"
	"os"
	"path/filepath"

	tea "charm.land/bubbletea/v2"

	"github.com/tutorllm/tutorllm/internal/chat"
)

// Bubble Tea messages bridging the engine's event channels into the
// single-threaded update loop. The engine writes the transcript itself;
// these messages only tell the view when to re-render and re-arm.
type (
	streamStartedMsg struct{ ch <-chan chat.Event }
	streamChunkMsg   struct{}
	streamDoneMsg    struct{}
	streamErrMsg     struct{ err error }
	streamTickMsg    struct{} // empty event or channel closed, keep listening

	uploadStartedMsg struct {
		ch     <-chan chat.Event
		closer io.Closer // open file, closed after the terminal event
	}
	uploadDoneMsg struct{ err error }

	historyChangedMsg struct{}

	// commandNoticeMsg surfaces a slash-command outcome asynchronously.
	commandNoticeMsg struct {
		kind noticeKind
		text string
	}
)

// startStream issues the question through the engine. The engine appends
// the user message and placeholder before returning, so the very next
// render already shows them.
func startStream(ctx context.Context, engine *chat.Engine, question string) tea.Cmd {
	return func() tea.Msg {
		ch, err := engine.Send(ctx, question)
		if err != nil {
			return streamErrMsg{err: err}
		}
		return streamStartedMsg{ch: ch}
	}
}

// listenForStream waits for the next engine event. Re-armed by Update
// after every event; a closed channel ends the exchange.
func listenForStream(ch <-chan chat.Event) tea.Cmd {
	return func() tea.Msg {
		if ch == nil {
			return nil
		}
		ev, ok := <-ch
		if !ok {
			// Closed after its terminal event (or after an orphaned
			// stream was abandoned): return to input either way.
			return streamDoneMsg{}
		}
		switch {
		case ev.Err != nil:
			return streamErrMsg{err: ev.Err}
		case ev.Done:
			return streamDoneMsg{}
		case ev.Chunk != "":
			return streamChunkMsg{}
		default:
			return streamTickMsg{}
		}
	}
}

// startUpload opens the file and hands it to the engine. The progress
// entry appears in the transcript immediately.
func startUpload(ctx context.Context, engine *chat.Engine, path string) tea.Cmd {
	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return uploadDoneMsg{err: err}
		}
		ch, err := engine.Upload(ctx, filepath.Base(path), f)
		if err != nil {
			_ = f.Close()
			return uploadDoneMsg{err: err}
		}
		return uploadStartedMsg{ch: ch, closer: f}
	}
}

// listenForUpload waits for the upload's single terminal event, then
// releases the file the engine was reading from.
func listenForUpload(ch <-chan chat.Event, closer io.Closer) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if closer != nil {
			_ = closer.Close()
		}
		if !ok {
			return uploadDoneMsg{}
		}
		return uploadDoneMsg{err: ev.Err}
	}
}

// listenForHistory signals sidebar re-renders. Re-armed after each signal.
func listenForHistory(ctx context.Context, engine *chat.Engine) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-engine.HistoryUpdates():
			return historyChangedMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

// refreshHistory fetches the chat list once, for startup.
func refreshHistory(ctx context.Context, engine *chat.Engine) tea.Cmd {
	return func() tea.Msg {
		engine.RefreshHistory(ctx)
		return nil
	}
}

// loadChat opens a persisted chat and reports the outcome.
func loadChat(ctx context.Context, engine *chat.Engine, chatID string) tea.Cmd {
	return func() tea.Msg {
		if err := engine.LoadChat(ctx, chatID); err != nil {
			return commandNoticeMsg{kind: noticeError, text: "Could not open chat: " + err.Error()}
		}
		return commandNoticeMsg{kind: noticeSystem, text: ""}
	}
}
