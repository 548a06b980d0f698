package tui

import (
	"context"
	"errors"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"

	"github.com/tutorllm/tutorllm/internal/chat"
)

// Update implements tea.Model.
//
//nolint:gocognit,gocyclo // Bubble Tea Update requires type switch on all message types
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()
		m.help.SetWidth(msg.Width)
		m.rebuildViewportContent()
		return m, nil

	case tea.MouseWheelMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		// Re-render for the spinner animation while waiting on the server.
		if m.state == StateThinking || m.uploadCh != nil {
			m.rebuildViewportContent()
		}
		return m, cmd

	case streamStartedMsg:
		m.streamCh = msg.ch
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, listenForStream(msg.ch)

	case streamChunkMsg:
		m.state = StateStreaming
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, listenForStream(m.streamCh)

	case streamTickMsg:
		return m, listenForStream(m.streamCh)

	case streamDoneMsg:
		m.state = StateInput
		m.streamCh = nil
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, m.input.Focus()

	case streamErrMsg:
		// The transcript already carries the failure text; local notices
		// only cover conditions that never reach the transcript.
		switch {
		case errors.Is(msg.err, chat.ErrStreamInFlight):
			m.addNotice(noticeError, "An answer is still streaming. Wait for it or press Esc.")
			m.rebuildViewportContent()
			return m, nil
		case errors.Is(msg.err, chat.ErrEmptyQuestion):
			return m, nil
		case errors.Is(msg.err, context.Canceled):
			m.addNotice(noticeSystem, "(Canceled)")
		}
		m.state = StateInput
		m.streamCh = nil
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, m.input.Focus()

	case uploadStartedMsg:
		m.uploadCh = msg.ch
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, tea.Batch(m.spinner.Tick, listenForUpload(msg.ch, msg.closer))

	case uploadDoneMsg:
		// Server-side failures already live in the transcript as upload
		// entries. A failure before the upload ever started (unreadable
		// file: uploadCh never set) has no entry, so show it locally.
		local := m.uploadCh == nil
		m.uploadCh = nil
		if msg.err != nil && local && !errors.Is(msg.err, context.Canceled) {
			m.addNotice(noticeError, msg.err.Error())
		}
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, nil

	case historyChangedMsg:
		m.clampSidebar()
		m.rebuildViewportContent()
		return m, listenForHistory(m.ctx, m.engine)

	case commandNoticeMsg:
		if msg.text != "" {
			m.addNotice(msg.kind, msg.text)
		}
		m.rebuildViewportContent()
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// clampSidebar keeps the selection inside the refreshed list.
func (m *Model) clampSidebar() {
	if n := len(m.engine.History()); m.sidebarIdx >= n && n > 0 {
		m.sidebarIdx = n - 1
	}
}
