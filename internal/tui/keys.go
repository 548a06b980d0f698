package tui

import (
	"strings"
	"time"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
)

// keyMap holds key bindings for help bar display.
type keyMap struct {
	Submit     key.Binding
	NewLine    key.Binding
	History    key.Binding
	Sidebar    key.Binding
	NewChat    key.Binding
	Cancel     key.Binding
	Quit       key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
	EscCancel  key.Binding
	Open       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Submit:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		NewLine:    key.NewBinding(key.WithKeys("shift+enter"), key.WithHelp("s+enter", "newline")),
		History:    key.NewBinding(key.WithKeys("up", "down"), key.WithHelp("↑/↓", "history")),
		Sidebar:    key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "chats")),
		NewChat:    key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "new chat")),
		Cancel:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "cancel")),
		Quit:       key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "exit")),
		ScrollUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		ScrollDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
		EscCancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Open:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open chat")),
	}
}

//nolint:gocyclo // Keyboard handler requires branching for all key combinations
func (m *Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	k := msg.Key()

	if k.Mod&tea.ModCtrl != 0 {
		switch k.Code {
		case 'c':
			return m.handleCtrlC()
		case 'd':
			return m, m.cleanup()
		case 'l':
			m.toggleSidebar()
			return m, nil
		case 'n':
			m.engine.NewChat()
			m.notices = nil
			m.rebuildViewportContent()
			return m, nil
		}
	}

	// Sidebar navigation captures up/down/enter/esc while visible.
	if m.sidebar {
		switch k.Code {
		case tea.KeyUp:
			m.moveSidebar(-1)
			return m, nil
		case tea.KeyDown:
			m.moveSidebar(1)
			return m, nil
		case tea.KeyEnter:
			return m.openSelectedChat()
		case tea.KeyEscape:
			m.sidebar = false
			return m, nil
		}
	}

	switch k.Code {
	case tea.KeyEnter:
		if m.state == StateInput {
			// Enter submits, Shift+Enter falls through to the textarea.
			if k.Mod&tea.ModShift == 0 {
				return m.handleSubmit()
			}
		}

	case tea.KeyUp:
		// Up at the first line recalls input history.
		if m.state == StateInput && m.input.Line() == 0 {
			return m.navigateInputs(-1)
		}

	case tea.KeyDown:
		if m.state == StateInput && m.input.Line() == m.input.LineCount()-1 {
			return m.navigateInputs(1)
		}

	case tea.KeyEscape:
		if m.state == StateStreaming || m.state == StateThinking {
			m.engine.CancelStream()
			return m, nil
		}

	case tea.KeyPgUp:
		m.viewport.PageUp()
		return m, nil

	case tea.KeyPgDown:
		m.viewport.PageDown()
		return m, nil
	}

	// Always allow typing, even while an answer is streaming: the next
	// question can be drafted meanwhile.
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleCtrlC() (tea.Model, tea.Cmd) {
	now := time.Now()

	// Double Ctrl+C within 1 second = quit.
	if now.Sub(m.lastCtrlC) < time.Second {
		return m, m.cleanup()
	}
	m.lastCtrlC = now

	switch m.state {
	case StateInput:
		m.input.Reset()
		return m, nil

	case StateThinking, StateStreaming:
		m.engine.CancelStream()
		m.addNotice(noticeSystem, "(Canceled)")
		m.rebuildViewportContent()
		return m, nil
	}

	return m, nil
}

func (m *Model) handleSubmit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}

	if strings.HasPrefix(text, "/") {
		return m.handleSlashCommand(text)
	}

	// Record for up/down recall, bounded.
	m.inputs = append(m.inputs, text)
	if len(m.inputs) > maxHistory {
		m.inputs = m.inputs[len(m.inputs)-maxHistory:]
	}
	m.inputIdx = len(m.inputs)

	m.input.Reset()
	m.state = StateThinking

	return m, tea.Batch(
		m.spinner.Tick,
		startStream(m.ctx, m.engine, text),
	)
}

func (m *Model) navigateInputs(delta int) (tea.Model, tea.Cmd) {
	if len(m.inputs) == 0 {
		return m, nil
	}

	m.inputIdx += delta
	if m.inputIdx < 0 {
		m.inputIdx = 0
	}
	if m.inputIdx > len(m.inputs) {
		m.inputIdx = len(m.inputs)
	}

	if m.inputIdx == len(m.inputs) {
		m.input.SetValue("")
	} else {
		m.input.SetValue(m.inputs[m.inputIdx])
		m.input.CursorEnd()
	}
	return m, nil
}

func (m *Model) toggleSidebar() {
	m.sidebar = !m.sidebar
	if m.sidebar {
		m.sidebarIdx = 0
	}
	m.resizeViewport()
	m.rebuildViewportContent()
}

func (m *Model) moveSidebar(delta int) {
	entries := len(m.engine.History())
	if entries == 0 {
		return
	}
	m.sidebarIdx += delta
	if m.sidebarIdx < 0 {
		m.sidebarIdx = 0
	}
	if m.sidebarIdx >= entries {
		m.sidebarIdx = entries - 1
	}
}

func (m *Model) openSelectedChat() (tea.Model, tea.Cmd) {
	history := m.engine.History()
	if m.sidebarIdx < 0 || m.sidebarIdx >= len(history) {
		return m, nil
	}
	m.sidebar = false
	m.resizeViewport()
	return m, loadChat(m.ctx, m.engine, history[m.sidebarIdx].ID)
}

// cleanup cancels everything in flight and returns the quit command.
func (m *Model) cleanup() tea.Cmd {
	if m.ctxCancel != nil {
		m.ctxCancel()
		m.ctxCancel = nil
	}
	m.engine.CancelStream()
	m.streamCh = nil
	m.uploadCh = nil
	return tea.Quit
}
