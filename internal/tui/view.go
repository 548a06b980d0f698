package tui

import (
	"strings"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/tutorllm/tutorllm/internal/transcript"
)

// View implements tea.Model.
// Uses AltScreen with a viewport for the scrollable conversation.
func (m *Model) View() tea.View {
	m.viewBuf.Reset()

	body := m.viewport.View()
	if m.sidebar {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), body)
	}
	_, _ = m.viewBuf.WriteString(body)
	_, _ = m.viewBuf.WriteString("\n")

	_, _ = m.viewBuf.WriteString(m.renderSeparator())
	_, _ = m.viewBuf.WriteString("\n")

	// Input prompt stays visible and usable even mid-stream.
	_, _ = m.viewBuf.WriteString(m.styles.Prompt.Render("> "))
	_, _ = m.viewBuf.WriteString(m.input.View())
	_, _ = m.viewBuf.WriteString("\n")

	_, _ = m.viewBuf.WriteString(m.renderSeparator())
	_, _ = m.viewBuf.WriteString("\n")

	_, _ = m.viewBuf.WriteString(m.renderStatusBar())

	v := tea.NewView(m.viewBuf.String())
	v.AltScreen = true
	return v
}

// rebuildViewportContent reconstructs the conversation from the engine's
// transcript snapshot. Called whenever the transcript or state changes.
func (m *Model) rebuildViewportContent() {
	var b strings.Builder

	_, _ = b.WriteString(m.styles.RenderBanner())
	_, _ = b.WriteString("\n")
	_, _ = b.WriteString(m.styles.RenderWelcomeTips())
	_, _ = b.WriteString("\n")

	for _, msg := range m.engine.Transcript() {
		m.renderMessage(&b, msg)
		_, _ = b.WriteString("\n\n")
	}

	for _, n := range m.notices {
		switch n.kind {
		case noticeSystem:
			_, _ = b.WriteString(m.styles.System.Render(n.text))
		case noticeError:
			_, _ = b.WriteString(m.styles.Error.Render(n.text))
		}
		_, _ = b.WriteString("\n\n")
	}

	if m.state == StateThinking {
		_, _ = b.WriteString(m.spinner.View())
		_, _ = b.WriteString(" Thinking...\n\n")
	}

	m.viewport.SetContent(b.String())
}

// renderMessage writes one transcript entry in role- and phase-appropriate
// styling. Streaming text stays plain until settled: glamour re-rendering
// per increment is too jumpy.
func (m *Model) renderMessage(b *strings.Builder, msg transcript.Message) {
	switch {
	case msg.Phase == transcript.PhaseUploading:
		_, _ = b.WriteString(m.spinner.View())
		_, _ = b.WriteString(" ")
		_, _ = b.WriteString(m.styles.System.Render(msg.Text))

	case msg.Phase == transcript.PhaseUploaded:
		_, _ = b.WriteString(m.styles.System.Render(msg.Text))

	case msg.Phase == transcript.PhaseUploadFailed:
		_, _ = b.WriteString(m.styles.Error.Render(msg.Text))

	case msg.Role == transcript.RoleUser:
		_, _ = b.WriteString(m.styles.User.Render("You> "))
		_, _ = b.WriteString(msg.Text)

	case msg.Phase == transcript.PhaseStreaming:
		_, _ = b.WriteString(m.styles.Assistant.Render("Tutor> "))
		_, _ = b.WriteString(msg.Text)

	case msg.Phase == transcript.PhaseFailed:
		_, _ = b.WriteString(m.styles.Assistant.Render("Tutor> "))
		_, _ = b.WriteString(m.styles.Error.Render(msg.Text))

	default:
		_, _ = b.WriteString(m.styles.Assistant.Render("Tutor> "))
		_, _ = b.WriteString(m.markdown.Render(msg.Text))
	}
}

// renderSidebar lays out the chat-history pane.
func (m *Model) renderSidebar() string {
	var b strings.Builder
	_, _ = b.WriteString(m.styles.Header.Render("Chats"))
	_, _ = b.WriteString("\n\n")

	history := m.engine.History()
	if len(history) == 0 {
		_, _ = b.WriteString(m.styles.System.Render("No saved chats yet."))
	}
	for i, c := range history {
		title := c.Title
		if title == "" {
			title = c.ID
		}
		line := truncate(title, sidebarWidth-4)
		if i == m.sidebarIdx {
			_, _ = b.WriteString(m.styles.Selected.Render("> " + line))
		} else {
			_, _ = b.WriteString("  " + line)
		}
		_, _ = b.WriteString("\n")
	}

	return m.styles.Sidebar.
		Width(sidebarWidth).
		Height(m.viewport.Height()).
		Render(b.String())
}

// renderSeparator returns a horizontal line separator.
func (m *Model) renderSeparator() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	return m.styles.Separator.Render(strings.Repeat("─", width))
}

// renderStatusBar returns state-appropriate keyboard shortcut help.
func (m *Model) renderStatusBar() string {
	var bindings []key.Binding
	switch {
	case m.sidebar:
		bindings = []key.Binding{
			m.keys.Open, m.keys.History, m.keys.EscCancel, m.keys.Sidebar,
		}
	case m.state == StateInput:
		bindings = []key.Binding{
			m.keys.Submit, m.keys.NewLine, m.keys.History,
			m.keys.Sidebar, m.keys.NewChat, m.keys.Quit,
		}
	default:
		bindings = []key.Binding{
			m.keys.EscCancel, m.keys.Cancel,
			m.keys.ScrollUp, m.keys.ScrollDown,
		}
	}
	return m.help.ShortHelpView(bindings)
}

// conversationWidth is the viewport width with the sidebar accounted for.
func (m *Model) conversationWidth() int {
	w := m.width
	if m.sidebar {
		w -= sidebarWidth
	}
	if w <= 0 {
		w = 80
	}
	return w
}

// resizeViewport recomputes the viewport box from current dimensions.
func (m *Model) resizeViewport() {
	inputHeight := m.input.Height() + promptLines
	fixedHeight := separatorLines + inputHeight + helpLines
	vpHeight := max(m.height-fixedHeight, minViewport)

	m.viewport.SetWidth(m.conversationWidth())
	m.viewport.SetHeight(vpHeight)
	m.input.SetWidth(m.width - 4) // Room for "> " prompt
	m.markdown.UpdateWidth(m.conversationWidth())
}

// truncate shortens s to at most n characters with an ellipsis.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n || n <= 1 {
		return s
	}
	return string(runes[:n-1]) + "…"
}
