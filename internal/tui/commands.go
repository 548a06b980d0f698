package tui

import (
	"strings"

	tea "charm.land/bubbletea/v2"
)

// Slash command constants.
const (
	cmdHelp   = "/help"
	cmdNew    = "/new"
	cmdChats  = "/chats"
	cmdUpload = "/upload"
	cmdExit   = "/exit"
	cmdQuit   = "/quit"
)

const helpText = "Commands: " + cmdHelp + ", " + cmdNew + ", " + cmdChats + ", " + cmdUpload + " <path>, " + cmdExit + `
Shortcuts:
  Enter: send message
  Shift+Enter: new line
  Ctrl+N: new chat
  Ctrl+L: chat history sidebar
  Ctrl+C: cancel/clear (twice to exit)
  Ctrl+D: exit
  Up/Down: input history
  PgUp/PgDn: scroll`

func (m *Model) handleSlashCommand(input string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	defer m.input.Reset()

	switch name {
	case cmdHelp:
		m.addNotice(noticeSystem, helpText)
		m.rebuildViewportContent()
		return m, nil

	case cmdNew:
		m.engine.NewChat()
		m.notices = nil
		m.rebuildViewportContent()
		return m, nil

	case cmdChats:
		m.toggleSidebar()
		return m, nil

	case cmdUpload:
		if arg == "" {
			m.addNotice(noticeError, "Usage: " + cmdUpload + " <path>")
			m.rebuildViewportContent()
			return m, nil
		}
		return m, startUpload(m.ctx, m.engine, arg)

	case cmdExit, cmdQuit:
		return m, m.cleanup()

	default:
		m.addNotice(noticeError, "Unknown command: " + name)
		m.rebuildViewportContent()
		return m, nil
	}
}
