// Package tui provides the Bubble Tea terminal interface for the tutoring
// assistant. It is a thin view over chat.Engine: the engine owns the
// transcript and all remote state, the TUI renders snapshots of it and
// translates keystrokes into engine calls.
package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/tutorllm/tutorllm/internal/chat"
)

// State represents the TUI state machine.
type State int

// TUI state machine states.
const (
	StateInput     State = iota // Awaiting user input
	StateThinking               // Request sent, no increment yet
	StateStreaming              // Increments arriving
)

// Memory bounds to prevent unbounded growth.
const (
	maxHistory = 100 // Maximum input history entries
	maxNotices = 20  // Maximum local notice lines kept
)

// Layout constants for viewport height calculation.
const (
	separatorLines = 2 // Separator above and below input
	helpLines      = 1 // Help bar height
	promptLines    = 1 // Prompt prefix line
	minViewport    = 3 // Minimum viewport height
	sidebarWidth   = 32
)

// noticeKind distinguishes local system notes from command errors.
type noticeKind int

const (
	noticeSystem noticeKind = iota
	noticeError
)

// notice is a local, non-transcript line shown under the conversation
// (slash-command output, cancellations, command errors).
type notice struct {
	kind noticeKind
	text string
}

// Model is the Bubble Tea model for the tutoring terminal interface.
type Model struct {
	// Input (textarea for multi-line support, Shift+Enter for newline)
	input     textarea.Model
	inputs    []string // submitted inputs for up/down recall
	inputIdx  int
	lastCtrlC time.Time

	// State
	state   State
	notices []notice

	// Conversation viewport and history sidebar
	viewport   viewport.Model
	sidebar    bool // sidebar visible
	sidebarIdx int  // selected entry when visible
	viewBuf    strings.Builder

	spinner spinner.Model
	help    help.Model
	keys    keyMap

	// In-flight event channels. The engine closes them; Update re-arms
	// a listener command after each event.
	streamCh <-chan chat.Event
	uploadCh <-chan chat.Event

	// Dependencies (direct, no interface)
	engine    *chat.Engine
	ctx       context.Context
	ctxCancel context.CancelFunc

	// Dimensions
	width  int
	height int

	styles Styles

	// Markdown rendering (nil = graceful degradation to plain text)
	markdown *markdownRenderer
}

// addNotice appends a local notice and enforces maxNotices.
func (m *Model) addNotice(kind noticeKind, text string) {
	m.notices = append(m.notices, notice{kind: kind, text: text})
	if len(m.notices) > maxNotices {
		m.notices = m.notices[len(m.notices)-maxNotices:]
	}
}

// New creates a Model over the given engine.
//
// ctx must be the same context passed to tea.WithContext() so cancellation
// behaves consistently.
func New(ctx context.Context, engine *chat.Engine) (*Model, error) {
	if engine == nil {
		return nil, errors.New("tui.New: engine is required")
	}
	if ctx == nil {
		return nil, errors.New("tui.New: ctx is required")
	}

	ctx, cancel := context.WithCancel(ctx)

	// Enter submits, Shift+Enter adds a newline (textarea default).
	ta := textarea.New()
	ta.Placeholder = "Ask about your documents or any subject..."
	ta.SetHeight(1)
	ta.SetWidth(120) // Updated on WindowSizeMsg
	ta.MaxWidth = 0
	ta.ShowLineNumbers = false

	// Minimal styling: no backgrounds, gray placeholder.
	cleanStyle := textarea.StyleState{
		Base:        lipgloss.NewStyle(),
		Text:        lipgloss.NewStyle(),
		Placeholder: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Prompt:      lipgloss.NewStyle(),
	}
	ta.SetStyles(textarea.Styles{Focused: cleanStyle, Blurred: cleanStyle})
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	// Keys are routed explicitly in handleKey; the viewport's own
	// bindings would conflict with textarea and sidebar navigation.
	vp := viewport.New(viewport.WithWidth(80), viewport.WithHeight(20))
	vp.MouseWheelEnabled = true
	vp.SoftWrap = true
	vp.KeyMap = viewport.KeyMap{}

	return &Model{
		engine:    engine,
		ctx:       ctx,
		ctxCancel: cancel,
		input:     ta,
		spinner:   sp,
		viewport:  vp,
		help:      help.New(),
		keys:      newKeyMap(),
		styles:    DefaultStyles(),
		inputs:    make([]string, 0, maxHistory),
		markdown:  newMarkdownRenderer(80),
		width:     80, // Default until WindowSizeMsg arrives
	}, nil
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.input.Focus(),
		refreshHistory(m.ctx, m.engine),
		listenForHistory(m.ctx, m.engine),
	)
}
