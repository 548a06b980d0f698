// Package chat implements the chat session engine: it owns the open
// conversation's transcript, drives the streamed answer exchange, keeps the
// chat-history sidebar fresh, and interleaves document-upload side effects
// into the transcript without disturbing an ongoing stream.
//
// The engine coordinates four concerns around the transcript store:
//
//   - session identity: none → creating → assigned, created lazily on the
//     first send of a fresh session (session.go)
//   - streaming ingestion: answer increments applied in arrival order to a
//     single streaming placeholder (send.go)
//   - history synchronization: best-effort, throttled refresh of the user's
//     chat list after every mutating action (history.go)
//   - ingestion side-channel: upload progress entries addressed by stable ID,
//     concurrent with streaming (upload.go)
//
// All remote failures are absorbed here: they become transcript entries or
// log lines, never errors that escape to the view layer mid-operation.
package chat

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tutorllm/tutorllm/internal/api"
	"github.com/tutorllm/tutorllm/internal/identity"
	"github.com/tutorllm/tutorllm/internal/log"
	"github.com/tutorllm/tutorllm/internal/transcript"
)

// Greeting seeds every fresh transcript.
const Greeting = "Hello! I'm your study assistant. Ask me anything about your documents or any general subject you're working on."

// Fixed user-visible strings for failure and upload outcomes.
const (
	// apology replaces an empty placeholder when the answer request fails
	// before any increment arrives. Partial answers keep their text.
	apology = "Sorry, I can't reach the server right now."

	uploadedReply     = "File uploaded and ingested successfully! You can now ask questions about it."
	uploadFailedReply = "Sorry, something went wrong while processing your file. Please try again."
)

// TitleMaxLen is the prefix length for titles derived from a first message.
const TitleMaxLen = 30

// Default operation bounds, overridable via Config.
const (
	DefaultStreamTimeout = 5 * time.Minute
	DefaultUploadTimeout = 2 * time.Minute
)

// eventBufferSize absorbs bursts of increments while the view renders.
const eventBufferSize = 100

// Backend is the slice of the tutoring service the engine consumes.
// *api.Client satisfies it; tests substitute fakes.
type Backend interface {
	Query(ctx context.Context, req api.QueryRequest) iter.Seq2[string, error]
	ListChats(ctx context.Context, userEmail string) ([]api.ChatSummary, error)
	CreateChat(ctx context.Context, userEmail, title string) (string, error)
	LoadChat(ctx context.Context, chatID, userEmail string) (api.ChatDetail, error)
	Ingest(ctx context.Context, filename string, content io.Reader, userEmail, chatID string) error
}

// Compile-time interface verification.
var _ Backend = (*api.Client)(nil)

// SessionState is the chat-identity state machine.
type SessionState int

// Session identity states. A fresh session has no identity; the first
// successful send assigns one, and only an explicit new-chat reverts it.
const (
	SessionNone SessionState = iota
	SessionCreating
	SessionAssigned
)

// Session describes the currently open chat.
type Session struct {
	State SessionState
	ID    string // server-assigned identifier, set only when State is SessionAssigned
	Title string
}

// Event is a discriminated union of engine progress notifications.
// Exactly one of the fields is meaningful per event. The union keeps the
// consumer's select logic to a single channel.
type Event struct {
	Chunk string // incremental answer text (when non-empty)
	Err   error  // terminal failure (when non-nil)
	Done  bool   // operation completed
}

// Config holds the Engine's construction parameters.
type Config struct {
	Backend  Backend           // required
	Identity identity.Provider // required
	Logger   log.Logger        // required

	// Store is the transcript to drive. Optional; defaults to a fresh
	// store seeded with Greeting.
	Store *transcript.Store

	// StreamTimeout bounds one answer stream end to end. Optional.
	StreamTimeout time.Duration

	// UploadTimeout bounds one upload including server-side ingestion. Optional.
	UploadTimeout time.Duration

	// HistoryLimiter throttles sidebar refreshes. Optional; defaults to
	// one refresh per second with a small burst.
	HistoryLimiter *rate.Limiter
}

func (c Config) validate() error {
	if c.Backend == nil {
		return errors.New("chat: Backend is required")
	}
	if c.Identity == nil {
		return errors.New("chat: Identity is required")
	}
	if c.Logger == nil {
		return errors.New("chat: Logger is required")
	}
	return nil
}

// Engine is the chat session engine. One Engine serves one open view.
// Methods are safe for concurrent use; the transcript store and the
// generation counter arbitrate overlapping asynchronous operations.
type Engine struct {
	backend Backend
	ident   identity.Provider
	logger  log.Logger
	store   *transcript.Store

	streamTimeout time.Duration
	uploadTimeout time.Duration

	// Session identity state machine (session.go).
	mu       sync.Mutex
	session  Session
	creating chan struct{} // non-nil while a creation call is outstanding

	// At most one answer stream per open chat. sendSeq identifies the
	// current exchange so a superseded stream's completion cannot release
	// a newer one's guard.
	sendActive   bool
	sendSeq      uint64
	streamCancel context.CancelFunc // cancels the in-flight stream, nil when idle

	// History sidebar state (history.go).
	histMu  sync.RWMutex
	history []api.ChatSummary
	limiter *rate.Limiter

	// historyCh receives a signal after each successful refresh.
	historyCh chan struct{}
}

// New creates an Engine from the given configuration.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	store := cfg.Store
	if store == nil {
		store = transcript.NewStore(Greeting)
	}
	streamTimeout := cfg.StreamTimeout
	if streamTimeout <= 0 {
		streamTimeout = DefaultStreamTimeout
	}
	uploadTimeout := cfg.UploadTimeout
	if uploadTimeout <= 0 {
		uploadTimeout = DefaultUploadTimeout
	}
	limiter := cfg.HistoryLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(1, 3)
	}

	return &Engine{
		backend:       cfg.Backend,
		ident:         cfg.Identity,
		logger:        cfg.Logger,
		store:         store,
		streamTimeout: streamTimeout,
		uploadTimeout: uploadTimeout,
		limiter:       limiter,
		historyCh:     make(chan struct{}, 1),
	}, nil
}

// Transcript returns a copy of the open chat's messages.
func (e *Engine) Transcript() []transcript.Message {
	return e.store.Snapshot()
}

// Session returns the current session descriptor.
func (e *Engine) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Profile returns the signed-in profile, or a zero Profile when anonymous.
func (e *Engine) Profile() identity.Profile {
	p, err := e.ident.Profile()
	if err != nil {
		return identity.Profile{}
	}
	return p
}

// emit delivers an event unless the context is gone.
func emit(ctx context.Context, ch chan<- Event, ev Event) {
	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}
