// Package transcript holds the ordered message list for the currently open
// chat. It is the ground truth for what the view renders.
//
// The store is generation-scoped: every wholesale replacement (loading a chat,
// starting a new one) bumps the generation, and every mutation carries the
// generation it was started under. A mutation from a superseded generation is
// rejected with ErrStaleGeneration, which is how in-flight streams and uploads
// from a previous chat are prevented from writing into the new one.
//
// Messages are addressed by stable ID from creation, never by scanning for
// content, so concurrent side-channel operations cannot target each other's
// entries.
package transcript

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Role identifies who a message is attributed to.
type Role string

// Message roles. Persisted roles other than "user" map to RoleAssistant.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Phase is the lifecycle state of one message.
type Phase string

// Message phases. Text is append-only while PhaseStreaming; the three upload
// phases mark side-channel entries so they can never collide with an active
// answer stream.
const (
	PhaseComposing    Phase = "composing"
	PhaseStreaming    Phase = "streaming"
	PhaseSettled      Phase = "settled"
	PhaseFailed       Phase = "failed"
	PhaseUploading    Phase = "uploading"
	PhaseUploaded     Phase = "uploaded"
	PhaseUploadFailed Phase = "upload_failed"
)

// Generation is a logical epoch of the store, incremented on every wholesale
// replacement. Mutations from an older generation are discarded.
type Generation uint64

// Sentinel errors returned by store mutators.
var (
	// ErrNoActiveStream indicates UpdateLast was called with no streaming
	// message present. This is a programming-error class: increments must
	// only arrive while their placeholder exists.
	ErrNoActiveStream = errors.New("no active streaming message")

	// ErrStreamActive indicates a second streaming placeholder was appended
	// while one is already open.
	ErrStreamActive = errors.New("a streaming message is already active")

	// ErrStaleGeneration indicates the mutation was started under a
	// generation that has since been replaced.
	ErrStaleGeneration = errors.New("stale transcript generation")

	// ErrMessageNotFound indicates no message with the given ID exists.
	ErrMessageNotFound = errors.New("message not found")
)

// Message is one transcript entry.
type Message struct {
	ID    uuid.UUID
	Role  Role
	Text  string
	Phase Phase
}

// Store is the ordered, mutable message list for one open chat.
// Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	gen      Generation
	messages []Message
}

// NewStore creates a store seeded with a settled assistant greeting.
// An empty greeting seeds an empty transcript.
func NewStore(greeting string) *Store {
	s := &Store{gen: 1}
	if greeting != "" {
		s.messages = []Message{{
			ID:    uuid.New(),
			Role:  RoleAssistant,
			Text:  greeting,
			Phase: PhaseSettled,
		}}
	}
	return s
}

// Generation returns the current generation. Callers capture it before
// starting an asynchronous operation and pass it back with every write.
func (s *Store) Generation() Generation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Snapshot returns a copy of all messages. The copy is safe to read while
// the store keeps mutating.
func (s *Store) Snapshot() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Append adds a message under the given generation and returns its ID
// (assigned when the message carries none). Appending a second streaming
// message while one is open returns ErrStreamActive.
func (s *Store) Append(gen Generation, msg Message) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return uuid.Nil, ErrStaleGeneration
	}
	if msg.Phase == PhaseStreaming && s.streamingIndex() >= 0 {
		return uuid.Nil, ErrStreamActive
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	s.messages = append(s.messages, msg)
	return msg.ID, nil
}

// UpdateLast applies the mutator to the message at the highest index whose
// phase is streaming. Returns ErrNoActiveStream when no such message exists.
func (s *Store) UpdateLast(gen Generation, mutate func(*Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return ErrStaleGeneration
	}
	i := s.streamingIndex()
	if i < 0 {
		return ErrNoActiveStream
	}
	mutate(&s.messages[i])
	return nil
}

// Update applies the mutator to the message with the given ID.
func (s *Store) Update(gen Generation, id uuid.UUID, mutate func(*Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return ErrStaleGeneration
	}
	for i := range s.messages {
		if s.messages[i].ID == id {
			mutate(&s.messages[i])
			return nil
		}
	}
	return ErrMessageNotFound
}

// ReplaceAll atomically replaces the whole transcript and bumps the
// generation. A reader never observes a mix of old and new entries.
// Messages without an ID are assigned one.
func (s *Store) ReplaceAll(messages []Message) Generation {
	s.mu.Lock()
	defer s.mu.Unlock()

	replacement := make([]Message, len(messages))
	copy(replacement, messages)
	for i := range replacement {
		if replacement[i].ID == uuid.Nil {
			replacement[i].ID = uuid.New()
		}
	}
	s.messages = replacement
	s.gen++
	return s.gen
}

// Reset replaces the transcript with a fresh greeting, bumping the
// generation. Used on "new chat".
func (s *Store) Reset(greeting string) Generation {
	var seed []Message
	if greeting != "" {
		seed = []Message{{
			Role:  RoleAssistant,
			Text:  greeting,
			Phase: PhaseSettled,
		}}
	}
	return s.ReplaceAll(seed)
}

// streamingIndex returns the highest index with a streaming message, or -1.
// Caller must hold the lock.
func (s *Store) streamingIndex() int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Phase == PhaseStreaming {
			return i
		}
	}
	return -1
}
