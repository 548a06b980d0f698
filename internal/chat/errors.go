package chat

import "errors"

// Sentinel errors for engine operations, checked with errors.Is().
var (
	// ErrStreamInFlight indicates Send was called while a previous answer
	// stream is still being consumed. Concurrent sends are rejected, not
	// queued or interleaved.
	ErrStreamInFlight = errors.New("an answer stream is already in flight")

	// ErrNoIdentity indicates an operation that requires a signed-in user
	// with an email (history, loading persisted chats) was attempted
	// without one.
	ErrNoIdentity = errors.New("no signed-in identity with an email")

	// ErrEmptyQuestion indicates Send was called with blank input.
	ErrEmptyQuestion = errors.New("question is empty")
)
