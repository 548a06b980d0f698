package api

import "errors"

// Sentinel errors for backend operations.
// These are part of the Client's public API and should be checked with errors.Is().
//
// Example:
//
//	entries, err := client.ListChats(ctx, email)
//	if errors.Is(err, api.ErrUnreachable) {
//	    // network-level failure, backend never saw the request
//	}
var (
	// ErrUnreachable indicates the request could not reach the backend at all
	// (connection refused, DNS failure, timeout before any response).
	ErrUnreachable = errors.New("backend unreachable")

	// ErrServer indicates the backend answered with a non-success status.
	ErrServer = errors.New("backend error")

	// ErrServerInternal indicates a 500-class status. Distinguished from
	// ErrServer internally; the user-visible treatment is identical.
	// errors.Is(err, ErrServer) also holds for this error.
	ErrServerInternal = errors.New("backend internal error")

	// ErrChatNotFound indicates the requested chat does not exist on the server.
	ErrChatNotFound = errors.New("chat not found")
)
