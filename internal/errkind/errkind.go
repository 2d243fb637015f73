// Package errkind defines the sentinel error kinds shared by every
// component in the conversation engine, following the same plain
// errors.New/errors.Is style the rest of the codebase uses for storage
// errors.
package errkind

import "errors"

var (
	// ErrValidation marks malformed or missing user input; surfaced to
	// HTTP clients as 4xx.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a reference to an unknown chat, message, or task.
	ErrNotFound = errors.New("not found")

	// ErrTransport marks a network, timeout, or TLS failure reaching an
	// upstream (LLM endpoint, MCP server, token endpoint).
	ErrTransport = errors.New("transport error")

	// ErrProtocol marks a JSON-RPC error response or malformed SSE frame.
	// For MCP it triggers session discard and a single re-handshake
	// attempt; for the LLM client it terminates the turn.
	ErrProtocol = errors.New("protocol error")

	// ErrAuthUnavailable marks a failed token acquisition. The request is
	// abandoned; callers must not proceed with a partial/expired token.
	ErrAuthUnavailable = errors.New("auth unavailable")

	// ErrToolFailure marks a tool invocation that completed but reported
	// isError=true. Not fatal: the orchestrator feeds it back to the LLM.
	ErrToolFailure = errors.New("tool failure")

	// ErrContentTooLong marks filtered content exceeding the maximum
	// persisted length.
	ErrContentTooLong = errors.New("content too long")

	// ErrEmptyAfterFilter marks a non-empty raw stream whose filtered
	// form is empty; the turn is surfaced as an error and not persisted.
	ErrEmptyAfterFilter = errors.New("empty after filter")
)
