// Package bridgeerr defines the error taxonomy shared across the call bridge.
//
// Each kind is a sentinel wrapped with context via fmt.Errorf("%w"); callers
// use errors.Is against the sentinel or errors.As against the typed wrapper
// to decide whether a failure is recoverable at the frame/tool level or must
// propagate to a call-level state transition.
package bridgeerr

import "errors"

// Sentinel kinds. Wrap one of these with fmt.Errorf("...: %w", ErrProtocol)
// so both errors.Is(err, ErrProtocol) and the formatted message work.
var (
	// ErrProtocol marks a malformed event from the carrier or the model. The
	// frame is dropped and a counter incremented; the bridge only terminates
	// after repeated failures within a window.
	ErrProtocol = errors.New("protocol error")

	// ErrTransport marks a socket that closed unexpectedly or timed out.
	// The affected bridge is terminated and the call transitions to failed.
	ErrTransport = errors.New("transport error")

	// ErrToolArgument marks model-provided tool arguments that are not valid
	// JSON. The session stays open; the model is told to retry.
	ErrToolArgument = errors.New("tool argument error")

	// ErrToolExecution marks a tool handler that returned an error. Caught and
	// surfaced to the model as a structured error result.
	ErrToolExecution = errors.New("tool execution error")

	// ErrNotFound marks an unknown call_sid or escalation id. Logged and
	// dropped, never fatal.
	ErrNotFound = errors.New("not found")

	// ErrConfiguration marks a missing system prompt or violated tool-schema
	// invariant at bridge start. The bridge must fail fast and never partially
	// start.
	ErrConfiguration = errors.New("configuration error")
)

// Kind classifies an error against the taxonomy above. Unrecognised errors
// return "" so callers can fall back to generic handling.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrToolArgument):
		return "tool_argument"
	case errors.Is(err, ErrToolExecution):
		return "tool_execution"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return ""
	}
}
