package realtimeapi

import "context"

// SessionHandle represents one open model-session WebSocket for a single
// call. Every method must return quickly — audio and transcripts are
// delivered via channels so the hot path never blocks on a caller that is
// slow to consume them.
//
// All methods are safe for concurrent use. Callers must call Close when the
// session is no longer needed; Close is idempotent.
type SessionHandle interface {
	// SendAudio appends a PCM16 chunk to the session's input audio buffer and
	// commits it. The chunk must already be resampled to the session's
	// negotiated input format (PCM16 24 kHz). Returns an error if the
	// session is closed.
	SendAudio(chunk []byte) error

	// Audio returns a read-only channel streaming PCM16 24 kHz deltas as the
	// model synthesises its spoken reply. Closed when the session ends.
	Audio() <-chan []byte

	// Err returns the error that closed the session, or nil on a clean close.
	Err() error

	// Transcripts returns a read-only channel of caller and model transcript
	// entries. Per design note (b), only final (non-delta) entries need be
	// persisted by the caller — deltas are provided for optional live UI.
	Transcripts() <-chan TranscriptEntry

	// OnToolCall registers the handler invoked when the model finalises a
	// tool call. Replaces any previously registered handler; nil clears it.
	OnToolCall(handler ToolCallHandler)

	// SetTools replaces the session's active tool set without reconnecting.
	SetTools(tools []ToolDefinition) error

	// UpdateInstructions replaces the system-level instructions, effective
	// on the model's next turn.
	UpdateInstructions(instructions string) error

	// InjectTextContext inserts context items into the session without
	// waiting for caller audio, e.g. operator intervention or test
	// injection.
	InjectTextContext(items []ContextItem) error

	// Interrupt aborts the model's in-flight response so that a caller
	// barge-in is not talked over. Subsequent audio deltas belonging to the
	// aborted response are discarded by the caller until the next response
	// boundary.
	Interrupt() error

	// Close terminates the session and releases all resources. Safe to call
	// more than once.
	Close() error
}

// Provider is the abstraction over a Realtime-API-style backend.
// Implementations must be safe for concurrent use; a process may hold many
// concurrent sessions, one per active call.
type Provider interface {
	// Connect opens a new session with cfg and sends the initial
	// session.update before returning. The model session must never receive
	// audio before session.update has been sent.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
