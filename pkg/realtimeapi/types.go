// Package realtimeapi defines the Provider/SessionHandle abstraction over a
// conversational model's "Realtime API" style WebSocket: a long-lived,
// bidirectional session that accepts streamed PCM16 audio and server-side
// voice-activity detection, and emits audio, transcript, and tool-call
// events.
package realtimeapi

// ToolDefinition describes one tool offered to the model for the lifetime of
// a session, in the JSON-function-calling shape. Name must be unique within
// a session's tool set.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a fully reassembled tool invocation request from the model,
// delivered once its streamed arguments are complete. Arguments holds the
// raw JSON arguments string; it is not parsed.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolCallHandler is invoked synchronously by the session's internal receive
// loop whenever the model finalises a tool call. It must return a result
// string to inject back as the call's output, or an error — the session
// converts a non-nil error into a structured {"error": "..."} output so the
// model always receives exactly one function_call_output per call.
//
// Implementations must not block for longer than the caller's configured
// tool budget and must not call other blocking SessionHandle methods from
// within the handler.
type ToolCallHandler func(name, args string) (string, error)

// ContextItem is a text message injected into a session's rolling context
// outside of the normal audio turn, e.g. operator intervention or corrected
// transcripts.
type ContextItem struct {
	Role    string // "system", "user", or "assistant"
	Content string
}

// TurnDetection configures the model's server-side voice-activity detector.
type TurnDetection struct {
	Type              string // "server_vad"
	Threshold         float64
	PrefixPaddingMs   int
	SilenceDurationMs int
}

// SessionConfig is the initial configuration sent as the session's first
// session.update message.
type SessionConfig struct {
	Voice                   string
	Instructions            string
	Temperature             float64
	MaxResponseTokens       int
	Tools                   []ToolDefinition
	TurnDetection           TurnDetection
	InputTranscriptionModel string
}

// TranscriptEntry is one speaker segment delivered by a session, either a
// final caller transcription or a (possibly partial) model reply.
type TranscriptEntry struct {
	Speaker string // "user" or "assistant"
	Text    string
	IsDelta bool
}
