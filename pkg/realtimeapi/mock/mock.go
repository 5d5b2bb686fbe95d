// Package mock provides an in-memory [realtimeapi.Provider] and
// [realtimeapi.SessionHandle] for testing components that depend on a model
// session without a live WebSocket connection.
package mock

import (
	"context"
	"sync"

	"github.com/ivoxa/callbridge/pkg/realtimeapi"
)

// Provider is a test double that returns pre-configured sessions, or an
// error if ConnectErr is set.
type Provider struct {
	ConnectErr error
	Sessions   []*Session // sessions handed out, in connect order
	mu         sync.Mutex
}

func (p *Provider) Connect(_ context.Context, cfg realtimeapi.SessionConfig) (realtimeapi.SessionHandle, error) {
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	s := NewSession()
	s.Config = cfg
	p.mu.Lock()
	p.Sessions = append(p.Sessions, s)
	p.mu.Unlock()
	return s, nil
}

// Session is a controllable fake SessionHandle. Tests push audio/transcript
// values via PushAudio/PushTranscript and inspect SentAudio/InterruptCount/etc.
type Session struct {
	Config realtimeapi.SessionConfig

	mu            sync.Mutex
	audioCh       chan []byte
	transcriptsCh chan realtimeapi.TranscriptEntry
	toolHandler   realtimeapi.ToolCallHandler
	tools         []realtimeapi.ToolDefinition
	instructions  string
	injected      []realtimeapi.ContextItem
	sentAudio     [][]byte
	interrupted   int
	closed        bool
	err           error
}

func NewSession() *Session {
	return &Session{
		audioCh:       make(chan []byte, 64),
		transcriptsCh: make(chan realtimeapi.TranscriptEntry, 64),
	}
}

func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	cp := append([]byte(nil), chunk...)
	s.sentAudio = append(s.sentAudio, cp)
	return nil
}

func (s *Session) Audio() <-chan []byte                { return s.audioCh }
func (s *Session) Transcripts() <-chan realtimeapi.TranscriptEntry { return s.transcriptsCh }

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) OnToolCall(handler realtimeapi.ToolCallHandler) {
	s.mu.Lock()
	s.toolHandler = handler
	s.mu.Unlock()
}

func (s *Session) SetTools(tools []realtimeapi.ToolDefinition) error {
	s.mu.Lock()
	s.tools = tools
	s.mu.Unlock()
	return nil
}

func (s *Session) UpdateInstructions(instructions string) error {
	s.mu.Lock()
	s.instructions = instructions
	s.mu.Unlock()
	return nil
}

func (s *Session) InjectTextContext(items []realtimeapi.ContextItem) error {
	s.mu.Lock()
	s.injected = append(s.injected, items...)
	s.mu.Unlock()
	return nil
}

func (s *Session) Interrupt() error {
	s.mu.Lock()
	s.interrupted++
	s.mu.Unlock()
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.audioCh)
	close(s.transcriptsCh)
	return nil
}

// ── test helpers ────────────────────────────────────────────────────────

func (s *Session) PushAudio(chunk []byte)                           { s.audioCh <- chunk }
func (s *Session) PushTranscript(e realtimeapi.TranscriptEntry)     { s.transcriptsCh <- e }
func (s *Session) SentAudio() [][]byte                              { s.mu.Lock(); defer s.mu.Unlock(); return s.sentAudio }
func (s *Session) InterruptCount() int                              { s.mu.Lock(); defer s.mu.Unlock(); return s.interrupted }
func (s *Session) InvokeTool(name, args string) (string, error) {
	s.mu.Lock()
	h := s.toolHandler
	s.mu.Unlock()
	if h == nil {
		return "", errNoHandler
	}
	return h(name, args)
}

var errClosed = sessionClosedError{}
var errNoHandler = noHandlerError{}

type sessionClosedError struct{}

func (sessionClosedError) Error() string { return "mock: session closed" }

type noHandlerError struct{}

func (noHandlerError) Error() string { return "mock: no tool handler registered" }
