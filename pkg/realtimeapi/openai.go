package realtimeapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"
)

// Option configures an OpenAIProvider.
type Option func(*OpenAIProvider)

// WithModel overrides the default Realtime model id.
func WithModel(model string) Option {
	return func(p *OpenAIProvider) { p.model = model }
}

// WithBaseURL overrides the default Realtime WebSocket endpoint, for testing
// against a local fake.
func WithBaseURL(url string) Option {
	return func(p *OpenAIProvider) { p.baseURL = url }
}

// OpenAIProvider implements [Provider] against OpenAI's Realtime API.
type OpenAIProvider struct {
	apiKey  string
	model   string
	baseURL string
}

// NewOpenAIProvider creates a provider authenticated with apiKey.
func NewOpenAIProvider(apiKey string, opts ...Option) *OpenAIProvider {
	p := &OpenAIProvider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connect implements [Provider].
func (p *OpenAIProvider) Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error) {
	wsURL := fmt.Sprintf("%s?model=%s", p.baseURL, p.model)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("realtimeapi: dial: %w", err)
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &openaiSession{
		conn:        conn,
		audioCh:     make(chan []byte, 64),
		transcripts: make(chan TranscriptEntry, 16),
		pending:     make(map[string]*pendingToolCall),
		ctx:         sessCtx,
		cancel:      cancel,
	}

	if err := sess.sendSessionUpdate(cfg); err != nil {
		cancel()
		_ = conn.Close(websocket.StatusInternalError, "session.update failed")
		return nil, fmt.Errorf("realtimeapi: session.update: %w", err)
	}

	go sess.receiveLoop()
	return sess, nil
}

// pendingToolCall accumulates streamed function_call_arguments.delta pieces
// keyed by call id, destroyed on completion per the spec's PendingToolCall
// entity.
type pendingToolCall struct {
	name            string
	argumentsBuffer string
}

type openaiSession struct {
	conn        *websocket.Conn
	audioCh     chan []byte
	transcripts chan TranscriptEntry

	toolHandler  ToolCallHandler
	errorHandler func(error)

	mu            sync.Mutex
	pending       map[string]*pendingToolCall
	errVal        error
	closed        bool
	currentTxText string

	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
	chansOnce  sync.Once
}

// ── outbound wire messages ───────────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Modalities              []string         `json:"modalities"`
	Voice                   string           `json:"voice,omitempty"`
	Instructions            string           `json:"instructions,omitempty"`
	Temperature             float64          `json:"temperature,omitempty"`
	MaxResponseOutputTokens int              `json:"max_response_output_tokens,omitempty"`
	InputAudioFormat        string           `json:"input_audio_format"`
	OutputAudioFormat       string           `json:"output_audio_format"`
	TurnDetection           *turnDetection   `json:"turn_detection,omitempty"`
	InputAudioTranscription *transcriptCfg   `json:"input_audio_transcription,omitempty"`
	Tools                   []oaiToolWrapper `json:"tools,omitempty"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
}

type transcriptCfg struct {
	Model string `json:"model"`
}

type oaiToolWrapper struct {
	Type     string      `json:"type"`
	Function oaiFunction `json:"function"`
}

type oaiFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type commitAudioMessage struct {
	Type string `json:"type"`
}

type createConversationItemMessage struct {
	Type string          `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string            `json:"type"`
	Role    string            `json:"role,omitempty"`
	Content []conversationPart `json:"content,omitempty"`
	CallID  string            `json:"call_id,omitempty"`
	Output  string            `json:"output,omitempty"`
}

type conversationPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseCreateMessage struct {
	Type string `json:"type"`
}

// responseCancelMessage aborts the in-flight response. The Realtime API's
// wire event is "response.cancel"; the spec's own vocabulary calls this
// operation "interrupt" (observed irregularity (a) in the design notes) —
// SessionHandle.Interrupt sends this wire message.
type responseCancelMessage struct {
	Type string `json:"type"`
}

func toOAITools(tools []ToolDefinition) []oaiToolWrapper {
	out := make([]oaiToolWrapper, len(tools))
	for i, t := range tools {
		out[i] = oaiToolWrapper{
			Type: "function",
			Function: oaiFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

func (s *openaiSession) sendSessionUpdate(cfg SessionConfig) error {
	msg := sessionUpdateMessage{
		Type: "session.update",
		Session: sessionParams{
			Modalities:        []string{"audio", "text"},
			Voice:             cfg.Voice,
			Instructions:      cfg.Instructions,
			Temperature:       cfg.Temperature,
			MaxResponseOutputTokens: cfg.MaxResponseTokens,
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
			TurnDetection: &turnDetection{
				Type:              cfg.TurnDetection.Type,
				Threshold:         cfg.TurnDetection.Threshold,
				PrefixPaddingMs:   cfg.TurnDetection.PrefixPaddingMs,
				SilenceDurationMs: cfg.TurnDetection.SilenceDurationMs,
			},
			Tools: toOAITools(cfg.Tools),
		},
	}
	if cfg.InputTranscriptionModel != "" {
		msg.Session.InputAudioTranscription = &transcriptCfg{Model: cfg.InputTranscriptionModel}
	}
	return s.writeJSON(msg)
}

func (s *openaiSession) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.conn.Write(s.ctx, websocket.MessageText, b)
}

// ── SessionHandle implementation ─────────────────────────────────────────

func (s *openaiSession) SendAudio(chunk []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("realtimeapi: session closed")
	}
	encoded := base64.StdEncoding.EncodeToString(chunk)
	if err := s.writeJSON(appendAudioMessage{Type: "input_audio_buffer.append", Audio: encoded}); err != nil {
		return fmt.Errorf("realtimeapi: append audio: %w", err)
	}
	if err := s.writeJSON(commitAudioMessage{Type: "input_audio_buffer.commit"}); err != nil {
		return fmt.Errorf("realtimeapi: commit audio: %w", err)
	}
	return nil
}

func (s *openaiSession) Audio() <-chan []byte                    { return s.audioCh }
func (s *openaiSession) Transcripts() <-chan TranscriptEntry     { return s.transcripts }
func (s *openaiSession) OnToolCall(handler ToolCallHandler)      { s.mu.Lock(); s.toolHandler = handler; s.mu.Unlock() }

func (s *openaiSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

func (s *openaiSession) SetTools(tools []ToolDefinition) error {
	return s.writeJSON(sessionUpdateMessage{
		Type: "session.update",
		Session: sessionParams{
			Modalities: []string{"audio", "text"},
			Tools:      toOAITools(tools),
		},
	})
}

func (s *openaiSession) UpdateInstructions(instructions string) error {
	return s.writeJSON(sessionUpdateMessage{
		Type: "session.update",
		Session: sessionParams{
			Modalities:   []string{"audio", "text"},
			Instructions: instructions,
		},
	})
}

func (s *openaiSession) InjectTextContext(items []ContextItem) error {
	for _, item := range items {
		partType := "input_text"
		if item.Role == "assistant" {
			partType = "text"
		}
		msg := createConversationItemMessage{
			Type: "conversation.item.create",
			Item: conversationItem{
				Type: "message",
				Role: item.Role,
				Content: []conversationPart{
					{Type: partType, Text: item.Content},
				},
			},
		}
		if err := s.writeJSON(msg); err != nil {
			return fmt.Errorf("realtimeapi: inject context: %w", err)
		}
	}
	return nil
}

func (s *openaiSession) Interrupt() error {
	return s.writeJSON(responseCancelMessage{Type: "response.cancel"})
}

func (s *openaiSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		_ = s.conn.Close(websocket.StatusNormalClosure, "")
	})
	// The receive loop's next Read call fails once the connection is closed
	// and calls finish, which closes the audio/transcript channels exactly
	// once. Closing them here too would race with that single writer.
	return nil
}

// closeChannels closes the audio and transcript channels exactly once,
// regardless of whether the session ended via an explicit Close or a
// read-loop failure.
func (s *openaiSession) closeChannels() {
	s.chansOnce.Do(func() {
		close(s.audioCh)
		close(s.transcripts)
	})
}

// OnError registers a callback invoked for non-fatal protocol-level errors
// surfaced by the server (rate limits, warnings). Not part of the
// SessionHandle interface — callers that need it type-assert to
// *OpenAIProvider's concrete session, mirroring the teacher's internal use.
func (s *openaiSession) OnError(handler func(error)) {
	s.mu.Lock()
	s.errorHandler = handler
	s.mu.Unlock()
}

// ── inbound event handling ───────────────────────────────────────────────

type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *openaiSession) receiveLoop() {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			s.finish(fmt.Errorf("realtimeapi: read: %w", err))
			return
		}
		s.handleServerEvent(data)
	}
}

func (s *openaiSession) handleServerEvent(raw []byte) {
	evtType := gjson.GetBytes(raw, "type").String()
	switch evtType {
	case "response.audio.delta":
		delta := gjson.GetBytes(raw, "delta").String()
		pcm, err := base64.StdEncoding.DecodeString(delta)
		if err != nil {
			return
		}
		select {
		case s.audioCh <- pcm:
		case <-s.ctx.Done():
		}

	case "response.audio_transcript.delta":
		delta := gjson.GetBytes(raw, "delta").String()
		s.mu.Lock()
		s.currentTxText += delta
		s.mu.Unlock()
		s.emitTranscript("assistant", delta, true)

	case "response.audio_transcript.done":
		s.mu.Lock()
		text := s.currentTxText
		s.currentTxText = ""
		s.mu.Unlock()
		s.emitTranscript("assistant", text, false)

	case "conversation.item.input_audio_transcription.completed":
		text := gjson.GetBytes(raw, "transcript").String()
		s.emitTranscript("user", text, false)

	case "response.function_call_arguments.delta":
		id := gjson.GetBytes(raw, "call_id").String()
		name := gjson.GetBytes(raw, "name").String()
		delta := gjson.GetBytes(raw, "delta").String()
		s.mu.Lock()
		pc, ok := s.pending[id]
		if !ok {
			pc = &pendingToolCall{name: name}
			s.pending[id] = pc
		}
		pc.argumentsBuffer += delta
		s.mu.Unlock()

	case "response.function_call_arguments.done", "response.function_call.done":
		id := gjson.GetBytes(raw, "call_id").String()
		name := gjson.GetBytes(raw, "name").String()
		eventArgs := gjson.GetBytes(raw, "arguments").String()
		s.handleFunctionCall(id, name, eventArgs)

	case "error":
		var detail serverErrorDetail
		_ = json.Unmarshal([]byte(gjson.GetBytes(raw, "error").Raw), &detail)
		s.mu.Lock()
		handler := s.errorHandler
		s.mu.Unlock()
		if handler != nil {
			handler(fmt.Errorf("realtimeapi: server error %s: %s", detail.Code, detail.Message))
		}
	}
}

func (s *openaiSession) emitTranscript(speaker, text string, isDelta bool) {
	if text == "" {
		return
	}
	select {
	case s.transcripts <- TranscriptEntry{Speaker: speaker, Text: text, IsDelta: isDelta}:
	case <-s.ctx.Done():
	}
}

// handleFunctionCall finalises a PendingToolCall: per §4.3, if the done
// event carries no buffered arguments the event-embedded arguments are used
// (or "{}"). The handler is invoked, its result (or error) is wrapped in a
// function_call_output item, and a response.create follows to resume
// generation.
func (s *openaiSession) handleFunctionCall(id, name, eventArgs string) {
	s.mu.Lock()
	pc, buffered := s.pending[id]
	delete(s.pending, id)
	handler := s.toolHandler
	s.mu.Unlock()

	args := eventArgs
	if buffered && pc.argumentsBuffer != "" {
		args = pc.argumentsBuffer
		if name == "" {
			name = pc.name
		}
	}
	if args == "" {
		args = "{}"
	}

	var result string
	if handler == nil {
		result = `{"error":"no tool handler registered"}`
	} else {
		r, err := handler(name, args)
		if err != nil {
			b, _ := json.Marshal(map[string]string{"error": err.Error()})
			result = string(b)
		} else {
			result = r
		}
	}

	_ = s.writeJSON(createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type:   "function_call_output",
			CallID: id,
			Output: result,
		},
	})
	_ = s.writeJSON(responseCreateMessage{Type: "response.create"})
}

func (s *openaiSession) finish(err error) {
	s.mu.Lock()
	if s.errVal == nil {
		s.errVal = err
	}
	s.mu.Unlock()
	s.closeChannels()
}
