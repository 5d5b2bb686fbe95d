// Package media implements the Media-Stream Endpoint (C2): one WebSocket per
// call carrying the carrier's JSON event protocol (start/media/stop/mark),
// the TwiML bootstrap document handed back from /voice, and the bounded
// drop-oldest queues that keep the bridge's audio path non-blocking in both
// directions.
package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ivoxa/callbridge/internal/bridge"
)

const defaultMediaQueueCapacity = 10

// CallStarter is the call manager's contract as seen by C2. Declared here
// rather than imported so the media package has no compile-time dependency
// on callmanager internals.
type CallStarter interface {
	StartCallBridge(ctx context.Context, callSid, direction, fromNumber, toNumber, businessID string, sink bridge.TelephonySink) (*bridge.Bridge, error)
	HandleMediaStreamAudio(callSid string, ulaw []byte) error
	StopCallBridge(ctx context.Context, callSid string) error
}

// startEvent is the carrier's `start` event payload.
type startEvent struct {
	Event string `json:"event"`
	Start struct {
		CallSid          string            `json:"callSid"`
		StreamSid        string            `json:"streamSid"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start"`
}

// mediaEvent is the carrier's `media` event payload.
type mediaEvent struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// stopEvent is the carrier's `stop` event payload.
type stopEvent struct {
	Event string `json:"event"`
	Stop  struct {
		CallSid string `json:"callSid"`
	} `json:"stop"`
}

// outboundMediaFrame is the shape Bridge output is wrapped in before being
// written back to the carrier, per §6's "Outbound frames" contract.
type outboundMediaFrame struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// Handler upgrades one HTTP request per call into the carrier's Media
// Streams WebSocket and bridges it to the call manager.
type Handler struct {
	manager       CallStarter
	queueCapacity int
}

// NewHandler constructs a Handler. queueCapacity bounds each direction's
// drop-oldest frame queue; zero uses defaultMediaQueueCapacity
// (approximately 200ms of 20ms frames, per §5).
func NewHandler(manager CallStarter, queueCapacity int) *Handler {
	return &Handler{manager: manager, queueCapacity: queueCapacity}
}

// ServeHTTP implements http.Handler, accepting the carrier's WebSocket
// upgrade and running the per-call event loop until the socket closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("media: websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "media: handler exit")

	sess := newSession(r.Context(), conn, h.manager, h.queueCapacity)
	sess.run()
}

// session is the per-connection state for one call's media stream.
type session struct {
	ctx     context.Context
	conn    *websocket.Conn
	manager CallStarter

	outbound  *frameQueue
	streamSid string

	mu      sync.Mutex
	callSid string
	started bool
}

func newSession(ctx context.Context, conn *websocket.Conn, manager CallStarter, queueCapacity int) *session {
	return &session{
		ctx:      ctx,
		conn:     conn,
		manager:  manager,
		outbound: newFrameQueue(queueCapacity),
	}
}

// SendAudioULaw implements [bridge.TelephonySink]. It never blocks for long:
// frames are pushed onto a bounded drop-oldest queue drained by a dedicated
// writer goroutine, per §4.2's "never blocks on I/O" requirement.
func (s *session) SendAudioULaw(ulaw []byte) error {
	s.outbound.push(ulaw)
	return nil
}

func (s *session) run() {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop()
	}()

	s.readLoop()

	s.outbound.close()
	<-writerDone

	s.mu.Lock()
	callSid, started := s.callSid, s.started
	s.mu.Unlock()
	if started {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.manager.StopCallBridge(stopCtx, callSid); err != nil {
			slog.Warn("media: stop call bridge failed", "call_sid", callSid, "err", err)
		}
	}
}

func (s *session) writeLoop() {
	for {
		frame, ok := s.outbound.pop()
		if !ok {
			return
		}
		out := outboundMediaFrame{Event: "media", StreamSid: s.streamSid}
		out.Media.Payload = base64.StdEncoding.EncodeToString(frame)
		b, err := json.Marshal(out)
		if err != nil {
			continue
		}
		if err := s.conn.Write(s.ctx, websocket.MessageText, b); err != nil {
			slog.Warn("media: write failed", "call_sid", s.callSid, "err", err)
			return
		}
	}
}

func (s *session) readLoop() {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			return
		}
		var envelope struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			slog.Warn("media: malformed frame", "err", err)
			continue
		}

		switch envelope.Event {
		case "start":
			s.handleStart(data)
		case "media":
			s.handleMedia(data)
		case "stop":
			return
		case "mark":
			// Acknowledgement markers carry no actionable data; ignored per §4.2.
		default:
			// Unknown events are ignored safely per §4.2.
		}
	}
}

func (s *session) handleStart(data []byte) {
	var evt startEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		slog.Warn("media: malformed start event", "err", err)
		return
	}
	if evt.Start.CallSid == "" || evt.Start.StreamSid == "" {
		// Per §9's boundary behaviour: bridge stays unregistered, subsequent
		// media events are silently ignored.
		return
	}

	params := evt.Start.CustomParameters
	direction := params["direction"]
	if direction == "" {
		direction = "inbound"
	}

	s.mu.Lock()
	s.callSid = evt.Start.CallSid
	s.streamSid = evt.Start.StreamSid
	s.mu.Unlock()

	_, err := s.manager.StartCallBridge(s.ctx, evt.Start.CallSid, direction, params["from"], params["to"], params["businessId"], s)
	if err != nil {
		slog.Warn("media: start call bridge failed", "call_sid", evt.Start.CallSid, "err", err)
		return
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
}

func (s *session) handleMedia(data []byte) {
	s.mu.Lock()
	callSid, started := s.callSid, s.started
	s.mu.Unlock()
	if !started {
		return
	}

	var evt mediaEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		slog.Warn("media: malformed media event", "err", err)
		return
	}
	ulaw, err := base64.StdEncoding.DecodeString(evt.Media.Payload)
	if err != nil {
		slog.Warn("media: invalid base64 payload", "call_sid", callSid, "err", err)
		return
	}
	if err := s.manager.HandleMediaStreamAudio(callSid, ulaw); err != nil {
		slog.Warn("media: forward audio failed", "call_sid", callSid, "err", err)
	}
}
