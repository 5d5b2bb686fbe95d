// Package bridge implements the per-call bridge (C6): the heart of the
// core, fusing the telephony media-stream leg (C2), the model-session
// client (C3), the tool dispatcher (C4), and the conversation store (C5)
// into one object per live call.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivoxa/callbridge/internal/conversation"
	"github.com/ivoxa/callbridge/internal/observe"
	"github.com/ivoxa/callbridge/internal/tools"
	"github.com/ivoxa/callbridge/pkg/codec"
	"github.com/ivoxa/callbridge/pkg/realtimeapi"
)

// Default server-VAD tuning per §4.6 and §6's session.update example.
const (
	DefaultVADThreshold         = 0.5
	DefaultVADPrefixPaddingMs   = 300
	DefaultVADSilenceDurationMs = 500
)

// TelephonySink is the outbound half of the telephony WebSocket owned by
// C2. Bridge writes encoded µ-law audio to it; it must never block for long
// (the caller is expected to apply its own bounded, drop-oldest queue).
type TelephonySink interface {
	SendAudioULaw(ulaw []byte) error
}

// StartConfig carries the per-call model-session parameters resolved by the
// call manager (C7) from business configuration and call metadata.
type StartConfig struct {
	Voice                   string
	Instructions            string
	Temperature             float64
	MaxResponseTokens       int
	InputTranscriptionModel string
	Tools                   []realtimeapi.ToolDefinition

	VADThreshold         float64
	VADPrefixPaddingMs   int
	VADSilenceDurationMs int
}

func (c StartConfig) sessionConfig() realtimeapi.SessionConfig {
	threshold := c.VADThreshold
	if threshold == 0 {
		threshold = DefaultVADThreshold
	}
	prefix := c.VADPrefixPaddingMs
	if prefix == 0 {
		prefix = DefaultVADPrefixPaddingMs
	}
	silence := c.VADSilenceDurationMs
	if silence == 0 {
		silence = DefaultVADSilenceDurationMs
	}
	return realtimeapi.SessionConfig{
		Voice:                   c.Voice,
		Instructions:            c.Instructions,
		Temperature:             c.Temperature,
		MaxResponseTokens:       c.MaxResponseTokens,
		Tools:                   c.Tools,
		InputTranscriptionModel: c.InputTranscriptionModel,
		TurnDetection: realtimeapi.TurnDetection{
			Type:              "server_vad",
			Threshold:         threshold,
			PrefixPaddingMs:   prefix,
			SilenceDurationMs: silence,
		},
	}
}

// Bridge is one live call's fused telephony/model session. Safe for
// concurrent use; stop() is idempotent.
type Bridge struct {
	CallID     string
	BusinessID string

	sink       TelephonySink
	store      *conversation.Store
	dispatcher *tools.Dispatcher
	metrics    *observe.Metrics

	mu          sync.Mutex
	session     realtimeapi.SessionHandle
	active      bool
	group       *errgroup.Group
	cancel      context.CancelFunc
	lastCallerAt time.Time

	stopOnce sync.Once
}

// New constructs a Bridge for one call. sink delivers outbound audio to the
// telephony leg; store and dispatcher are shared, process-wide instances.
func New(callID, businessID string, sink TelephonySink, store *conversation.Store, dispatcher *tools.Dispatcher) *Bridge {
	return &Bridge{
		CallID:     callID,
		BusinessID: businessID,
		sink:       sink,
		store:      store,
		dispatcher: dispatcher,
		metrics:    observe.DefaultMetrics(),
	}
}

// Start connects the model session via provider, sends the initial
// session.update, registers the tool-call handler, and begins the bridge's
// two background pumps (model audio -> telephony, model transcripts ->
// conversation store). Returns once the session is ready to accept audio.
func (b *Bridge) Start(ctx context.Context, provider realtimeapi.Provider, cfg StartConfig) error {
	session, err := provider.Connect(ctx, cfg.sessionConfig())
	if err != nil {
		return fmt.Errorf("bridge: connect model session: %w", err)
	}

	session.OnToolCall(func(name, args string) (string, error) {
		call := tools.CallContext{CallID: b.CallID, BusinessID: b.BusinessID}
		return b.dispatcher.Dispatch(context.Background(), call, name, args), nil
	})

	runCtx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(runCtx)

	b.mu.Lock()
	b.session = session
	b.cancel = cancel
	b.group = group
	b.active = true
	b.mu.Unlock()

	group.Go(func() error { return b.pumpAudio(gctx, session) })
	group.Go(func() error { return b.pumpTranscripts(gctx, session) })

	b.metrics.ActiveCalls.Add(context.Background(), 1)
	return nil
}

// HandleTelephonyAudio decodes an inbound µ-law frame, upsamples it to the
// model's 24 kHz PCM16 input format, and forwards it. No-op if the bridge is
// not active.
func (b *Bridge) HandleTelephonyAudio(ulaw []byte) error {
	b.mu.Lock()
	active, session := b.active, b.session
	if active {
		b.lastCallerAt = time.Now()
	}
	b.mu.Unlock()
	if !active {
		return nil
	}

	pcm8k := codec.DecodeUlaw(ulaw)
	pcm24k := codec.UpsampleX3(pcm8k)
	if err := session.SendAudio(pcm24k); err != nil {
		return fmt.Errorf("bridge: send audio: %w", err)
	}
	return nil
}

// pumpAudio downsamples and encodes every model audio delta and forwards it
// to the telephony sink, until the session's audio channel closes.
func (b *Bridge) pumpAudio(ctx context.Context, session realtimeapi.SessionHandle) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case pcm24k, ok := <-session.Audio():
			if !ok {
				return nil
			}
			pcm8k := codec.DownsampleDiv3(pcm24k)
			ulaw := codec.EncodeUlaw(pcm8k)
			if err := b.sink.SendAudioULaw(ulaw); err != nil {
				slog.Warn("bridge: telephony sink write failed", "call_id", b.CallID, "err", err)
			}
		}
	}
}

// pumpTranscripts persists only final (non-delta) transcript entries, per
// the spec's resolved "final only" persistence choice (design note (b)).
func (b *Bridge) pumpTranscripts(ctx context.Context, session realtimeapi.SessionHandle) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-session.Transcripts():
			if !ok {
				return nil
			}
			if entry.IsDelta {
				continue
			}
			b.onFinalTranscript(ctx, entry)
		}
	}
}

func (b *Bridge) onFinalTranscript(ctx context.Context, entry realtimeapi.TranscriptEntry) {
	speaker := "model"
	if entry.Speaker == "user" {
		speaker = "caller"
	}
	if err := b.store.AddInteraction(ctx, b.CallID, speaker, entry.Text, "", nil); err != nil {
		slog.Warn("bridge: persist interaction failed", "call_id", b.CallID, "err", err)
		return
	}
	if speaker == "model" {
		b.mu.Lock()
		since := b.lastCallerAt
		b.mu.Unlock()
		if !since.IsZero() {
			b.metrics.BridgeTurnDuration.Record(ctx, time.Since(since).Seconds())
		}
	}
}

// SendText injects a text message into the model session outside of the
// normal audio turn, for operator intervention or tests.
func (b *Bridge) SendText(text string) error {
	b.mu.Lock()
	session, active := b.session, b.active
	b.mu.Unlock()
	if !active {
		return fmt.Errorf("bridge: not active")
	}
	return session.InjectTextContext([]realtimeapi.ContextItem{{Role: "user", Content: text}})
}

// Interrupt aborts the model's in-flight response on caller barge-in.
func (b *Bridge) Interrupt() error {
	b.mu.Lock()
	session, active := b.session, b.active
	b.mu.Unlock()
	if !active {
		return nil
	}
	return session.Interrupt()
}

// IsActive reports whether the bridge currently has a live model session.
func (b *Bridge) IsActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Stop terminates the model session, cancels the bridge's background pumps,
// and releases resources. Idempotent — a second call is a no-op.
func (b *Bridge) Stop() error {
	var stopErr error
	b.stopOnce.Do(func() {
		b.mu.Lock()
		session, cancel, group := b.session, b.cancel, b.group
		b.active = false
		b.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if session != nil {
			stopErr = session.Close()
		}
		if group != nil {
			_ = group.Wait()
		}
		b.metrics.ActiveCalls.Add(context.Background(), -1)
	})
	return stopErr
}
