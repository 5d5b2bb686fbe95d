// Package callmanager implements the call manager (C7): the process-wide
// registry that owns one [bridge.Bridge] per live call_sid, resolves each
// call's business/agent personality, and drives the call's persisted state
// machine (C8) alongside the bridge's lifecycle.
package callmanager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ivoxa/callbridge/internal/bridge"
	"github.com/ivoxa/callbridge/internal/bridgeerr"
	"github.com/ivoxa/callbridge/internal/callstate"
	"github.com/ivoxa/callbridge/internal/config"
	"github.com/ivoxa/callbridge/internal/conversation"
	"github.com/ivoxa/callbridge/internal/escalation"
	"github.com/ivoxa/callbridge/internal/observe"
	"github.com/ivoxa/callbridge/internal/tools"
	"github.com/ivoxa/callbridge/pkg/realtimeapi"
)

// Manager owns the call_sid -> Bridge registry and the resources needed to
// start new bridges: the model config defaults, the per-business overrides,
// the provider registry, the conversation store, and the tool dispatcher.
type Manager struct {
	cfg        config.ModelConfig
	businesses map[string]config.BusinessConfig
	registry   *config.Registry
	provider   realtimeapi.Provider
	store      *conversation.Store
	dispatcher *tools.Dispatcher
	calls      callstate.Store
	metrics    *observe.Metrics

	mu           sync.RWMutex
	bridges      map[string]*bridge.Bridge // call_sid -> bridge
	callBusiness map[string]string         // call.ID -> business_id, for escalation config resolution

	escalationCoord *escalation.Coordinator
	extraTools      []realtimeapi.ToolDefinition
}

// New constructs a Manager. provider is the already-resolved model-session
// provider (from registry.CreateModel(cfg.Model)) shared by every call.
func New(
	cfg config.ModelConfig,
	businesses []config.BusinessConfig,
	registry *config.Registry,
	provider realtimeapi.Provider,
	store *conversation.Store,
	dispatcher *tools.Dispatcher,
	calls callstate.Store,
) *Manager {
	byID := make(map[string]config.BusinessConfig, len(businesses))
	for _, b := range businesses {
		byID[b.BusinessID] = b
	}
	return &Manager{
		cfg:        cfg,
		businesses: byID,
		registry:   registry,
		provider:   provider,
		store:      store,
		dispatcher: dispatcher,
		calls:      calls,
		metrics:      observe.DefaultMetrics(),
		bridges:      make(map[string]*bridge.Bridge),
		callBusiness: make(map[string]string),
	}
}

// SetEscalationCoordinator wires an escalation coordinator into the
// manager and subscribes it to every caller turn persisted through the
// conversation store, so sentiment/keyword/complexity triggers (§4.9) are
// evaluated automatically without the bridge needing to know about C9.
func (m *Manager) SetEscalationCoordinator(coordinator *escalation.Coordinator) {
	m.escalationCoord = coordinator
	m.store.Subscribe(func(in conversation.Interaction) {
		if in.Speaker != "caller" {
			return
		}
		businessID, cfg, ok := m.escalationConfigForCall(in.CallID)
		if !ok {
			return
		}
		go func() {
			var transcript []string
			if history, err := m.store.History(context.Background(), in.CallID, 10); err == nil {
				for _, turn := range history {
					transcript = append(transcript, turn.Speaker+": "+turn.Text)
				}
			}
			if _, _, err := coordinator.EvaluateTurn(context.Background(), in.CallID, in.Text, cfg, transcript); err != nil {
				slog.Warn("callmanager: escalation evaluation failed", "call_id", in.CallID, "business_id", businessID, "err", err)
			}
		}()
	})
}

// EscalationCoordinator returns the coordinator wired in by
// SetEscalationCoordinator, or nil if none was configured.
func (m *Manager) EscalationCoordinator() *escalation.Coordinator {
	return m.escalationCoord
}

// SetExtraToolDefinitions appends defs to every call's tool list alongside
// the dispatcher's builtins. Used by the composition root to surface
// MCP-proxied tools (§4.4's registry can host either in-process handlers or
// a proxied MCP tool server) whose definitions live outside
// [tools.BuiltinToolDefinitions].
func (m *Manager) SetExtraToolDefinitions(defs []realtimeapi.ToolDefinition) {
	m.extraTools = defs
}

func (m *Manager) escalationConfigForCall(callID string) (businessID string, cfg config.EscalationConfig, ok bool) {
	m.mu.RLock()
	businessID, ok = m.callBusiness[callID]
	m.mu.RUnlock()
	if !ok {
		return "", config.EscalationConfig{}, false
	}
	return businessID, m.resolveBusiness(businessID).Escalation, true
}

// resolveBusiness returns the BusinessConfig for businessID, or the bare
// manager-level model defaults wrapped in a zero-value BusinessConfig if the
// business is not configured.
func (m *Manager) resolveBusiness(businessID string) config.BusinessConfig {
	if b, ok := m.businesses[businessID]; ok {
		return b
	}
	return config.BusinessConfig{BusinessID: businessID}
}

func (m *Manager) startConfig(biz config.BusinessConfig) bridge.StartConfig {
	voice := m.cfg.Voice
	if biz.Voice != "" {
		voice = biz.Voice
	}
	instructions := m.cfg.Instructions
	if biz.SystemPrompt != "" {
		instructions = biz.SystemPrompt
	}
	temperature := m.cfg.Temperature
	if biz.Temperature != 0 {
		temperature = biz.Temperature
	}
	allTools := append([]realtimeapi.ToolDefinition{}, m.dispatcher.ToolDefinitions()...)
	allTools = append(allTools, m.extraTools...)
	return bridge.StartConfig{
		Voice:                   voice,
		Instructions:            instructions,
		Temperature:             temperature,
		MaxResponseTokens:       m.cfg.MaxResponseTokens,
		InputTranscriptionModel: m.cfg.InputTranscriptionModel,
		Tools:                   allTools,
		VADThreshold:            m.cfg.VAD.Threshold,
		VADPrefixPaddingMs:      m.cfg.VAD.PrefixPaddingMs,
		VADSilenceDurationMs:    m.cfg.VAD.SilenceDurationMs,
	}
}

// StartCallBridge creates the Call row in StatusInitiated, resolves the
// business configuration, constructs a Bridge wired to sink, connects its
// model session, and registers it under callSid. Returns the new Bridge.
func (m *Manager) StartCallBridge(ctx context.Context, callSid, direction, fromNumber, toNumber, businessID string, sink bridge.TelephonySink) (*bridge.Bridge, error) {
	m.mu.Lock()
	if _, exists := m.bridges[callSid]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("callmanager: call %q already has an active bridge", callSid)
	}
	m.mu.Unlock()

	call := callstate.Call{
		ID:         uuid.NewString(),
		CallSid:    callSid,
		Direction:  direction,
		Status:     callstate.StatusInitiated,
		FromNumber: fromNumber,
		ToNumber:   toNumber,
		BusinessID: businessID,
		StartedAt:  time.Now(),
	}
	if err := m.calls.Create(ctx, call); err != nil {
		return nil, fmt.Errorf("callmanager: create call row: %w", err)
	}

	biz := m.resolveBusiness(businessID)
	b := bridge.New(call.ID, businessID, sink, m.store, m.dispatcher)
	if err := b.Start(ctx, m.provider, m.startConfig(biz)); err != nil {
		_, _ = m.calls.Transition(ctx, callSid, callstate.EventError)
		return nil, fmt.Errorf("callmanager: start bridge: %w", err)
	}

	if _, err := m.calls.Transition(ctx, callSid, callstate.EventAnswered); err != nil {
		_ = b.Stop()
		return nil, fmt.Errorf("callmanager: transition to in_progress: %w", err)
	}

	m.mu.Lock()
	m.bridges[callSid] = b
	m.callBusiness[call.ID] = businessID
	m.mu.Unlock()
	return b, nil
}

// carrierStatusEvents maps the status-callback webhook's CallStatus values
// to the C8 events they drive, per §4.8's carrier-webhook row. A value not
// present here (e.g. "queued") is not a status-webhook concern and is
// ignored.
var carrierStatusEvents = map[string]callstate.Event{
	"ringing":     callstate.EventRinging,
	"in-progress": callstate.EventAnswered,
	"answered":    callstate.EventAnswered,
	"completed":   callstate.EventCompleted,
	"failed":      callstate.EventFailed,
	"busy":        callstate.EventFailed,
	"no-answer":   callstate.EventFailed,
	"canceled":    callstate.EventFailed,
}

// HandleStatusCallback applies the C8 transition implied by the carrier's
// status-callback CallStatus value to callSid's persisted call row.
// Unrecognised or non-actionable statuses are a no-op, not an error.
func (m *Manager) HandleStatusCallback(ctx context.Context, callSid, carrierStatus string) error {
	event, ok := carrierStatusEvents[carrierStatus]
	if !ok {
		return nil
	}
	_, err := m.calls.Transition(ctx, callSid, event)
	if err != nil {
		return fmt.Errorf("callmanager: status callback %q: %w", carrierStatus, err)
	}
	return nil
}

// HandleMediaStreamAudio forwards one inbound µ-law frame to the bridge
// registered for callSid. Returns [bridgeerr.ErrNotFound] if no bridge is
// registered.
func (m *Manager) HandleMediaStreamAudio(callSid string, ulaw []byte) error {
	b, ok := m.GetBridge(callSid)
	if !ok {
		return fmt.Errorf("callmanager: call %q: %w", callSid, bridgeerr.ErrNotFound)
	}
	return b.HandleTelephonyAudio(ulaw)
}

// StopCallBridge stops and deregisters the bridge for callSid, and
// transitions the persisted call to StatusCompleted. A missing bridge is not
// an error — stop is idempotent at the call-manager level too.
func (m *Manager) StopCallBridge(ctx context.Context, callSid string) error {
	m.mu.Lock()
	b, ok := m.bridges[callSid]
	delete(m.bridges, callSid)
	if ok {
		delete(m.callBusiness, b.CallID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	stopErr := b.Stop()
	if _, err := m.calls.Transition(ctx, callSid, callstate.EventCompleted); err != nil {
		if stopErr != nil {
			return fmt.Errorf("callmanager: stop bridge: %w (and transition failed: %v)", stopErr, err)
		}
		return fmt.Errorf("callmanager: transition to completed: %w", err)
	}
	return stopErr
}

// GetBridge returns the registered bridge for callSid, if any.
func (m *Manager) GetBridge(callSid string) (*bridge.Bridge, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bridges[callSid]
	return b, ok
}

// IsCallActive reports whether callSid has a registered, live bridge.
func (m *Manager) IsCallActive(callSid string) bool {
	b, ok := m.GetBridge(callSid)
	return ok && b.IsActive()
}

// ActiveCallCount returns the number of bridges currently registered.
func (m *Manager) ActiveCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bridges)
}
