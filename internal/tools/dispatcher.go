// Package tools implements the model tool-call dispatcher (C4): a registry
// mapping tool name to handler, invoked by the bridge whenever the model
// session finalises a function call.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ivoxa/callbridge/pkg/realtimeapi"
)

// CallContext carries the per-call identifiers a handler needs to persist
// side effects or scope a retrieval query, without the dispatcher itself
// depending on the call manager or conversation store.
type CallContext struct {
	CallID     string
	BusinessID string
}

// Handler executes one tool invocation. args is the model's JSON-parsed
// argument object (already validated as syntactically valid JSON by the
// caller — see §4.3's PendingToolCall contract).
//
// A returned error is converted by the [Dispatcher] into a structured
// {"error": "<message>"} JSON result; the model session is never allowed to
// stall waiting for output.
type Handler func(ctx context.Context, call CallContext, args json.RawMessage) (any, error)

// Dispatcher is the registry described in §4.4. It is safe for concurrent
// use; handlers are expected to be independent and may run concurrently for
// different tool calls.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler for name.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
}

// Names returns the currently registered tool names, used to populate
// {available_tools: [...]} on an unknown-tool error.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for n := range d.handlers {
		out = append(out, n)
	}
	return out
}

// ToolDefinitions returns the model-facing schema for every tool currently
// registered, by filtering [BuiltinToolDefinitions] down to the dispatcher's
// Names(). A tool registered outside of RegisterBuiltins (e.g. an MCP-backed
// tool) is silently omitted — the caller is responsible for appending its
// own [realtimeapi.ToolDefinition] in that case.
func (d *Dispatcher) ToolDefinitions() []realtimeapi.ToolDefinition {
	registered := make(map[string]bool)
	for _, name := range d.Names() {
		registered[name] = true
	}
	var out []realtimeapi.ToolDefinition
	for _, def := range BuiltinToolDefinitions() {
		if registered[def.Name] {
			out = append(out, def)
		}
	}
	return out
}

// Dispatch looks up name, validates argsJSON as JSON, invokes the handler,
// and always returns a JSON-encoded string suitable for direct use as a
// function_call_output. It never returns a Go error to the caller — per
// §4.4 and §7, dispatch failures are themselves part of the result.
func (d *Dispatcher) Dispatch(ctx context.Context, call CallContext, name, argsJSON string) string {
	d.mu.RLock()
	handler, ok := d.handlers[name]
	d.mu.RUnlock()

	if !ok {
		return mustJSON(map[string]any{
			"error":           fmt.Sprintf("unknown tool %q", name),
			"available_tools": d.Names(),
		})
	}

	if !json.Valid([]byte(argsJSON)) {
		return mustJSON(map[string]string{"error": "invalid_json"})
	}

	result, err := d.invoke(ctx, handler, call, json.RawMessage(argsJSON))
	if err != nil {
		slog.Warn("tool handler failed", "tool", name, "call_id", call.CallID, "err", err)
		return mustJSON(map[string]string{"error": err.Error()})
	}
	return mustJSON(result)
}

// invoke calls handler, recovering a panic into an error so that one
// misbehaving handler can never take down the bridge or strand the model
// session without a function_call_output.
func (d *Dispatcher) invoke(ctx context.Context, handler Handler, call CallContext, args json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool handler panicked: %v", r)
		}
	}()
	return handler(ctx, call, args)
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{"error":"result encoding failed"}`
	}
	return string(b)
}
