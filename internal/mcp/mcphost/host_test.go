package mcphost

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ivoxa/callbridge/pkg/types"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
//
// These tests never dial a real MCP server. Instead they register a toolEntry
// directly against a fake server name and override h.callTool so ExecuteTool
// and Calibrate exercise the same tier/latency bookkeeping a real proxied call
// would, without needing a live mcpsdk.ClientSession.
// ──────────────────────────────────────────────────────────────────────────────

// registerFakeTool inserts a tool directly into h's registry under a fake
// server connection, bypassing RegisterServer's discovery handshake.
func registerFakeTool(h *Host, name string, p50Ms int64) {
	const serverName = "fake-server"

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.servers[serverName]; !ok {
		h.servers[serverName] = serverConn{}
	}
	h.tools[name] = toolEntry{
		def: types.ToolDefinition{
			Name:                name,
			Description:         "fake tool for testing",
			EstimatedDurationMs: int(p50Ms),
		},
		serverName:    serverName,
		declaredP50Ms: p50Ms,
		tier:          tierFromDeclaredP50(p50Ms),
		measurements:  newLatencyWindow(defaultWindowSize),
	}
}

// fakeCaller builds a [toolCaller] that dispatches by tool name, so a single
// Host can host several fake tools with different behaviors in one test.
func fakeCaller(behaviors map[string]func() (string, bool, error)) toolCaller {
	return func(_ context.Context, _ *mcpsdk.ClientSession, toolName string, _ map[string]any) (string, bool, error) {
		fn, ok := behaviors[toolName]
		if !ok {
			return "", false, fmt.Errorf("fakeCaller: no behavior registered for %q", toolName)
		}
		return fn()
	}
}

// echoBehavior returns the given args back as the result content.
func echoBehavior(content string) func() (string, bool, error) {
	return func() (string, bool, error) { return content, false, nil }
}

// failBehavior returns a transport-level error.
func failBehavior(msg string) func() (string, bool, error) {
	return func() (string, bool, error) { return "", false, fmt.Errorf("%s", msg) }
}

// toolNamed returns the first ToolDefinition with the given name, or nil.
func toolNamed(tools []types.ToolDefinition, name string) *types.ToolDefinition {
	for i := range tools {
		if tools[i].Name == name {
			return &tools[i]
		}
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────────────────────────────────

// TestRegisterFakeTool verifies that a registered tool appears in
// AvailableTools at the correct tier.
func TestRegisterFakeTool(t *testing.T) {
	t.Parallel()
	h := New()
	defer h.Close()

	registerFakeTool(h, "lookup_customer", 100) // 100ms → FAST

	got := h.AvailableTools(types.BudgetDeep)
	if toolNamed(got, "lookup_customer") == nil {
		t.Errorf("tool %q not found in AvailableTools", "lookup_customer")
	}
}

// TestBudgetFiltering verifies that AvailableTools filters by tier correctly.
func TestBudgetFiltering(t *testing.T) {
	t.Parallel()
	h := New()
	defer h.Close()

	// lookup_customer: p50=100  → FAST
	// check_appointment_availability: p50=800  → STANDARD
	// generate_callback_summary: p50=2000 → DEEP
	registerFakeTool(h, "lookup_customer", 100)
	registerFakeTool(h, "check_appointment_availability", 800)
	registerFakeTool(h, "generate_callback_summary", 2000)

	// BudgetFast: only FAST tools.
	fastTools := h.AvailableTools(types.BudgetFast)
	assertContains(t, fastTools, "lookup_customer")
	assertNotContains(t, fastTools, "check_appointment_availability")
	assertNotContains(t, fastTools, "generate_callback_summary")

	// BudgetStandard: FAST + STANDARD.
	stdTools := h.AvailableTools(types.BudgetStandard)
	assertContains(t, stdTools, "lookup_customer")
	assertContains(t, stdTools, "check_appointment_availability")
	assertNotContains(t, stdTools, "generate_callback_summary")

	// BudgetDeep: all tools.
	deepTools := h.AvailableTools(types.BudgetDeep)
	assertContains(t, deepTools, "lookup_customer")
	assertContains(t, deepTools, "check_appointment_availability")
	assertContains(t, deepTools, "generate_callback_summary")
}

// TestExecuteTool verifies that ExecuteTool calls through to the tool caller
// and returns its result.
func TestExecuteTool(t *testing.T) {
	t.Parallel()
	h := New()
	defer h.Close()

	registerFakeTool(h, "lookup_customer", 50)
	h.callTool = fakeCaller(map[string]func() (string, bool, error){
		"lookup_customer": echoBehavior(`{"name":"Jane Doe"}`),
	})

	result, err := h.ExecuteTool(context.Background(), "lookup_customer", `{"phone":"+15551234567"}`)
	if err != nil {
		t.Fatalf("ExecuteTool: %v", err)
	}
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result.Content != `{"name":"Jane Doe"}` {
		t.Errorf("Content = %q, want %q", result.Content, `{"name":"Jane Doe"}`)
	}
	if result.IsError {
		t.Error("IsError = true, want false")
	}
}

// TestExecuteToolNotFound verifies that calling an unknown tool returns an error.
func TestExecuteToolNotFound(t *testing.T) {
	t.Parallel()
	h := New()
	defer h.Close()

	_, err := h.ExecuteTool(context.Background(), "nonexistent", "{}")
	if err == nil {
		t.Error("expected error for unknown tool, got nil")
	}
}

// TestExecuteToolTransportError verifies that a caller error surfaces as a Go error.
func TestExecuteToolTransportError(t *testing.T) {
	t.Parallel()
	h := New()
	defer h.Close()

	registerFakeTool(h, "get_order_status", 50)
	h.callTool = fakeCaller(map[string]func() (string, bool, error){
		"get_order_status": failBehavior("upstream timeout"),
	})

	result, err := h.ExecuteTool(context.Background(), "get_order_status", "{}")
	if err == nil {
		t.Fatal("expected transport error, got nil")
	}
	if result != nil {
		t.Errorf("expected nil result on transport error, got %+v", result)
	}
}

// TestCalibration verifies that Calibrate probes each tool and records
// measurements.
func TestCalibration(t *testing.T) {
	t.Parallel()
	h := New()
	defer h.Close()

	registerFakeTool(h, "lookup_customer", 100)
	registerFakeTool(h, "schedule_callback", 200)
	h.callTool = fakeCaller(map[string]func() (string, bool, error){
		"lookup_customer":   echoBehavior("ok"),
		"schedule_callback": echoBehavior("ok"),
	})

	if err := h.Calibrate(context.Background()); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	// After calibration the measurements count should be ≥ 1 for each tool.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, name := range []string{"lookup_customer", "schedule_callback"} {
		entry, ok := h.tools[name]
		if !ok {
			t.Errorf("tool %q missing after calibration", name)
			continue
		}
		if c := entry.measurements.Count(); c == 0 {
			t.Errorf("tool %q has no measurements after calibration", name)
		}
	}
}

// TestCalibrationContextCancel verifies that Calibrate respects context cancellation.
func TestCalibrationContextCancel(t *testing.T) {
	t.Parallel()
	h := New()
	defer h.Close()

	registerFakeTool(h, "check_appointment_availability", 500)
	h.callTool = fakeCaller(map[string]func() (string, bool, error){
		"check_appointment_availability": func() (string, bool, error) {
			time.Sleep(500 * time.Millisecond)
			return "ok", false, nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// Calibrate may return ctx.Err() or nil (if the goroutine finishes before
	// the cancel propagates). We just ensure it doesn't hang.
	done := make(chan error, 1)
	go func() { done <- h.Calibrate(ctx) }()

	select {
	case <-done:
		// OK — either completed or was cancelled.
	case <-time.After(2 * time.Second):
		t.Fatal("Calibrate did not respect context cancellation within 2s")
	}
}

// TestHealthDemotion verifies that a tool that fails frequently is demoted
// to a higher tier.
func TestHealthDemotion(t *testing.T) {
	t.Parallel()
	h := New()
	defer h.Close()

	registerFakeTool(h, "flaky_crm_lookup", 100) // would normally be FAST

	var callN atomic.Int64
	h.callTool = fakeCaller(map[string]func() (string, bool, error){
		"flaky_crm_lookup": func() (string, bool, error) {
			n := callN.Add(1)
			if n%2 == 0 {
				return "", false, fmt.Errorf("fail")
			}
			return "ok", false, nil
		},
	})

	// Execute enough times to push error rate above 30 %.
	ctx := context.Background()
	for range 20 {
		h.ExecuteTool(ctx, "flaky_crm_lookup", "{}") //nolint:errcheck
	}

	h.mu.RLock()
	entry := h.tools["flaky_crm_lookup"]
	h.mu.RUnlock()

	if !entry.degraded {
		t.Error("tool should be marked degraded after 50% error rate")
	}
	// Declared tier was FAST; after demotion it should be at least STANDARD.
	if entry.tier <= types.BudgetFast {
		t.Errorf("tier after demotion = %v, want > FAST", entry.tier)
	}
}

// TestAvailableToolsSorting verifies that tools are sorted by latency ascending.
func TestAvailableToolsSorting(t *testing.T) {
	t.Parallel()
	h := New()
	defer h.Close()

	// Register in reverse latency order.
	registerFakeTool(h, "generate_callback_summary", 400)      // 400ms
	registerFakeTool(h, "lookup_customer", 50)                 // 50ms
	registerFakeTool(h, "check_appointment_availability", 200) // 200ms

	tools := h.AvailableTools(types.BudgetDeep)
	if len(tools) < 3 {
		t.Fatalf("expected at least 3 tools, got %d", len(tools))
	}

	// All three are in the FAST tier (≤ 500ms), so they should be sorted.
	latencies := make([]int, len(tools))
	for i, td := range tools {
		latencies[i] = td.EstimatedDurationMs
	}
	for i := 1; i < len(latencies); i++ {
		if latencies[i] < latencies[i-1] {
			t.Errorf("tools not sorted: latencies[%d]=%d < latencies[%d]=%d",
				i, latencies[i], i-1, latencies[i-1])
		}
	}
}

// TestClose verifies that Close empties the tool and server registries.
func TestClose(t *testing.T) {
	t.Parallel()
	h := New()

	registerFakeTool(h, "lookup_customer", 100)

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	h.mu.RLock()
	toolCount := len(h.tools)
	serverCount := len(h.servers)
	h.mu.RUnlock()

	if toolCount != 0 {
		t.Errorf("tools after Close: %d, want 0", toolCount)
	}
	if serverCount != 0 {
		t.Errorf("servers after Close: %d, want 0", serverCount)
	}
}

// TestConcurrentRegisterAndAvailable verifies no data races under concurrent
// registration and tool listing.
func TestConcurrentRegisterAndAvailable(t *testing.T) {
	t.Parallel()
	h := New()
	defer h.Close()

	done := make(chan struct{})
	go func() {
		for i := range 50 {
			name := fmt.Sprintf("tool-%d", i)
			registerFakeTool(h, name, 100)
		}
		close(done)
	}()

	for range 50 {
		h.AvailableTools(types.BudgetDeep)
	}
	<-done
}

// ──────────────────────────────────────────────────────────────────────────────
// Assertion helpers
// ──────────────────────────────────────────────────────────────────────────────

func assertContains(t *testing.T, tools []types.ToolDefinition, name string) {
	t.Helper()
	if toolNamed(tools, name) == nil {
		t.Errorf("expected tool %q to be present, but it was not", name)
	}
}

func assertNotContains(t *testing.T, tools []types.ToolDefinition, name string) {
	t.Helper()
	if toolNamed(tools, name) != nil {
		t.Errorf("expected tool %q to be absent, but it was present", name)
	}
}
