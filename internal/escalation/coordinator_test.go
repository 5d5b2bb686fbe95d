package escalation_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ivoxa/callbridge/internal/config"
	"github.com/ivoxa/callbridge/internal/escalation"
	"github.com/ivoxa/callbridge/pkg/provider/llm"
	"github.com/ivoxa/callbridge/pkg/types"
)

type fakeStore struct {
	mu          sync.Mutex
	escalations []escalation.Escalation
	agent       *escalation.Agent
	busyAgentID string
}

func (f *fakeStore) CreateEscalation(_ context.Context, e escalation.Escalation) (escalation.Escalation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.escalations = append(f.escalations, e)
	return e, nil
}

func (f *fakeStore) FindAvailableAgent(_ context.Context, _, _ []string) (escalation.Agent, bool, error) {
	if f.agent == nil {
		return escalation.Agent{}, false, nil
	}
	return *f.agent, true, nil
}

func (f *fakeStore) MarkAgentBusy(_ context.Context, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busyAgentID = agentID
	return nil
}

func (f *fakeStore) MarkAgentAvailable(_ context.Context, _ string) error { return nil }
func (f *fakeStore) CompleteEscalation(_ context.Context, _ string) error { return nil }

type fakeSummarizer struct {
	response string
	err      error
}

func (f *fakeSummarizer) StreamCompletion(context.Context, llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSummarizer) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.response}, nil
}

func (f *fakeSummarizer) CountTokens([]types.Message) (int, error) { return 0, nil }
func (f *fakeSummarizer) Capabilities() types.ModelCapabilities    { return types.ModelCapabilities{} }

func TestCoordinator_EscalateAssignsAvailableAgent(t *testing.T) {
	t.Parallel()
	store := &fakeStore{agent: &escalation.Agent{ID: "agent-1", IsAvailable: true, IsActive: true}}
	c := escalation.New(store, &fakeSummarizer{response: "Caller is upset about a billing issue."}, nil)

	id, err := c.Escalate(context.Background(), "call-1", "complex_issue", "high")
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty escalation id")
	}
	if store.busyAgentID != "agent-1" {
		t.Errorf("expected agent-1 marked busy, got %q", store.busyAgentID)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.escalations) != 1 {
		t.Fatalf("expected one escalation row, got %d", len(store.escalations))
	}
	esc := store.escalations[0]
	if esc.Status != "pending" || esc.TriggerType != "complex_issue" {
		t.Errorf("unexpected escalation row: %+v", esc)
	}
	if esc.ConversationSummary == nil || *esc.ConversationSummary != "Caller is upset about a billing issue." {
		t.Errorf("expected summarizer output persisted, got %+v", esc.ConversationSummary)
	}
}

func TestCoordinator_EscalateWithoutAvailableAgent(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	c := escalation.New(store, nil, nil)

	id, err := c.Escalate(context.Background(), "call-1", "customer_request", "normal")
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty escalation id even without an available agent")
	}
}

func TestCoordinator_SummarizerFailureFallsBackToTruncation(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	c := escalation.New(store, &fakeSummarizer{err: errors.New("boom")}, nil)

	transcript := []string{"caller: my order never arrived", "model: let me check that for you"}
	_, escalated, err := c.EvaluateTurn(context.Background(), "call-1", "i hate this, never got my order, this is terrible", config.EscalationConfig{}, transcript)
	if err != nil {
		t.Fatalf("EvaluateTurn: %v", err)
	}
	if !escalated {
		t.Fatal("expected the strongly negative turn to trigger an escalation")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.escalations) != 1 {
		t.Fatalf("expected an escalation to be created, got %d", len(store.escalations))
	}
	summary := store.escalations[0].ConversationSummary
	if summary == nil || *summary == "" {
		t.Fatal("expected a fallback summary even when the LLM call fails")
	}
}

func TestCoordinator_EvaluateTurnNoTriggerDoesNotEscalate(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	c := escalation.New(store, nil, nil)

	id, escalated, err := c.EvaluateTurn(context.Background(), "call-1", "Thanks, that answers my question!", config.EscalationConfig{}, nil)
	if err != nil {
		t.Fatalf("EvaluateTurn: %v", err)
	}
	if escalated || id != "" {
		t.Fatalf("expected no escalation, got escalated=%v id=%q", escalated, id)
	}
}

func TestCoordinator_ConfigResolverUsedForToolInitiatedEscalation(t *testing.T) {
	t.Parallel()
	store := &fakeStore{agent: &escalation.Agent{ID: "agent-9", IsAvailable: true, IsActive: true}}
	called := false
	resolver := func(callID string) config.EscalationConfig {
		called = true
		if callID != "call-42" {
			t.Errorf("resolver called with callID = %q, want call-42", callID)
		}
		return config.EscalationConfig{Departments: []string{"billing"}}
	}
	c := escalation.New(store, nil, resolver)

	if _, err := c.Escalate(context.Background(), "call-42", "customer_request", "normal"); err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if !called {
		t.Error("expected ConfigResolver to be invoked")
	}
}
