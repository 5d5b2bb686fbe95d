package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/ivoxa/callbridge/internal/bridgeerr"
	"github.com/ivoxa/callbridge/internal/callstate"
	"github.com/ivoxa/callbridge/internal/conversation"
	"github.com/ivoxa/callbridge/internal/escalation"
	"github.com/ivoxa/callbridge/internal/retrieval"
)

// The types in this file back every durable dependency with an in-process
// map when Postgres is not configured, so a single-node deployment can
// still serve calls. None of them survive a restart.

// memoryLog is an in-process [conversation.Log].
type memoryLog struct {
	mu   sync.Mutex
	byID map[string][]conversation.Interaction
}

func newMemoryLog() *memoryLog {
	return &memoryLog{byID: make(map[string][]conversation.Interaction)}
}

func (m *memoryLog) Append(_ context.Context, in conversation.Interaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[in.CallID] = append(m.byID[in.CallID], in)
	return nil
}

func (m *memoryLog) Recent(_ context.Context, callID string, limit int) ([]conversation.Interaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.byID[callID]
	if limit <= 0 || limit >= len(all) {
		out := make([]conversation.Interaction, len(all))
		copy(out, all)
		return out, nil
	}
	out := make([]conversation.Interaction, limit)
	copy(out, all[len(all)-limit:])
	return out, nil
}

// memoryCallStore is an in-process [callstate.Store].
type memoryCallStore struct {
	mu    sync.Mutex
	bySid map[string]callstate.Call
}

func newMemoryCallStore() *memoryCallStore {
	return &memoryCallStore{bySid: make(map[string]callstate.Call)}
}

func (m *memoryCallStore) Create(_ context.Context, call callstate.Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bySid[call.CallSid]; exists {
		return fmt.Errorf("memory call store: call %q already exists", call.CallSid)
	}
	m.bySid[call.CallSid] = call
	return nil
}

func (m *memoryCallStore) Get(_ context.Context, callSid string) (callstate.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.bySid[callSid]
	if !ok {
		return callstate.Call{}, fmt.Errorf("memory call store: call %q: %w", callSid, bridgeerr.ErrNotFound)
	}
	return call, nil
}

func (m *memoryCallStore) Transition(_ context.Context, callSid string, event callstate.Event) (callstate.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.bySid[callSid]
	if !ok {
		return callstate.Call{}, fmt.Errorf("memory call store: call %q: %w", callSid, bridgeerr.ErrNotFound)
	}
	next, err := callstate.ApplyToCall(call, event)
	if err != nil {
		return callstate.Call{}, err
	}
	m.bySid[callSid] = next
	return next, nil
}

// memoryEscalationStore is an in-process [escalation.Store]. Agents
// registered against it never come from anywhere (there is no in-memory
// seed data), so FindAvailableAgent always reports none found; a deployment
// that wants human handoff to actually route needs Postgres configured.
type memoryEscalationStore struct {
	mu         sync.Mutex
	escalations map[string]escalation.Escalation
}

func newMemoryEscalationStore() *memoryEscalationStore {
	return &memoryEscalationStore{escalations: make(map[string]escalation.Escalation)}
}

func (m *memoryEscalationStore) CreateEscalation(_ context.Context, e escalation.Escalation) (escalation.Escalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations[e.ID] = e
	return e, nil
}

func (m *memoryEscalationStore) FindAvailableAgent(context.Context, []string, []string) (escalation.Agent, bool, error) {
	return escalation.Agent{}, false, nil
}

func (m *memoryEscalationStore) MarkAgentBusy(context.Context, string) error { return nil }

func (m *memoryEscalationStore) MarkAgentAvailable(context.Context, string) error { return nil }

func (m *memoryEscalationStore) CompleteEscalation(_ context.Context, escalationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.escalations[escalationID]; !ok {
		return fmt.Errorf("memory escalation store: escalation %q: %w", escalationID, bridgeerr.ErrNotFound)
	}
	delete(m.escalations, escalationID)
	return nil
}

// memoryVectorStore is an in-process [retrieval.VectorStore] fallback. It
// holds no documents, so every search returns empty: a deployment that
// wants knowledge-base answers instead of silence needs Postgres/pgvector
// configured.
type memoryVectorStore struct{}

func newMemoryVectorStore() *memoryVectorStore { return &memoryVectorStore{} }

func (memoryVectorStore) SearchSemantic(context.Context, string, []float32, int) ([]retrieval.Result, error) {
	return nil, nil
}

func (memoryVectorStore) SearchKeyword(context.Context, string, []string, int) ([]retrieval.Document, error) {
	return nil, nil
}
