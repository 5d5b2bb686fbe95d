// Package escalation implements the escalation coordinator (C9): trigger
// evaluation against the latest caller turn, human-agent lookup and
// assignment, and conversation-summary generation backing a human handoff.
package escalation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ivoxa/callbridge/internal/config"
	"github.com/ivoxa/callbridge/internal/observe"
	"github.com/ivoxa/callbridge/internal/resilience"
	"github.com/ivoxa/callbridge/pkg/provider/llm"
	"github.com/ivoxa/callbridge/pkg/types"
)

// Agent is a human agent row as described by §6's human_agents table.
type Agent struct {
	ID          string
	Name        string
	Email       string
	IsAvailable bool
	IsActive    bool
	Skills      []string
	Departments []string
	LastActiveAt *time.Time
}

// Escalation is a persisted handoff request, per §6's escalations table.
type Escalation struct {
	ID                  string
	CallID              string
	Status              string // "pending" on creation, "completed" after CompleteEscalation
	TriggerType         string
	TriggerDetails      map[string]any
	AssignedAgentID     *string
	ConversationSummary *string
	ContextData         map[string]any
	RequestedAt         time.Time
	AcceptedAt          *time.Time
	CompletedAt         *time.Time
}

// Store persists escalations and human agents. A Postgres implementation
// lives in the postgres subpackage.
type Store interface {
	CreateEscalation(ctx context.Context, e Escalation) (Escalation, error)
	FindAvailableAgent(ctx context.Context, departments, skills []string) (Agent, bool, error)
	MarkAgentBusy(ctx context.Context, agentID string) error
	MarkAgentAvailable(ctx context.Context, agentID string) error
	CompleteEscalation(ctx context.Context, escalationID string) error
}

// ConfigResolver looks up the escalation policy for a call, keyed by the
// call's internal ID, for the tool-initiated path (§4.4's escalate_to_human)
// which does not carry a business context of its own.
type ConfigResolver func(callID string) config.EscalationConfig

// Coordinator implements C9. Summarizer may be nil, in which case every
// escalation falls back to the deterministic truncation summary.
type Coordinator struct {
	store         Store
	summarizer    llm.Provider
	breaker       *resilience.CircuitBreaker
	metrics       *observe.Metrics
	resolveConfig ConfigResolver
}

// New constructs a Coordinator. resolveConfig may be nil, in which case the
// tool-initiated Escalate path uses a zero-value EscalationConfig (any
// available agent, no department/skill filter).
func New(store Store, summarizer llm.Provider, resolveConfig ConfigResolver) *Coordinator {
	return &Coordinator{
		store:      store,
		summarizer: summarizer,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "escalation-summarizer",
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
			HalfOpenMax:  1,
		}),
		metrics:       observe.DefaultMetrics(),
		resolveConfig: resolveConfig,
	}
}

// Escalate implements the [tools.Escalator] contract used by the model's
// escalate_to_human tool call.
func (c *Coordinator) Escalate(ctx context.Context, callID, reason, priority string) (string, error) {
	cfg := config.EscalationConfig{}
	if c.resolveConfig != nil {
		cfg = c.resolveConfig(callID)
	}
	details := map[string]any{"priority": priority, "source": "tool_call"}
	return c.escalate(ctx, callID, reason, cfg, details, nil)
}

// EvaluateTurn runs [CheckTriggers] against latestText and, if a trigger
// fires, escalates automatically. Returns escalated=false with a zero
// escalationID when no trigger fires.
func (c *Coordinator) EvaluateTurn(ctx context.Context, callID, latestText string, cfg config.EscalationConfig, transcript []string) (escalationID string, escalated bool, err error) {
	triggered, triggerType, details := CheckTriggers(latestText, cfg)
	if !triggered {
		return "", false, nil
	}
	id, err := c.escalate(ctx, callID, triggerType, cfg, details, transcript)
	return id, err == nil, err
}

func (c *Coordinator) escalate(ctx context.Context, callID, triggerType string, cfg config.EscalationConfig, details map[string]any, transcript []string) (string, error) {
	agent, found, err := c.store.FindAvailableAgent(ctx, cfg.Departments, cfg.Skills)
	if err == nil && !found && (len(cfg.Departments) > 0 || len(cfg.Skills) > 0) {
		agent, found, err = c.store.FindAvailableAgent(ctx, nil, nil)
	}
	if err != nil {
		return "", fmt.Errorf("escalation: find agent: %w", err)
	}

	summary := c.summarize(ctx, transcript)

	esc := Escalation{
		ID:                  uuid.NewString(),
		CallID:              callID,
		Status:              "pending",
		TriggerType:         triggerType,
		TriggerDetails:      details,
		ConversationSummary: &summary,
		RequestedAt:         time.Now(),
	}
	if found {
		esc.AssignedAgentID = &agent.ID
	}

	created, err := c.store.CreateEscalation(ctx, esc)
	if err != nil {
		return "", fmt.Errorf("escalation: create: %w", err)
	}

	if found {
		if err := c.store.MarkAgentBusy(ctx, agent.ID); err != nil {
			return created.ID, fmt.Errorf("escalation: mark agent busy: %w", err)
		}
	}

	c.metrics.RecordEscalation(ctx, triggerType)
	return created.ID, nil
}

// Complete releases the escalation's assigned agent (marking it available
// and stamping LastActiveAt) and marks the escalation completed.
func (c *Coordinator) Complete(ctx context.Context, escalationID, agentID string) error {
	if agentID != "" {
		if err := c.store.MarkAgentAvailable(ctx, agentID); err != nil {
			return fmt.Errorf("escalation: mark agent available: %w", err)
		}
	}
	if err := c.store.CompleteEscalation(ctx, escalationID); err != nil {
		return fmt.Errorf("escalation: complete: %w", err)
	}
	return nil
}

const summaryFallbackMaxChars = 500

// summarize asks the configured LLM summarizer for a short handoff summary,
// guarded by a circuit breaker; on any failure, or when no summarizer is
// configured, it falls back to a deterministic concatenate-and-truncate of
// the transcript so a human agent always receives something actionable.
func (c *Coordinator) summarize(ctx context.Context, transcript []string) string {
	fallback := truncateSummary(transcript)
	if c.summarizer == nil {
		return fallback
	}

	var result string
	err := c.breaker.Execute(func() error {
		resp, err := c.summarizer.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: "Summarize this customer service call in two sentences for a human agent taking over.",
			Messages:     []types.Message{{Role: "user", Content: strings.Join(transcript, "\n")}},
			Temperature:  0.2,
			MaxTokens:    200,
		})
		if err != nil {
			return err
		}
		result = resp.Content
		return nil
	})
	if err != nil || result == "" {
		return fallback
	}
	return result
}

func truncateSummary(transcript []string) string {
	joined := strings.Join(transcript, " ")
	if len(joined) <= summaryFallbackMaxChars {
		return joined
	}
	return joined[:summaryFallbackMaxChars] + "..."
}
