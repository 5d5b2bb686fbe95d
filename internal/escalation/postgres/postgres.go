// Package postgres implements escalation.Store on top of PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivoxa/callbridge/internal/escalation"
)

// Store is the escalation.Store implementation backed by the escalations
// and human_agents tables.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an open pool. The caller owns the pool's lifecycle.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateEscalation implements escalation.Store.
func (s *Store) CreateEscalation(ctx context.Context, e escalation.Escalation) (escalation.Escalation, error) {
	triggerJSON, err := json.Marshal(e.TriggerDetails)
	if err != nil {
		return escalation.Escalation{}, fmt.Errorf("escalation postgres: marshal trigger_details: %w", err)
	}
	contextJSON, err := json.Marshal(e.ContextData)
	if err != nil {
		return escalation.Escalation{}, fmt.Errorf("escalation postgres: marshal context_data: %w", err)
	}

	const q = `
		INSERT INTO escalations (id, call_id, status, trigger_type, trigger_details,
			assigned_agent_id, conversation_summary, context_data, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := s.pool.Exec(ctx, q, e.ID, e.CallID, e.Status, e.TriggerType, triggerJSON,
		e.AssignedAgentID, e.ConversationSummary, contextJSON, e.RequestedAt); err != nil {
		return escalation.Escalation{}, fmt.Errorf("escalation postgres: create: %w", err)
	}
	return e, nil
}

// FindAvailableAgent implements escalation.Store. When departments or skills
// are non-empty, the agent's JSON arrays must contain at least one matching
// entry (checked with the `?|` JSONB "any of these keys exist" operator).
func (s *Store) FindAvailableAgent(ctx context.Context, departments, skills []string) (escalation.Agent, bool, error) {
	const q = `
		SELECT id, name, email, is_available, is_active, skills, departments, last_active_at
		FROM   human_agents
		WHERE  is_available = TRUE AND is_active = TRUE
		  AND  ($1::text[] IS NULL OR departments ?| $1)
		  AND  ($2::text[] IS NULL OR skills ?| $2)
		ORDER BY last_active_at ASC NULLS FIRST
		LIMIT 1`
	row := s.pool.QueryRow(ctx, q, nullIfEmpty(departments), nullIfEmpty(skills))
	agent, err := scanAgent(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return escalation.Agent{}, false, nil
		}
		return escalation.Agent{}, false, fmt.Errorf("escalation postgres: find agent: %w", err)
	}
	return agent, true, nil
}

func nullIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

// MarkAgentBusy implements escalation.Store.
func (s *Store) MarkAgentBusy(ctx context.Context, agentID string) error {
	const q = `UPDATE human_agents SET is_available = FALSE WHERE id = $1`
	if _, err := s.pool.Exec(ctx, q, agentID); err != nil {
		return fmt.Errorf("escalation postgres: mark agent busy: %w", err)
	}
	return nil
}

// MarkAgentAvailable implements escalation.Store, stamping last_active_at.
func (s *Store) MarkAgentAvailable(ctx context.Context, agentID string) error {
	const q = `UPDATE human_agents SET is_available = TRUE, last_active_at = now() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, q, agentID); err != nil {
		return fmt.Errorf("escalation postgres: mark agent available: %w", err)
	}
	return nil
}

// CompleteEscalation implements escalation.Store.
func (s *Store) CompleteEscalation(ctx context.Context, escalationID string) error {
	const q = `UPDATE escalations SET status = 'completed', completed_at = now() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, q, escalationID); err != nil {
		return fmt.Errorf("escalation postgres: complete: %w", err)
	}
	return nil
}

func scanAgent(row pgx.Row) (escalation.Agent, error) {
	var (
		a                  escalation.Agent
		skillsJSON, deptJSON []byte
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.IsAvailable, &a.IsActive,
		&skillsJSON, &deptJSON, &a.LastActiveAt); err != nil {
		return escalation.Agent{}, err
	}
	if len(skillsJSON) > 0 {
		if err := json.Unmarshal(skillsJSON, &a.Skills); err != nil {
			return escalation.Agent{}, fmt.Errorf("escalation postgres: unmarshal skills: %w", err)
		}
	}
	if len(deptJSON) > 0 {
		if err := json.Unmarshal(deptJSON, &a.Departments); err != nil {
			return escalation.Agent{}, fmt.Errorf("escalation postgres: unmarshal departments: %w", err)
		}
	}
	return a, nil
}

// Schema is the DDL required by Store, exposed for tests and local setup.
const Schema = `
CREATE TABLE IF NOT EXISTS human_agents (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    email           TEXT NOT NULL UNIQUE,
    is_available    BOOLEAN NOT NULL DEFAULT TRUE,
    is_active       BOOLEAN NOT NULL DEFAULT TRUE,
    skills          JSONB NOT NULL DEFAULT '[]',
    departments     JSONB NOT NULL DEFAULT '[]',
    last_active_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS escalations (
    id                    TEXT PRIMARY KEY,
    call_id               TEXT NOT NULL,
    status                TEXT NOT NULL,
    trigger_type          TEXT NOT NULL,
    trigger_details       JSONB NOT NULL DEFAULT '{}',
    assigned_agent_id     TEXT REFERENCES human_agents(id),
    conversation_summary  TEXT,
    context_data          JSONB NOT NULL DEFAULT '{}',
    requested_at          TIMESTAMPTZ NOT NULL,
    accepted_at           TIMESTAMPTZ,
    completed_at          TIMESTAMPTZ
);
`
