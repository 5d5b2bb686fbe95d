// Package postgres implements callstate.Store on top of PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivoxa/callbridge/internal/bridgeerr"
	"github.com/ivoxa/callbridge/internal/callstate"
)

// Store is the callstate.Store implementation backed by the calls table.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an open pool. The caller owns the pool's lifecycle.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create implements callstate.Store.
func (s *Store) Create(ctx context.Context, call callstate.Call) error {
	meta, err := json.Marshal(call.Meta)
	if err != nil {
		return fmt.Errorf("callstate postgres: marshal meta: %w", err)
	}
	const q = `
		INSERT INTO calls (id, call_sid, direction, status, from_number, to_number, business_id, started_at, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := s.pool.Exec(ctx, q, call.ID, call.CallSid, call.Direction, call.Status,
		call.FromNumber, call.ToNumber, call.BusinessID, call.StartedAt, meta); err != nil {
		return fmt.Errorf("callstate postgres: create: %w", err)
	}
	return nil
}

// Get implements callstate.Store.
func (s *Store) Get(ctx context.Context, callSid string) (callstate.Call, error) {
	const q = `
		SELECT id, call_sid, direction, status, from_number, to_number, business_id, started_at, ended_at, meta
		FROM   calls
		WHERE  call_sid = $1`
	row := s.pool.QueryRow(ctx, q, callSid)
	call, err := scanCall(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return callstate.Call{}, fmt.Errorf("callstate postgres: call %q: %w", callSid, bridgeerr.ErrNotFound)
		}
		return callstate.Call{}, fmt.Errorf("callstate postgres: get: %w", err)
	}
	return call, nil
}

// Transition implements callstate.Store: it loads the current row, computes
// the next status via [callstate.ApplyToCall], and writes status/ended_at
// back in the same call, all inside one transaction to avoid a lost-update
// race between concurrent webhook deliveries for the same call_sid.
func (s *Store) Transition(ctx context.Context, callSid string, event callstate.Event) (callstate.Call, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return callstate.Call{}, fmt.Errorf("callstate postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const selectQ = `
		SELECT id, call_sid, direction, status, from_number, to_number, business_id, started_at, ended_at, meta
		FROM   calls
		WHERE  call_sid = $1
		FOR UPDATE`
	row := tx.QueryRow(ctx, selectQ, callSid)
	current, err := scanCall(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return callstate.Call{}, fmt.Errorf("callstate postgres: call %q: %w", callSid, bridgeerr.ErrNotFound)
		}
		return callstate.Call{}, fmt.Errorf("callstate postgres: transition select: %w", err)
	}

	next, err := callstate.ApplyToCall(current, event)
	if err != nil {
		return callstate.Call{}, err
	}

	const updateQ = `UPDATE calls SET status = $1, ended_at = $2 WHERE call_sid = $3`
	if _, err := tx.Exec(ctx, updateQ, next.Status, next.EndedAt, callSid); err != nil {
		return callstate.Call{}, fmt.Errorf("callstate postgres: transition update: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return callstate.Call{}, fmt.Errorf("callstate postgres: commit: %w", err)
	}
	return next, nil
}

func scanCall(row pgx.Row) (callstate.Call, error) {
	var (
		c        callstate.Call
		metaJSON []byte
	)
	if err := row.Scan(&c.ID, &c.CallSid, &c.Direction, &c.Status, &c.FromNumber,
		&c.ToNumber, &c.BusinessID, &c.StartedAt, &c.EndedAt, &metaJSON); err != nil {
		return callstate.Call{}, err
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &c.Meta); err != nil {
			return callstate.Call{}, fmt.Errorf("callstate postgres: unmarshal meta: %w", err)
		}
	}
	return c, nil
}

// Schema is the DDL required by Store, exposed for tests and local setup.
const Schema = `
CREATE TABLE IF NOT EXISTS calls (
    id          TEXT PRIMARY KEY,
    call_sid    TEXT NOT NULL UNIQUE,
    direction   TEXT NOT NULL,
    status      TEXT NOT NULL,
    from_number TEXT NOT NULL DEFAULT '',
    to_number   TEXT NOT NULL DEFAULT '',
    business_id TEXT NOT NULL DEFAULT '',
    started_at  TIMESTAMPTZ NOT NULL,
    ended_at    TIMESTAMPTZ,
    meta        JSONB NOT NULL DEFAULT '{}'
);
`
