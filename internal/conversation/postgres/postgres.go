// Package postgres implements the conversation package's durable Log
// interface on top of PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ivoxa/callbridge/internal/conversation"
)

// Log is the conversation.Log implementation backed by an interactions
// table, one row per turn.
type Log struct {
	pool *pgxpool.Pool
}

// New wraps an open pool. The caller owns the pool's lifecycle.
func New(pool *pgxpool.Pool) *Log {
	return &Log{pool: pool}
}

// Append implements conversation.Log.
func (l *Log) Append(ctx context.Context, in conversation.Interaction) error {
	meta, err := json.Marshal(in.Meta)
	if err != nil {
		return fmt.Errorf("conversation log: marshal meta: %w", err)
	}

	const q = `
		INSERT INTO interactions (call_id, speaker, text, audio_url, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := l.pool.Exec(ctx, q, in.CallID, in.Speaker, in.Text, in.AudioURL, meta, in.At); err != nil {
		return fmt.Errorf("conversation log: append: %w", err)
	}
	return nil
}

// Recent implements conversation.Log, returning the limit most recent
// interactions for callID in chronological (oldest-first) order.
func (l *Log) Recent(ctx context.Context, callID string, limit int) ([]conversation.Interaction, error) {
	const q = `
		SELECT speaker, text, audio_url, meta, occurred_at
		FROM   (
		    SELECT speaker, text, audio_url, meta, occurred_at
		    FROM   interactions
		    WHERE  call_id = $1
		    ORDER  BY occurred_at DESC
		    LIMIT  $2
		) recent
		ORDER BY occurred_at ASC`

	rows, err := l.pool.Query(ctx, q, callID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("conversation log: recent: %w", err)
	}
	defer rows.Close()

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (conversation.Interaction, error) {
		var (
			in       conversation.Interaction
			metaJSON []byte
		)
		if err := row.Scan(&in.Speaker, &in.Text, &in.AudioURL, &metaJSON, &in.At); err != nil {
			return conversation.Interaction{}, err
		}
		in.CallID = callID
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &in.Meta); err != nil {
				return conversation.Interaction{}, fmt.Errorf("conversation log: unmarshal meta: %w", err)
			}
		}
		return in, nil
	})
	if err != nil {
		return nil, fmt.Errorf("conversation log: scan rows: %w", err)
	}
	if out == nil {
		out = []conversation.Interaction{}
	}
	return out, nil
}

func limitOrAll(limit int) int64 {
	if limit <= 0 {
		return 1 << 31
	}
	return int64(limit)
}

// Schema is the DDL required by Log. Callers run this via their own
// migration tooling; it is exposed here so tests and local setup can apply
// it directly.
const Schema = `
CREATE TABLE IF NOT EXISTS interactions (
    id          BIGSERIAL PRIMARY KEY,
    call_id     TEXT NOT NULL,
    speaker     TEXT NOT NULL,
    text        TEXT NOT NULL,
    audio_url   TEXT NOT NULL DEFAULT '',
    meta        JSONB NOT NULL DEFAULT '{}',
    occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS interactions_call_id_occurred_at_idx
    ON interactions (call_id, occurred_at);
`
