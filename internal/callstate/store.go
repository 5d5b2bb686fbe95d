package callstate

import (
	"context"
	"time"
)

// Call is the persisted row backing one telephony call, per §6's schema.
type Call struct {
	ID         string
	CallSid    string
	Direction  string // "inbound" or "outbound"
	Status     Status
	FromNumber string
	ToNumber   string
	BusinessID string
	StartedAt  time.Time
	EndedAt    *time.Time
	Meta       map[string]any
}

// Store persists Call rows and their status transitions.
type Store interface {
	// Create inserts a new call row in StatusInitiated.
	Create(ctx context.Context, call Call) error

	// Get returns the call row for callSid, or a [bridgeerr.ErrNotFound]-wrapped
	// error if no such call exists.
	Get(ctx context.Context, callSid string) (Call, error)

	// Transition applies event to the call's current status via [Apply] and
	// persists the result atomically, stamping EndedAt when the resulting
	// status is terminal. Returns the updated Call.
	Transition(ctx context.Context, callSid string, event Event) (Call, error)
}

// ApplyToCall mutates a copy of c according to event, stamping EndedAt if the
// resulting status is terminal. It does not persist; callers embedding a
// custom Store use this to compute the new row before writing it.
func ApplyToCall(c Call, event Event) (Call, error) {
	next, err := Apply(c.Status, event)
	if err != nil {
		return c, err
	}
	c.Status = next
	if next.IsTerminal() && c.EndedAt == nil {
		now := time.Now()
		c.EndedAt = &now
	}
	return c, nil
}
