// Package conversation implements the durable, per-call turn log (C5): an
// append-only history keyed by call_id, a bounded in-memory window for fast
// prompt building, and an observer hook fired on every successful append.
package conversation

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// Interaction is one turn recorded against a call.
type Interaction struct {
	CallID   string
	Speaker  string // "caller", "model", or "system"
	Text     string
	AudioURL string
	Meta     map[string]any
	At       time.Time
}

// Observer is notified after a turn is durably appended. Observers must not
// block; Store invokes them synchronously from AddInteraction's goroutine.
type Observer func(Interaction)

// Log is the durable append-only backing store. A Postgres implementation
// lives in the postgres subpackage; tests may supply an in-memory fake.
type Log interface {
	Append(ctx context.Context, in Interaction) error
	// Recent returns up to limit of the most recently appended interactions
	// for callID, oldest first. limit <= 0 means no limit.
	Recent(ctx context.Context, callID string, limit int) ([]Interaction, error)
}

const windowCapacity = 100

// Store is the C5 conversation store: it durably appends every interaction
// via Log, maintains a bounded in-memory window per call for low-latency
// context-window construction, and notifies observers.
type Store struct {
	log Log

	mu        sync.Mutex
	windows   map[string]*list.List // callID -> *list.List of Interaction, oldest at front
	observers []Observer
}

// New returns a Store backed by log.
func New(log Log) *Store {
	return &Store{
		log:     log,
		windows: make(map[string]*list.List),
	}
}

// Subscribe registers an observer invoked after each successful append. Not
// safe to call concurrently with AddInteraction.
func (s *Store) Subscribe(obs Observer) {
	s.observers = append(s.observers, obs)
}

// AddInteraction appends in to the durable log, pushes it onto the in-memory
// window (evicting the oldest entry past windowCapacity), and notifies
// subscribed observers. Returns the durable log's error unmodified; the
// in-memory window and observers are only updated on a successful append.
func (s *Store) AddInteraction(ctx context.Context, callID, speaker, text, audioURL string, meta map[string]any) error {
	in := Interaction{
		CallID:   callID,
		Speaker:  speaker,
		Text:     text,
		AudioURL: audioURL,
		Meta:     meta,
		At:       time.Now(),
	}
	if err := s.log.Append(ctx, in); err != nil {
		return err
	}

	s.mu.Lock()
	w, ok := s.windows[callID]
	if !ok {
		w = list.New()
		s.windows[callID] = w
	}
	w.PushBack(in)
	for w.Len() > windowCapacity {
		w.Remove(w.Front())
	}
	s.mu.Unlock()

	for _, obs := range s.observers {
		obs(in)
	}
	return nil
}

// History returns the most recent limit interactions for callID, oldest
// first. If the in-memory window holds fewer entries than requested (e.g.
// after a process restart) it falls back to the durable log. limit <= 0
// defaults to the full in-memory window.
func (s *Store) History(ctx context.Context, callID string, limit int) ([]Interaction, error) {
	s.mu.Lock()
	w, ok := s.windows[callID]
	var inMemory []Interaction
	if ok {
		inMemory = make([]Interaction, 0, w.Len())
		for e := w.Front(); e != nil; e = e.Next() {
			inMemory = append(inMemory, e.Value.(Interaction))
		}
	}
	s.mu.Unlock()

	if limit <= 0 {
		limit = windowCapacity
	}
	if len(inMemory) >= limit {
		return inMemory[len(inMemory)-limit:], nil
	}
	return s.log.Recent(ctx, callID, limit)
}

// ContextSummary builds a bounded textual context window for prompt
// injection: the most recent turns are walked newest-first, each formatted
// as "Speaker: Text", and accumulated until adding the next turn would
// exceed maxChars. The accumulated turns are then reversed so the window
// reads oldest-first, matching natural conversation order.
func (s *Store) ContextSummary(ctx context.Context, callID string, maxChars int) (string, error) {
	history, err := s.History(ctx, callID, windowCapacity)
	if err != nil {
		return "", err
	}

	var picked []string
	total := 0
	for i := len(history) - 1; i >= 0; i-- {
		line := history[i].Speaker + ": " + history[i].Text
		// +1 accounts for the newline that will join this line in.
		if total+len(line)+1 > maxChars && len(picked) > 0 {
			break
		}
		picked = append(picked, line)
		total += len(line) + 1
	}

	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	return strings.Join(picked, "\n"), nil
}
