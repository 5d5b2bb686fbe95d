package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ivoxa/callbridge/pkg/provider/embeddings"
	"github.com/ivoxa/callbridge/pkg/provider/llm"
	"github.com/ivoxa/callbridge/pkg/realtimeapi"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Reranker scores a single (query, document) pair for C10's rerank stage.
// Declared here rather than in the retrieval package so the registry has no
// compile-time dependency on retrieval internals — the real cross-encoder
// client and the retrieval package's own narrower interface both satisfy
// this structurally.
type Reranker interface {
	Score(ctx context.Context, query, document string) (float64, error)
}

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	model      map[string]func(ProviderEntry) (realtimeapi.Provider, error)
	embeddings map[string]func(ProviderEntry) (embeddings.Provider, error)
	reranker   map[string]func(ProviderEntry) (Reranker, error)
	summarizer map[string]func(ProviderEntry) (llm.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		model:      make(map[string]func(ProviderEntry) (realtimeapi.Provider, error)),
		embeddings: make(map[string]func(ProviderEntry) (embeddings.Provider, error)),
		reranker:   make(map[string]func(ProviderEntry) (Reranker, error)),
		summarizer: make(map[string]func(ProviderEntry) (llm.Provider, error)),
	}
}

// RegisterModel registers a realtimeapi.Provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterModel(name string, factory func(ProviderEntry) (realtimeapi.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.model[name] = factory
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(ProviderEntry) (embeddings.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = factory
}

// RegisterReranker registers a cross-encoder reranker factory under name.
func (r *Registry) RegisterReranker(name string, factory func(ProviderEntry) (Reranker, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reranker[name] = factory
}

// RegisterSummarizer registers an LLM provider factory, used by C9's
// best-effort conversation-summary generation, under name.
func (r *Registry) RegisterSummarizer(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summarizer[name] = factory
}

// CreateModel instantiates the model-session provider registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateModel(entry ProviderEntry) (realtimeapi.Provider, error) {
	r.mu.RLock()
	factory, ok := r.model[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: model/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateEmbeddings instantiates an embeddings provider using the factory registered under entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embeddings[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateReranker instantiates a reranker using the factory registered under entry.Name.
func (r *Registry) CreateReranker(entry ProviderEntry) (Reranker, error) {
	r.mu.RLock()
	factory, ok := r.reranker[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: reranker/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSummarizer instantiates the summarizer LLM provider using the factory registered under entry.Name.
func (r *Registry) CreateSummarizer(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.summarizer[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: summarizer/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
