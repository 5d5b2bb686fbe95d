// Package llmscore implements config.Reranker on top of any pkg/provider/llm
// backend, by asking the model for a single relevance score per (query,
// document) pair. Registered under the "openai" provider name since that is
// the backing llm.Provider deployments typically wire it to, but it accepts
// any llm.Provider.
package llmscore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ivoxa/callbridge/pkg/provider/llm"
	"github.com/ivoxa/callbridge/pkg/types"
)

// Provider asks an LLM to rate document relevance to query on a 0.0-1.0
// scale and parses the response back into a float.
type Provider struct {
	llm llm.Provider
}

// New wraps provider. provider is typically a small, low-latency model —
// cross-encoder-quality reranking does not need a frontier model.
func New(provider llm.Provider) *Provider {
	return &Provider{llm: provider}
}

const scorePrompt = `Rate how relevant the DOCUMENT is to the QUERY on a scale from 0.0 (irrelevant) to 1.0 (highly relevant). Respond with only the number, no other text.

QUERY: %s

DOCUMENT: %s`

// Score implements config.Reranker.
func (p *Provider) Score(ctx context.Context, query, document string) (float64, error) {
	resp, err := p.llm.Complete(ctx, llm.CompletionRequest{
		Messages: []types.Message{
			{Role: "user", Content: fmt.Sprintf(scorePrompt, query, document)},
		},
		Temperature: 0,
		MaxTokens:   8,
	})
	if err != nil {
		return 0, fmt.Errorf("llmscore: complete: %w", err)
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(resp.Content), 64)
	if err != nil {
		return 0, fmt.Errorf("llmscore: parse response %q: %w", resp.Content, err)
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}
