// Package termoverlap implements a zero-dependency config.Reranker that
// scores a (query, document) pair by normalised token overlap. It needs no
// external API and is registered under the "term-overlap" provider name, for
// deployments that want C10's rerank stage without a network round trip.
package termoverlap

import (
	"context"
	"strings"
	"unicode"
)

// Provider scores documents by the fraction of query tokens they contain.
type Provider struct{}

// New returns a ready-to-use Provider. It takes no configuration.
func New() *Provider {
	return &Provider{}
}

// Score implements config.Reranker. It returns the fraction of unique query
// tokens found in document, a cheap proxy for relevance when no
// cross-encoder model is configured.
func (p *Provider) Score(_ context.Context, query, document string) (float64, error) {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return 0, nil
	}
	docSet := make(map[string]struct{}, 32)
	for _, tok := range tokenize(document) {
		docSet[tok] = struct{}{}
	}

	seen := make(map[string]struct{}, len(queryTokens))
	matched := 0
	for _, tok := range queryTokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		if _, ok := docSet[tok]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(seen)), nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
