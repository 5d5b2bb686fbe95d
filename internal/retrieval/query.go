package retrieval

import (
	"context"
	"regexp"
	"strings"

	"github.com/ivoxa/callbridge/pkg/provider/llm"
	"github.com/ivoxa/callbridge/pkg/types"
)

// Intent is the closed set of query intents classified by [ClassifyIntent].
type Intent string

const (
	IntentPricing    Intent = "pricing"
	IntentHours      Intent = "hours"
	IntentPolicy     Intent = "policy"
	IntentHowTo      Intent = "how_to"
	IntentComparison Intent = "comparison"
	IntentGeneral    Intent = "general"
)

var intentPatterns = []struct {
	intent  Intent
	pattern *regexp.Regexp
}{
	{IntentPricing, regexp.MustCompile(`(?i)\b(cost|price|pricing|fee|charge|how much)\b`)},
	{IntentHours, regexp.MustCompile(`(?i)\b(hours|open|close|closing|opening)\b`)},
	{IntentPolicy, regexp.MustCompile(`(?i)\b(policy|refund|cancellation|return|warranty)\b`)},
	{IntentHowTo, regexp.MustCompile(`(?i)\b(how do i|how to|how can i|steps to)\b`)},
	{IntentComparison, regexp.MustCompile(`(?i)\b(vs|versus|compare|difference between|better than)\b`)},
}

// ClassifyIntent matches query against a closed set of regexes, in priority
// order, falling back to IntentGeneral.
func ClassifyIntent(query string) Intent {
	for _, p := range intentPatterns {
		if p.pattern.MatchString(query) {
			return p.intent
		}
	}
	return IntentGeneral
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "to": true, "of": true, "in": true,
	"on": true, "for": true, "with": true, "and": true, "or": true, "but": true,
	"do": true, "does": true, "did": true, "i": true, "you": true, "it": true,
	"my": true, "your": true, "what": true, "how": true, "can": true, "could": true,
}

// ExtractKeywords lowercases, tokenizes, and strips stopwords/punctuation
// from query, returning the remaining content terms in order.
func ExtractKeywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	var out []string
	for _, f := range fields {
		if f == "" || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// synonyms maps a domain term to alternate phrasings used to expand a query
// into additional search variants.
var synonyms = map[string][]string{
	"price":       {"cost", "fee", "rate"},
	"cost":        {"price", "fee"},
	"hours":       {"schedule", "open", "availability"},
	"cancel":      {"cancellation", "refund"},
	"appointment": {"booking", "reservation"},
	"return":      {"refund", "exchange"},
	"broken":      {"defective", "damaged", "not working"},
}

const maxQueryVariants = 5

// ExpandQuery returns up to maxQueryVariants phrasings of query, the original
// included, by substituting each recognised term with one synonym in turn, per §4.10's
// "synonym/template expansion up to 5 variants". The original query is
// always variant zero.
func ExpandQuery(query string) []string {
	variants := []string{query}
	lower := strings.ToLower(query)
	for term, alts := range synonyms {
		if len(variants) >= maxQueryVariants {
			break
		}
		if !strings.Contains(lower, term) {
			continue
		}
		for _, alt := range alts {
			if len(variants) >= maxQueryVariants {
				break
			}
			variants = append(variants, strings.Replace(lower, term, alt, 1))
		}
	}
	return variants
}

// Rewriter optionally rewrites a caller's spoken query into a cleaner
// search string using an LLM, before keyword extraction and expansion.
type Rewriter struct {
	provider llm.Provider
}

// NewRewriter wraps provider. A nil provider makes Rewrite a no-op passthrough.
func NewRewriter(provider llm.Provider) *Rewriter {
	return &Rewriter{provider: provider}
}

// Rewrite asks the LLM to turn a spoken, possibly disfluent query into a
// short, well-formed search query. On any error, or when no provider is
// configured, it returns the original query unchanged.
func (r *Rewriter) Rewrite(ctx context.Context, query string) string {
	if r.provider == nil {
		return query
	}
	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: "Rewrite the following spoken customer question as a short, well-formed search query. Reply with only the rewritten query.",
		Messages:     []types.Message{{Role: "user", Content: query}},
		Temperature:  0,
		MaxTokens:    60,
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		return query
	}
	return strings.TrimSpace(resp.Content)
}
