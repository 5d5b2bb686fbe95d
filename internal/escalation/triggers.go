package escalation

import (
	"strings"

	"github.com/ivoxa/callbridge/internal/config"
)

const (
	defaultSentimentThreshold  = -0.5
	defaultComplexityThreshold = 0.8
)

// CheckTriggers evaluates §4.9's three triggers against the most recent
// caller turn and returns the first that fires, in order
// sentiment, keyword, complexity. details carries the evidence behind the
// decision for persistence in the escalation row's trigger_details column.
func CheckTriggers(latestText string, cfg config.EscalationConfig) (triggered bool, triggerType string, details map[string]any) {
	threshold := cfg.SentimentThreshold
	if threshold == 0 {
		threshold = defaultSentimentThreshold
	}
	if s := score(latestText); s <= threshold {
		return true, "sentiment", map[string]any{"score": s, "threshold": threshold}
	}

	lower := strings.ToLower(latestText)
	for _, kw := range cfg.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true, "keyword", map[string]any{"matched": kw}
		}
	}

	complexityThreshold := cfg.ComplexityThreshold
	if complexityThreshold == 0 {
		complexityThreshold = defaultComplexityThreshold
	}
	if c := complexity(latestText); c >= complexityThreshold {
		return true, "complexity", map[string]any{"score": c, "threshold": complexityThreshold}
	}

	return false, "", nil
}

// complexity is a bounded heuristic on average words per sentence,
// normalised to [0, 1] against a 40-word-per-sentence ceiling.
func complexity(text string) float64 {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return 0
	}
	total := 0
	for _, s := range sentences {
		total += len(strings.Fields(s))
	}
	avgWords := float64(total) / float64(len(sentences))
	const ceiling = 40.0
	return clamp(avgWords/ceiling, 0, 1)
}

func splitSentences(text string) []string {
	var sentences []string
	for _, part := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	return sentences
}
