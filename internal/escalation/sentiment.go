package escalation

import (
	"math"
	"strings"
)

// lexicon is a small, bounded word -> valence table in the spirit of a
// VADER-style compound sentiment scorer, without pulling in a full NLP
// dependency (see DESIGN.md for why this stays on a hand-rolled lexicon
// rather than a third-party library).
var lexicon = map[string]float64{
	"angry": -0.8, "furious": -0.9, "terrible": -0.8, "horrible": -0.9,
	"awful": -0.8, "worst": -0.9, "hate": -0.8, "frustrated": -0.6,
	"upset": -0.6, "disappointed": -0.5, "annoyed": -0.5, "broken": -0.4,
	"unacceptable": -0.7, "ridiculous": -0.6, "never": -0.2, "useless": -0.7,
	"scam": -0.8, "cancel": -0.3, "refund": -0.2, "complaint": -0.4,
	"sue": -0.8, "lawyer": -0.5, "stupid": -0.7,

	"great": 0.7, "good": 0.5, "thanks": 0.5, "thank": 0.5, "appreciate": 0.6,
	"happy": 0.7, "perfect": 0.8, "excellent": 0.8, "wonderful": 0.8,
	"love": 0.8, "awesome": 0.8, "helpful": 0.6, "please": 0.1,
}

var negators = map[string]bool{"not": true, "no": true, "never": true, "n't": true}

// score returns a compound valence in [-1, 1] for text, in the same
// contract as the bounded lexicon scorer named in §4.9: words are looked up
// case-insensitively, a negator in the three preceding tokens flips sign, and
// the running sum is normalised by the square root of the token count
// (the standard VADER normalisation) then clamped to [-1, 1].
func score(text string) float64 {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return 0
	}

	var sum float64
	for i, tok := range tokens {
		clean := strings.Trim(tok, ".,!?;:\"'")
		valence, ok := lexicon[clean]
		if !ok {
			continue
		}
		if negatedBefore(tokens, i) {
			valence = -valence
		}
		sum += valence
	}

	normalized := sum / math.Sqrt(float64(len(tokens)))
	return clamp(normalized, -1, 1)
}

func negatedBefore(tokens []string, i int) bool {
	for j := i - 1; j >= 0 && j >= i-3; j-- {
		if negators[strings.Trim(tokens[j], ".,!?;:\"'")] {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
