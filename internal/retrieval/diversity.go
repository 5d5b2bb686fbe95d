package retrieval

// normalizeScores rescales results' scores to [0, 1] via min-max
// normalisation. A zero-spread set (all equal scores) maps every score to 1.
func normalizeScores(results []Result) []Result {
	if len(results) == 0 {
		return results
	}
	min, max := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}
	spread := max - min
	out := make([]Result, len(results))
	for i, r := range results {
		if spread == 0 {
			out[i] = Result{Document: r.Document, Score: 1}
			continue
		}
		out[i] = Result{Document: r.Document, Score: (r.Score - min) / spread}
	}
	return out
}

// pruneByDiversity walks results in score order (assumed already sorted
// descending) and drops any candidate whose content overlaps a
// higher-ranked, already-kept result above the Jaccard similarity
// threshold — preventing the final answer from citing several
// near-duplicate chunks.
func pruneByDiversity(results []Result, threshold float64) []Result {
	var kept []Result
	var keptSets []map[string]bool
	for _, r := range results {
		set := wordSet(r.Document.Content)
		tooSimilar := false
		for _, k := range keptSets {
			if jaccard(set, k) > threshold {
				tooSimilar = true
				break
			}
		}
		if tooSimilar {
			continue
		}
		kept = append(kept, r)
		keptSets = append(keptSets, set)
	}
	return kept
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range tokenize(text) {
		set[t] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	var intersection int
	for t := range a {
		if b[t] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
