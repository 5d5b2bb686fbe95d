package retrieval

import "testing"

func TestBM25_ScoresExactTermMatchHigherThanNoMatch(t *testing.T) {
	docs := []Document{
		{ID: "a", Content: "our standard appointment cancellation policy allows changes up to 24 hours in advance"},
		{ID: "b", Content: "we sell blue and red widgets in bulk quantities"},
	}
	idx := newBM25(1.5, 0.75, docs)
	scores := idx.score([]string{"cancellation", "policy"})

	if scores["a"] <= scores["b"] {
		t.Fatalf("expected doc a to outscore doc b: a=%f b=%f", scores["a"], scores["b"])
	}
	if scores["b"] != 0 {
		t.Fatalf("expected doc b to score 0 for unmatched terms, got %f", scores["b"])
	}
}

func TestBM25_EmptyQueryScoresZero(t *testing.T) {
	docs := []Document{{ID: "a", Content: "some content here"}}
	idx := newBM25(1.5, 0.75, docs)
	scores := idx.score(nil)
	if scores["a"] != 0 {
		t.Fatalf("expected zero score for empty query, got %f", scores["a"])
	}
}

func TestBM25_EmptyPoolReturnsEmptyScores(t *testing.T) {
	idx := newBM25(1.5, 0.75, nil)
	scores := idx.score([]string{"anything"})
	if len(scores) != 0 {
		t.Fatalf("expected empty scores for empty pool, got %v", scores)
	}
}

func TestBM25_RewardsTermFrequencyWithDiminishingReturns(t *testing.T) {
	docs := []Document{
		{ID: "a", Content: "refund refund refund policy details here for customers"},
		{ID: "b", Content: "refund policy details here for customers today"},
	}
	idx := newBM25(1.5, 0.75, docs)
	scores := idx.score([]string{"refund"})
	if scores["a"] <= scores["b"] {
		t.Fatalf("expected higher-frequency doc to score higher: a=%f b=%f", scores["a"], scores["b"])
	}
}

func TestTokenize_LowercasesAndSplitsOnNonAlphanumeric(t *testing.T) {
	got := tokenize("Refund-Policy! v2.0")
	want := []string{"refund", "policy", "v2", "0"}
	if len(got) != len(want) {
		t.Fatalf("tokenize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tokenize = %v, want %v", got, want)
		}
	}
}
