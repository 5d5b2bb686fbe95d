package termoverlap

import (
	"context"
	"testing"
)

func TestScore_FullOverlapScoresOne(t *testing.T) {
	p := New()
	got, err := p.Score(context.Background(), "return policy", "our return policy lasts thirty days")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got != 1 {
		t.Fatalf("Score = %v, want 1", got)
	}
}

func TestScore_NoOverlapScoresZero(t *testing.T) {
	p := New()
	got, err := p.Score(context.Background(), "return policy", "our store hours are nine to five")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got != 0 {
		t.Fatalf("Score = %v, want 0", got)
	}
}

func TestScore_ScatteredQueryTermsScoreOne(t *testing.T) {
	p := New()
	got, err := p.Score(context.Background(), "return shipping policy", "our return policy excludes shipping costs")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got != 1 {
		t.Fatalf("Score = %v, want 1 for all three query terms present", got)
	}
}

func TestScore_EmptyQueryScoresZero(t *testing.T) {
	p := New()
	got, err := p.Score(context.Background(), "", "some document text")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got != 0 {
		t.Fatalf("Score = %v, want 0 for an empty query", got)
	}
}

func TestScore_CaseInsensitive(t *testing.T) {
	p := New()
	got, err := p.Score(context.Background(), "Return Policy", "RETURN POLICY details")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got != 1 {
		t.Fatalf("Score = %v, want 1 regardless of case", got)
	}
}
