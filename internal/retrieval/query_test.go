package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/ivoxa/callbridge/pkg/provider/llm"
	"github.com/ivoxa/callbridge/pkg/types"
)

func TestClassifyIntent(t *testing.T) {
	cases := map[string]Intent{
		"how much does it cost":       IntentPricing,
		"what are your hours":         IntentHours,
		"what is your refund policy":  IntentPolicy,
		"how do i reset my password":  IntentHowTo,
		"compare plan a vs plan b":    IntentComparison,
		"tell me about your company":  IntentGeneral,
	}
	for query, want := range cases {
		if got := ClassifyIntent(query); got != want {
			t.Errorf("ClassifyIntent(%q) = %v, want %v", query, got, want)
		}
	}
}

func TestExtractKeywords_StripsStopwords(t *testing.T) {
	got := ExtractKeywords("what is the cost of the appointment")
	want := []string{"cost", "appointment"}
	if len(got) != len(want) {
		t.Fatalf("ExtractKeywords = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ExtractKeywords = %v, want %v", got, want)
		}
	}
}

func TestExpandQuery_IncludesOriginalFirst(t *testing.T) {
	variants := ExpandQuery("what is the price")
	if len(variants) == 0 || variants[0] != "what is the price" {
		t.Fatalf("ExpandQuery variant 0 = %q, want original query", variants[0])
	}
	if len(variants) < 2 {
		t.Fatalf("ExpandQuery(%q) = %v, want at least one synonym variant", "what is the price", variants)
	}
}

func TestExpandQuery_CapsAtFiveVariants(t *testing.T) {
	variants := ExpandQuery("price cost hours cancel appointment return broken")
	if len(variants) > maxQueryVariants {
		t.Fatalf("ExpandQuery returned %d variants, want at most %d", len(variants), maxQueryVariants)
	}
}

func TestExpandQuery_NoRecognizedTermsReturnsOriginalOnly(t *testing.T) {
	variants := ExpandQuery("do you sell blue widgets")
	if len(variants) != 1 || variants[0] != "do you sell blue widgets" {
		t.Fatalf("ExpandQuery = %v, want only the original query", variants)
	}
}

type fakeRewriteProvider struct {
	content string
	err     error
}

func (f *fakeRewriteProvider) StreamCompletion(context.Context, llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRewriteProvider) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content}, nil
}

func (f *fakeRewriteProvider) CountTokens([]types.Message) (int, error) { return 0, nil }

func (f *fakeRewriteProvider) Capabilities() types.ModelCapabilities { return types.ModelCapabilities{} }

func TestRewriter_ReturnsCleanedQuery(t *testing.T) {
	r := NewRewriter(&fakeRewriteProvider{content: "store hours"})
	got := r.Rewrite(context.Background(), "uh like what time do you guys open")
	if got != "store hours" {
		t.Fatalf("Rewrite = %q, want %q", got, "store hours")
	}
}

func TestRewriter_FallsBackToOriginalOnError(t *testing.T) {
	r := NewRewriter(&fakeRewriteProvider{err: errors.New("boom")})
	original := "what time do you open"
	got := r.Rewrite(context.Background(), original)
	if got != original {
		t.Fatalf("Rewrite = %q, want original %q on error", got, original)
	}
}

func TestRewriter_NilProviderIsPassthrough(t *testing.T) {
	r := NewRewriter(nil)
	original := "what time do you open"
	if got := r.Rewrite(context.Background(), original); got != original {
		t.Fatalf("Rewrite = %q, want original %q", got, original)
	}
}
