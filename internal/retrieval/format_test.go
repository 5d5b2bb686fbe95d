package retrieval

import (
	"strings"
	"testing"
)

func TestFormatForVoice_LimitsDocsAndSentences(t *testing.T) {
	results := []Result{
		{Document: Document{Content: "Sentence one here. Sentence two here. Sentence three here. Sentence four here."}},
		{Document: Document{Content: "Second doc sentence one. Second doc sentence two."}},
		{Document: Document{Content: "Third doc should be dropped entirely."}},
	}
	got := FormatForVoice(results, 2, 2, 1000)

	if strings.Contains(got, "Third doc") {
		t.Errorf("FormatForVoice included a document beyond maxDocs: %q", got)
	}
	if strings.Contains(got, "Sentence three") || strings.Contains(got, "Sentence four") {
		t.Errorf("FormatForVoice exceeded maxSentences per doc: %q", got)
	}
	if !strings.Contains(got, "Sentence one") || !strings.Contains(got, "Second doc sentence one") {
		t.Errorf("FormatForVoice dropped expected content: %q", got)
	}
}

func TestFormatForVoice_TruncatesAtMaxChars(t *testing.T) {
	results := []Result{{Document: Document{Content: strings.Repeat("word ", 200) + "."}}}
	got := FormatForVoice(results, 5, 1, 50)
	if len(got) > 53 {
		t.Fatalf("FormatForVoice result length %d exceeds maxChars+ellipsis bound: %q", len(got), got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("FormatForVoice truncated text should end with ellipsis, got %q", got)
	}
}

func TestFormatForVoice_ExpandsAbbreviations(t *testing.T) {
	results := []Result{{Document: Document{Content: "Check our FAQ for API details."}}}
	got := FormatForVoice(results, 3, 1, 500)
	if strings.Contains(got, "FAQ") || strings.Contains(got, "API") {
		t.Errorf("FormatForVoice did not expand abbreviations: %q", got)
	}
	if !strings.Contains(got, "frequently asked questions") {
		t.Errorf("FormatForVoice missing expanded FAQ: %q", got)
	}
}

func TestFormatForVoice_ZeroParamsUseDefaults(t *testing.T) {
	results := []Result{{Document: Document{Content: "A short single sentence answer."}}}
	got := FormatForVoice(results, 0, 0, 0)
	if got == "" {
		t.Fatal("FormatForVoice with zero params should fall back to defaults, not return empty")
	}
}

func TestFormatForVoice_EmptyResultsReturnsEmptyString(t *testing.T) {
	if got := FormatForVoice(nil, 3, 2, 500); got != "" {
		t.Fatalf("FormatForVoice(nil) = %q, want empty string", got)
	}
}
