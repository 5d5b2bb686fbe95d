package retrieval

import (
	"regexp"
	"strings"
)

// abbreviations expands terms that read fine on screen but sound wrong or
// ambiguous when spoken by a voice agent.
var abbreviations = []struct {
	pattern *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`\bAPI\b`), "A P I"},
	{regexp.MustCompile(`\bFAQ\b`), "frequently asked questions"},
	{regexp.MustCompile(`\bw/`), "with"},
	{regexp.MustCompile(`\be\.g\.`), "for example"},
	{regexp.MustCompile(`\bi\.e\.`), "that is"},
	{regexp.MustCompile(`\betc\.`), "and so on"},
	{regexp.MustCompile(`\b&\b`), "and"},
}

func expandAbbreviations(text string) string {
	for _, a := range abbreviations {
		text = a.pattern.ReplaceAllString(text, a.replace)
	}
	return text
}

var sentenceSplit = regexp.MustCompile(`(?s)([^.!?]+[.!?]+)`)

// FormatForVoice renders results as a short, speakable answer: at most
// maxDocs documents, each truncated to maxSentences sentences and maxChars
// characters, with abbreviations expanded so a TTS voice reads them
// naturally.
func FormatForVoice(results []Result, maxSentences, maxDocs, maxChars int) string {
	if maxDocs <= 0 {
		maxDocs = 2
	}
	if maxSentences <= 0 {
		maxSentences = 3
	}
	if maxChars <= 0 {
		maxChars = 500
	}
	if len(results) > maxDocs {
		results = results[:maxDocs]
	}

	var parts []string
	for _, r := range results {
		snippet := firstSentences(r.Document.Content, maxSentences)
		snippet = expandAbbreviations(snippet)
		if snippet != "" {
			parts = append(parts, snippet)
		}
	}

	answer := strings.Join(parts, " ")
	answer = strings.TrimSpace(answer)
	if len(answer) > maxChars {
		answer = truncateAtWord(answer, maxChars)
	}
	return answer
}

func firstSentences(text string, n int) string {
	matches := sentenceSplit.FindAllString(text, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(text)
	}
	if len(matches) > n {
		matches = matches[:n]
	}
	var b strings.Builder
	for _, m := range matches {
		b.WriteString(strings.TrimSpace(m))
		b.WriteString(" ")
	}
	return strings.TrimSpace(b.String())
}

func truncateAtWord(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	cut := text[:maxChars]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "..."
}
