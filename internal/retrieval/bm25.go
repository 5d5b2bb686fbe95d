package retrieval

import (
	"math"
	"strings"
)

// bm25 scores a fixed candidate pool against a query using the Okapi BM25
// ranking function, with k1/b supplied by [config.RetrievalConfig] (spec
// defaults: k1=1.5, b=0.75). Document frequency is estimated over the
// candidate pool itself rather than the full corpus — a standard
// approximation for small per-query re-ranking windows.
type bm25 struct {
	k1, b  float64
	docs   []bm25Doc
	avgLen float64
	df     map[string]int
}

type bm25Doc struct {
	id     string
	tf     map[string]int
	length int
}

func newBM25(k1, b float64, docs []Document) *bm25 {
	idx := &bm25{k1: k1, b: b, df: make(map[string]int)}
	var totalLen int
	for _, d := range docs {
		terms := tokenize(d.Content)
		tf := make(map[string]int, len(terms))
		for _, t := range terms {
			tf[t]++
		}
		idx.docs = append(idx.docs, bm25Doc{id: d.ID, tf: tf, length: len(terms)})
		totalLen += len(terms)
		for t := range tf {
			idx.df[t]++
		}
	}
	if len(docs) > 0 {
		idx.avgLen = float64(totalLen) / float64(len(docs))
	}
	return idx
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

// score returns docID -> BM25 score for queryTerms against the indexed pool.
func (idx *bm25) score(queryTerms []string) map[string]float64 {
	n := float64(len(idx.docs))
	avgLen := idx.avgLen
	if avgLen == 0 {
		avgLen = 1
	}

	scores := make(map[string]float64, len(idx.docs))
	for _, doc := range idx.docs {
		var s float64
		for _, qt := range queryTerms {
			f := float64(doc.tf[qt])
			if f == 0 {
				continue
			}
			df := float64(idx.df[qt])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			lengthNorm := 1 - idx.b + idx.b*(float64(doc.length)/avgLen)
			s += idf * (f * (idx.k1 + 1)) / (f + idx.k1*lengthNorm)
		}
		scores[doc.id] = s
	}
	return scores
}
