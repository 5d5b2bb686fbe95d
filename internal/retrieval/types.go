// Package retrieval implements the hybrid retrieval pipeline (C10): query
// processing, combined semantic/keyword search, cross-encoder rerank,
// diversity pruning, and voice-safe answer formatting over a business's
// knowledge base.
package retrieval

import "context"

// Document is one indexed knowledge-base chunk.
type Document struct {
	ID         string
	Namespace  string
	Content    string
	Source     string
	Category   string
	Title      string
	Vendor     string
	DocType    string
	ChunkIndex int
	Embedding  []float32
}

// Result is a scored Document at some stage of the pipeline. Score's
// meaning depends on the stage: raw cosine similarity after semantic
// search, the blended hybrid score after fusion, or the blended
// cross-encoder score after rerank.
type Result struct {
	Document Document
	Score    float64
}

// VectorStore is C10's persistence dependency: semantic search over
// pre-embedded documents, plus a coarse keyword prefilter used to assemble
// the BM25 candidate pool. A pgvector-backed implementation lives in the
// postgres subpackage.
type VectorStore interface {
	// SearchSemantic returns the topK documents in namespace whose
	// embeddings are closest to embedding, by cosine similarity.
	SearchSemantic(ctx context.Context, namespace string, embedding []float32, topK int) ([]Result, error)

	// SearchKeyword returns up to topK documents in namespace whose content
	// contains any of terms, unscored (BM25 scoring happens in-process).
	SearchKeyword(ctx context.Context, namespace string, terms []string, topK int) ([]Document, error)
}
