package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/ivoxa/callbridge/internal/config"
	"github.com/ivoxa/callbridge/internal/observe"
	"github.com/ivoxa/callbridge/internal/resilience"
	"github.com/ivoxa/callbridge/internal/tools"
	"github.com/ivoxa/callbridge/pkg/provider/embeddings"
)

const defaultTopK = 10

// Pipeline implements the C10 hybrid retrieval pipeline end to end: query
// processing, semantic+keyword fusion, optional cross-encoder rerank,
// diversity pruning, and voice formatting.
type Pipeline struct {
	store      VectorStore
	embedder   embeddings.Provider
	reranker   config.Reranker
	rewriter   *Rewriter
	cache      *Cache
	cfg        config.RetrievalConfig
	breaker    *resilience.CircuitBreaker
	metrics    *observe.Metrics
}

// New constructs a Pipeline. reranker and the rewriter's underlying LLM
// provider may both be nil; every optional stage degrades gracefully per
// §4.10's design notes.
func New(store VectorStore, embedder embeddings.Provider, reranker config.Reranker, rewriter *Rewriter, cache *Cache, cfg config.RetrievalConfig) *Pipeline {
	return &Pipeline{
		store:    store,
		embedder: embedder,
		reranker: reranker,
		rewriter: rewriter,
		cache:    cache,
		cfg:      applyDefaults(cfg),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "retrieval-reranker",
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
			HalfOpenMax:  1,
		}),
		metrics: observe.DefaultMetrics(),
	}
}

func applyDefaults(cfg config.RetrievalConfig) config.RetrievalConfig {
	if cfg.TopK == 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.SemanticWeight == 0 && cfg.KeywordWeight == 0 {
		cfg.SemanticWeight, cfg.KeywordWeight = 0.7, 0.3
	}
	if cfg.BM25K1 == 0 {
		cfg.BM25K1 = 1.5
	}
	if cfg.BM25B == 0 {
		cfg.BM25B = 0.75
	}
	if cfg.CrossEncoderWeight == 0 && cfg.OriginalWeight == 0 {
		cfg.CrossEncoderWeight, cfg.OriginalWeight = 0.6, 0.4
	}
	if cfg.DiversityThreshold == 0 {
		cfg.DiversityThreshold = 0.7
	}
	if cfg.VoiceMaxSentencesPerDoc == 0 {
		cfg.VoiceMaxSentencesPerDoc = 3
	}
	if cfg.VoiceMaxDocs == 0 {
		cfg.VoiceMaxDocs = 2
	}
	if cfg.VoiceMaxChars == 0 {
		cfg.VoiceMaxChars = 500
	}
	return cfg
}

// Search implements [tools.KnowledgeSearcher]: it runs the full pipeline and
// returns the voice-formatted answer as a single result, matching the tool
// contract's {results: [...]} shape.
//
// When vendor is non-empty, results are restricted to that vendor's
// documents if the final result set contains any; otherwise the filter is
// dropped and the results are returned in their original order, so a
// caller asking for a vendor nobody has indexed still gets an answer
// instead of an empty result.
func (p *Pipeline) Search(ctx context.Context, namespace, query, category, vendor string, topK int) ([]tools.KnowledgeResult, error) {
	start := time.Now()
	defer func() { p.metrics.RetrievalDuration.Record(ctx, time.Since(start).Seconds()) }()

	if topK <= 0 {
		topK = p.cfg.TopK
	}

	results, err := p.run(ctx, namespace, query, topK)
	if err != nil {
		return nil, err
	}
	if category != "" {
		results = filterByCategory(results, category)
	}
	results = prioritizeByVendor(results, vendor)
	if len(results) == 0 {
		return nil, nil
	}

	answer := FormatForVoice(results, p.cfg.VoiceMaxSentencesPerDoc, p.cfg.VoiceMaxDocs, p.cfg.VoiceMaxChars)
	top := results[0]
	out := tools.KnowledgeResult{
		Content: answer,
		Source:  top.Document.Source,
		Score:   top.Score,
	}
	out.Metadata.Title = top.Document.Title
	out.Metadata.Vendor = top.Document.Vendor
	out.Metadata.DocType = top.Document.DocType
	out.Metadata.ChunkIndex = top.Document.ChunkIndex
	return []tools.KnowledgeResult{out}, nil
}

func filterByCategory(results []Result, category string) []Result {
	var out []Result
	for _, r := range results {
		if r.Document.Category == category {
			out = append(out, r)
		}
	}
	return out
}

// prioritizeByVendor implements S6's vendor-filter rule: if any result
// matches vendor, only those are returned; otherwise the filter is dropped
// and the (empty) match set leaves the original order untouched.
func prioritizeByVendor(results []Result, vendor string) []Result {
	if vendor == "" {
		return results
	}
	var matched []Result
	for _, r := range results {
		if r.Document.Vendor == vendor {
			matched = append(matched, r)
		}
	}
	if len(matched) > 0 {
		return matched
	}
	return results
}

// run executes the retrieval stages and returns the final, diversity-pruned,
// score-ordered result set. It does not read or write the query cache; the
// only cache consulted on this path is the embedding cache, inside embed.
func (p *Pipeline) run(ctx context.Context, namespace, query string, topK int) ([]Result, error) {
	rewritten := query
	if p.rewriter != nil {
		rewritten = p.rewriter.Rewrite(ctx, query)
	}

	hybrid, err := p.hybridSearch(ctx, namespace, rewritten, topK)
	if err != nil {
		return nil, err
	}

	reranked := p.rerank(ctx, rewritten, hybrid)
	normalized := normalizeScores(reranked)
	pruned := pruneByDiversity(normalized, p.cfg.DiversityThreshold)
	return pruned, nil
}

func (p *Pipeline) hybridSearch(ctx context.Context, namespace, query string, topK int) ([]Result, error) {
	poolSize := topK * 3

	embedding, err := p.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	semantic, err := p.store.SearchSemantic(ctx, namespace, embedding, poolSize)
	if err != nil {
		return nil, fmt.Errorf("retrieval: semantic search: %w", err)
	}

	terms := ExtractKeywords(query)
	keywordDocs, err := p.store.SearchKeyword(ctx, namespace, terms, poolSize)
	if err != nil {
		return nil, fmt.Errorf("retrieval: keyword search: %w", err)
	}

	pool := mergePool(semantic, keywordDocs)
	bmIndex := newBM25(p.cfg.BM25K1, p.cfg.BM25B, documentsOf(pool))
	bmScores := bmIndex.score(terms)

	semanticScore := make(map[string]float64, len(semantic))
	for _, r := range semantic {
		semanticScore[r.Document.ID] = r.Score
	}

	maxBM25 := maxScore(bmScores)
	results := make([]Result, 0, len(pool))
	for _, doc := range pool {
		sem := semanticScore[doc.ID]
		kw := 0.0
		if maxBM25 > 0 {
			kw = bmScores[doc.ID] / maxBM25
		}
		score := p.cfg.SemanticWeight*sem + p.cfg.KeywordWeight*kw
		results = append(results, Result{Document: doc, Score: score})
	}

	sortByScoreDesc(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (p *Pipeline) embed(ctx context.Context, text string) ([]float32, error) {
	if p.cache != nil {
		if vec, ok := p.cache.GetEmbedding(ctx, text); ok {
			return vec, nil
		}
	}
	vec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if p.cache != nil {
		p.cache.SetEmbedding(ctx, text, vec)
	}
	return vec, nil
}

// rerank blends a cross-encoder score with the original hybrid score,
// guarded by a circuit breaker; any reranker failure (or none configured)
// leaves the hybrid ordering untouched.
func (p *Pipeline) rerank(ctx context.Context, query string, results []Result) []Result {
	if p.reranker == nil || len(results) == 0 {
		return results
	}

	out := make([]Result, len(results))
	copy(out, results)

	err := p.breaker.Execute(func() error {
		for i, r := range out {
			crossScore, err := p.reranker.Score(ctx, query, r.Document.Content)
			if err != nil {
				return err
			}
			out[i].Score = p.cfg.CrossEncoderWeight*crossScore + p.cfg.OriginalWeight*r.Score
		}
		return nil
	})
	if err != nil {
		return results
	}

	sortByScoreDesc(out)
	return out
}

func mergePool(semantic []Result, keyword []Document) []Document {
	seen := make(map[string]bool)
	var pool []Document
	for _, r := range semantic {
		if !seen[r.Document.ID] {
			pool = append(pool, r.Document)
			seen[r.Document.ID] = true
		}
	}
	for _, d := range keyword {
		if !seen[d.ID] {
			pool = append(pool, d)
			seen[d.ID] = true
		}
	}
	return pool
}

func documentsOf(pool []Document) []Document { return pool }

func maxScore(scores map[string]float64) float64 {
	var max float64
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	return max
}

func sortByScoreDesc(results []Result) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}
