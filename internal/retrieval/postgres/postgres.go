// Package postgres implements C10's [retrieval.VectorStore] on top of
// PostgreSQL with the pgvector extension, following the same cosine-distance
// query shape the teacher's semantic memory index uses.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/ivoxa/callbridge/internal/retrieval"
)

// Schema defines the knowledge-base chunks table and its pgvector HNSW
// index, scoped per business via namespace.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS knowledge_chunks (
    id          TEXT PRIMARY KEY,
    namespace   TEXT NOT NULL,
    category    TEXT NOT NULL DEFAULT '',
    source      TEXT NOT NULL DEFAULT '',
    title       TEXT NOT NULL DEFAULT '',
    vendor      TEXT NOT NULL DEFAULT '',
    doc_type    TEXT NOT NULL DEFAULT '',
    chunk_index INTEGER NOT NULL DEFAULT 0,
    content     TEXT NOT NULL,
    embedding   vector(1536) NOT NULL
);

CREATE INDEX IF NOT EXISTS knowledge_chunks_vendor_idx ON knowledge_chunks (namespace, vendor);

CREATE INDEX IF NOT EXISTS knowledge_chunks_namespace_idx ON knowledge_chunks (namespace);

CREATE INDEX IF NOT EXISTS knowledge_chunks_embedding_idx ON knowledge_chunks
    USING hnsw (embedding vector_cosine_ops);

CREATE INDEX IF NOT EXISTS knowledge_chunks_content_fts_idx ON knowledge_chunks
    USING gin (to_tsvector('english', content));
`

// Store is a pgvector-backed [retrieval.VectorStore].
type Store struct {
	pool *pgxpool.Pool
}

// New wraps pool as a [retrieval.VectorStore].
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// IndexChunk upserts a pre-embedded document into the knowledge base.
func (s *Store) IndexChunk(ctx context.Context, doc retrieval.Document) error {
	const q = `
		INSERT INTO knowledge_chunks (id, namespace, category, source, title, vendor, doc_type, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
		    namespace   = EXCLUDED.namespace,
		    category    = EXCLUDED.category,
		    source      = EXCLUDED.source,
		    title       = EXCLUDED.title,
		    vendor      = EXCLUDED.vendor,
		    doc_type    = EXCLUDED.doc_type,
		    chunk_index = EXCLUDED.chunk_index,
		    content     = EXCLUDED.content,
		    embedding   = EXCLUDED.embedding`

	_, err := s.pool.Exec(ctx, q,
		doc.ID, doc.Namespace, doc.Category, doc.Source, doc.Title, doc.Vendor, doc.DocType, doc.ChunkIndex,
		doc.Content, pgvector.NewVector(doc.Embedding))
	if err != nil {
		return fmt.Errorf("retrieval postgres: index chunk: %w", err)
	}
	return nil
}

// SearchSemantic implements [retrieval.VectorStore]. It finds the topK
// chunks in namespace whose embeddings are closest (cosine distance) to
// embedding, converting distance to a [0,1]-ish similarity score via 1-distance.
func (s *Store) SearchSemantic(ctx context.Context, namespace string, embedding []float32, topK int) ([]retrieval.Result, error) {
	const q = `
		SELECT id, namespace, category, source, title, vendor, doc_type, chunk_index, content, embedding,
		       embedding <=> $1 AS distance
		FROM   knowledge_chunks
		WHERE  namespace = $2
		ORDER  BY distance
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), namespace, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieval postgres: search semantic: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (retrieval.Result, error) {
		var (
			doc      retrieval.Document
			vec      pgvector.Vector
			distance float64
		)
		if err := row.Scan(&doc.ID, &doc.Namespace, &doc.Category, &doc.Source, &doc.Title, &doc.Vendor,
			&doc.DocType, &doc.ChunkIndex, &doc.Content, &vec, &distance); err != nil {
			return retrieval.Result{}, err
		}
		doc.Embedding = vec.Slice()
		return retrieval.Result{Document: doc, Score: 1 - distance}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval postgres: scan semantic rows: %w", err)
	}
	if results == nil {
		results = []retrieval.Result{}
	}
	return results, nil
}

// SearchKeyword implements [retrieval.VectorStore] with a Postgres
// full-text prefilter over terms, ranked by ts_rank.
func (s *Store) SearchKeyword(ctx context.Context, namespace string, terms []string, topK int) ([]retrieval.Document, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	tsQuery := strings.Join(terms, " | ")

	const q = `
		SELECT id, namespace, category, source, title, vendor, doc_type, chunk_index, content, embedding
		FROM   knowledge_chunks
		WHERE  namespace = $1
		AND    to_tsvector('english', content) @@ to_tsquery('english', $2)
		ORDER  BY ts_rank(to_tsvector('english', content), to_tsquery('english', $2)) DESC
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, namespace, tsQuery, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieval postgres: search keyword: %w", err)
	}

	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (retrieval.Document, error) {
		var (
			doc retrieval.Document
			vec pgvector.Vector
		)
		if err := row.Scan(&doc.ID, &doc.Namespace, &doc.Category, &doc.Source, &doc.Title, &doc.Vendor,
			&doc.DocType, &doc.ChunkIndex, &doc.Content, &vec); err != nil {
			return retrieval.Document{}, err
		}
		doc.Embedding = vec.Slice()
		return doc, nil
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval postgres: scan keyword rows: %w", err)
	}
	if docs == nil {
		docs = []retrieval.Document{}
	}
	return docs, nil
}
