package retrieval

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client with two TTL-scoped namespaces: the query cache
// (final formatted answers, §6's query_cache_ttl_seconds, default 1h) and
// the embedding cache (raw vectors, default 7d). [Pipeline] uses only the
// embedding cache; it never calls GetQuery or SetQuery.
type Cache struct {
	client       *redis.Client
	queryTTL     time.Duration
	embeddingTTL time.Duration
}

// NewCache wraps client with the given TTLs. A nil client makes every method
// a cache-miss no-op, so the pipeline runs uncached when Redis is disabled.
func NewCache(client *redis.Client, queryTTL, embeddingTTL time.Duration) *Cache {
	return &Cache{client: client, queryTTL: queryTTL, embeddingTTL: embeddingTTL}
}

func (c *Cache) queryKey(namespace, query string) string {
	return "retrieval:query:" + namespace + ":" + query
}

func (c *Cache) embeddingKey(text string) string {
	return "retrieval:embedding:" + text
}

// GetQuery returns a cached formatted answer for (namespace, query), or
// ("", false) on a miss or when caching is disabled.
func (c *Cache) GetQuery(ctx context.Context, namespace, query string) (string, bool) {
	if c.client == nil {
		return "", false
	}
	val, err := c.client.Get(ctx, c.queryKey(namespace, query)).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

// SetQuery caches answer for (namespace, query) under the query TTL.
func (c *Cache) SetQuery(ctx context.Context, namespace, query, answer string) {
	if c.client == nil {
		return
	}
	c.client.Set(ctx, c.queryKey(namespace, query), answer, c.queryTTL)
}

// GetEmbedding returns a cached embedding vector for text, or (nil, false)
// on a miss or when caching is disabled.
func (c *Cache) GetEmbedding(ctx context.Context, text string) ([]float32, bool) {
	if c.client == nil {
		return nil, false
	}
	val, err := c.client.Get(ctx, c.embeddingKey(text)).Bytes()
	if err != nil {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(val, &vec); err != nil {
		return nil, false
	}
	return vec, true
}

// SetEmbedding caches embedding for text under the embedding TTL.
func (c *Cache) SetEmbedding(ctx context.Context, text string, embedding []float32) {
	if c.client == nil {
		return
	}
	encoded, err := json.Marshal(embedding)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.embeddingKey(text), encoded, c.embeddingTTL)
}
