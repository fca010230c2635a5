// Package embedding provides decorators around recommender embedders.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-recommender/internal/observability"
	"github.com/noah-isme/gema-recommender/internal/recommender"
)

const cacheKeyPrefix = "gema:emb_cache:"

// CachedEmbedder stores embeddings in Redis keyed by a digest of the text.
type CachedEmbedder struct {
	inner  recommender.Embedder
	cache  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedEmbedder wraps inner with a Redis cache. A nil client disables caching.
func NewCachedEmbedder(inner recommender.Embedder, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "embedding_cache").Logger(),
	}
}

// Dimensions returns the inner embedder's vector length.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// Embed serves cached vectors and embeds only the misses, in one inner call.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.cache == nil || len(texts) == 0 {
		return c.inner.Embed(ctx, texts)
	}

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = c.cacheKey(text)
	}

	out := make([][]float32, len(texts))
	missing := make([]int, 0, len(texts))

	values, err := c.cache.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to read embedding cache")
		values = make([]interface{}, len(texts))
	}
	for i, value := range values {
		if vec, ok := c.decode(value); ok && len(vec) == c.inner.Dimensions() {
			out[i] = vec
			continue
		}
		missing = append(missing, i)
	}

	observability.EmbeddingCache().WithLabelValues("hit").Add(float64(len(texts) - len(missing)))
	observability.EmbeddingCache().WithLabelValues("miss").Add(float64(len(missing)))

	if len(missing) == 0 {
		return out, nil
	}

	pending := make([]string, len(missing))
	for j, i := range missing {
		pending[j] = texts[i]
	}

	vectors, err := c.inner.Embed(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("embed texts: %w", err)
	}
	if len(vectors) != len(pending) {
		return nil, fmt.Errorf("embed texts: got %d vectors for %d texts", len(vectors), len(pending))
	}

	pipe := c.cache.Pipeline()
	for j, i := range missing {
		out[i] = vectors[j]
		pipe.Set(ctx, keys[i], vectorToBytes(vectors[j]), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn().Err(err).Int("entries", len(missing)).Msg("failed to write embedding cache")
	}

	return out, nil
}

func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s%d:%s", cacheKeyPrefix, c.inner.Dimensions(), hex.EncodeToString(sum[:]))
}

func (c *CachedEmbedder) decode(value interface{}) ([]float32, bool) {
	if value == nil {
		return nil, false
	}
	raw, ok := value.(string)
	if !ok || raw == "" {
		return nil, false
	}
	vec, err := bytesToVector([]byte(raw))
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to parse cached embedding")
		return nil, false
	}
	return vec, true
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, errors.New("invalid embedding cache entry length")
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
