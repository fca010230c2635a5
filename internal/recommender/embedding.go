package recommender

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// DefaultEmbeddingDimensions matches the size of common sentence embedding models.
const DefaultEmbeddingDimensions = 384

// Embedder maps texts to fixed length dense vectors. Semantically similar
// texts should map to closer vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"for": {}, "from": {}, "in": {}, "into": {}, "is": {}, "it": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "this": {}, "to": {}, "with": {}, "your": {}, "you": {},
}

// HashEmbedder is a deterministic local embedder based on feature hashing of
// word unigrams and bigrams. It needs no network access and is the default
// when no embedding provider is configured.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder builds a hashing embedder. Non-positive dimensions use the default.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultEmbeddingDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Dimensions returns the vector length.
func (h *HashEmbedder) Dimensions() int {
	return h.dims
}

// Embed hashes every text independently.
func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *HashEmbedder) embed(text string) []float32 {
	counts := make(map[string]int)
	tokens := tokenize(text)
	for i, token := range tokens {
		counts[token]++
		if i > 0 {
			counts[tokens[i-1]+" "+token]++
		}
	}

	vec := make([]float64, h.dims)
	for term, count := range counts {
		sum := xxhash.Sum64String(term)
		bucket := int(sum % uint64(h.dims))
		sign := 1.0
		if (sum>>63)&1 == 1 {
			sign = -1.0
		}
		vec[bucket] += sign * (1 + math.Log(float64(count)))
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, h.dims)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// tokenize lower-cases the text and splits it into words. '#' and '+' stay
// part of a word so "c#" and "c++" survive.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '#' && r != '+'
	})
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if _, skip := stopWords[field]; skip {
			continue
		}
		tokens = append(tokens, field)
	}
	return tokens
}

func constantVector(dims int, value float32) []float32 {
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = value
	}
	return vec
}
