package embedding

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-recommender/internal/recommender"
)

type countingEmbedder struct {
	inner *recommender.HashEmbedder
	texts []string
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.texts = append(c.texts, texts...)
	return c.inner.Embed(ctx, texts)
}

func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }

func TestCachedEmbedderServesRepeatsFromRedis(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	inner := &countingEmbedder{inner: recommender.NewHashEmbedder(16)}
	cached := NewCachedEmbedder(inner, client, time.Minute, zerolog.Nop())
	ctx := context.Background()

	first, err := cached.Embed(ctx, []string{"python basics", "web design"})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, []string{"python basics", "web design"}, inner.texts)

	second, err := cached.Embed(ctx, []string{"web design", "databases", "python basics"})
	require.NoError(t, err)
	require.Equal(t, []string{"python basics", "web design", "databases"}, inner.texts)

	require.Equal(t, first[1], second[0])
	require.Equal(t, first[0], second[2])
	require.Len(t, server.Keys(), 3)
}

func TestCachedEmbedderWithoutRedis(t *testing.T) {
	inner := &countingEmbedder{inner: recommender.NewHashEmbedder(8)}
	cached := NewCachedEmbedder(inner, nil, time.Minute, zerolog.Nop())

	_, err := cached.Embed(context.Background(), []string{"a b"})
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), []string{"a b"})
	require.NoError(t, err)

	require.Len(t, inner.texts, 2)
	require.Equal(t, 8, cached.Dimensions())
}

func TestVectorBytesRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3}
	decoded, err := bytesToVector(vectorToBytes(vec))
	require.NoError(t, err)
	require.Equal(t, vec, decoded)

	_, err = bytesToVector([]byte{1, 2, 3})
	require.Error(t, err)
}
