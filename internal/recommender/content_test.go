package recommender

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type failingEmbedder struct{ dims int }

func (f failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("provider down")
}

func (f failingEmbedder) Dimensions() int { return f.dims }

func sampleCatalog() []Course {
	return []Course{
		{ID: "A", Title: "Python fundamentals", Description: "Variables, loops and functions in Python", Topics: []string{"python"}},
		{ID: "B", Title: "Web design", Description: "HTML and CSS layouts for the browser", Topics: []string{"web", "html"}},
		{ID: "C", Title: "Relational databases", Description: "SQL queries, joins and schema design", Topics: []string{"databases", "sql"}},
	}
}

func TestCosineSimilarity(t *testing.T) {
	v := []float32{0.3, -1.2, 4}
	require.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
	require.Zero(t, CosineSimilarity(v, []float32{0, 0, 0}))
	require.Zero(t, CosineSimilarity(v, []float32{1, 2}))
	require.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-2, 0}), 1e-9)
}

func TestHashEmbedderDeterministic(t *testing.T) {
	embedder := NewHashEmbedder(64)

	first, err := embedder.Embed(context.Background(), []string{"Python for beginners"})
	require.NoError(t, err)
	second, err := embedder.Embed(context.Background(), []string{"python FOR beginners"})
	require.NoError(t, err)

	require.Len(t, first[0], 64)
	require.Equal(t, first, second)
	require.InDelta(t, 1.0, CosineSimilarity(first[0], first[0]), 1e-6)
}

func TestContentRecommendBeforeFit(t *testing.T) {
	engine := NewContentEngine(nil, zerolog.Nop())

	_, err := engine.Recommend(context.Background(), []string{"python"}, 3)
	require.ErrorIs(t, err, ErrNotFitted)
	require.False(t, engine.Fitted())
}

func TestContentRecommendRanksMatchingCourseFirst(t *testing.T) {
	engine := NewContentEngine(NewHashEmbedder(DefaultEmbeddingDimensions), zerolog.Nop())
	require.NoError(t, engine.Fit(context.Background(), sampleCatalog()))

	results, err := engine.Recommend(context.Background(), []string{"python"}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "A", results[0].CourseID)
	require.Greater(t, results[0].Score, results[1].Score)
}

func TestContentFitIsIdempotent(t *testing.T) {
	engine := NewContentEngine(nil, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, engine.Fit(ctx, sampleCatalog()))
	first, err := engine.Recommend(ctx, []string{"databases"}, 0)
	require.NoError(t, err)
	firstGeneration := engine.Generation()

	require.NoError(t, engine.Fit(ctx, sampleCatalog()))
	second, err := engine.Recommend(ctx, []string{"databases"}, 0)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Greater(t, engine.Generation(), firstGeneration)
}

func TestContentEmptyQueryScoresZero(t *testing.T) {
	engine := NewContentEngine(nil, zerolog.Nop())
	require.NoError(t, engine.Fit(context.Background(), sampleCatalog()))

	results, err := engine.Recommend(context.Background(), nil, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, result := range results {
		require.Zero(t, result.Score)
		require.Equal(t, sampleCatalog()[i].ID, result.CourseID)
	}
}

func TestContentFitFallsBackOnEmbedderError(t *testing.T) {
	engine := NewContentEngine(failingEmbedder{dims: 8}, zerolog.Nop())
	require.NoError(t, engine.Fit(context.Background(), sampleCatalog()))
	require.True(t, engine.Fitted())

	results, err := engine.Recommend(context.Background(), []string{"python"}, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)
}
