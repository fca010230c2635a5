package recommender

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// fallbackEmbeddingValue fills vectors when the embedder fails so the engine
// degrades to neutral similarities instead of failing the fit.
const fallbackEmbeddingValue = 0.1

type corpusIndex struct {
	courseIDs  []string
	embeddings [][]float32
	generation uint64
}

// ContentEngine ranks courses by embedding similarity to a topic query.
type ContentEngine struct {
	embedder   Embedder
	logger     zerolog.Logger
	index      atomic.Pointer[corpusIndex]
	generation atomic.Uint64
}

// NewContentEngine constructs an unfitted content engine.
func NewContentEngine(embedder Embedder, logger zerolog.Logger) *ContentEngine {
	if embedder == nil {
		embedder = NewHashEmbedder(DefaultEmbeddingDimensions)
	}
	return &ContentEngine{
		embedder: embedder,
		logger:   logger.With().Str("component", "content_engine").Logger(),
	}
}

// Fit embeds every course and publishes a new index.
func (e *ContentEngine) Fit(ctx context.Context, courses []Course) error {
	ids := make([]string, len(courses))
	texts := make([]string, len(courses))
	for i, course := range courses {
		ids[i] = course.ID
		texts[i] = courseText(course)
	}

	var embeddings [][]float32
	if len(texts) > 0 {
		vectors, err := e.embedder.Embed(ctx, texts)
		if err != nil || len(vectors) != len(texts) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			e.logger.Warn().Err(err).Int("courses", len(texts)).Msg("embedding failed, using constant vectors")
			vectors = make([][]float32, len(texts))
			for i := range vectors {
				vectors[i] = constantVector(e.embedder.Dimensions(), fallbackEmbeddingValue)
			}
		}
		embeddings = vectors
	}

	next := &corpusIndex{
		courseIDs:  ids,
		embeddings: embeddings,
		generation: e.generation.Add(1),
	}
	e.index.Store(next)

	e.logger.Info().Int("courses", len(ids)).Uint64("generation", next.generation).Msg("content index fitted")
	return nil
}

// Recommend ranks every indexed course against the joined query topics.
func (e *ContentEngine) Recommend(ctx context.Context, queryTopics []string, topN int) ([]ScoredCandidate, error) {
	index := e.index.Load()
	if index == nil {
		return nil, ErrNotFitted
	}

	query := e.queryVector(ctx, strings.TrimSpace(strings.Join(queryTopics, " ")))

	candidates := make([]ScoredCandidate, len(index.courseIDs))
	for i, id := range index.courseIDs {
		candidates[i] = ScoredCandidate{
			CourseID: id,
			Score:    CosineSimilarity(query, index.embeddings[i]),
		}
	}

	// stable sort on score only keeps catalog order for equal similarities
	sortByScoreStable(candidates)
	return truncate(candidates, topN), nil
}

// Fitted reports whether an index has been published.
func (e *ContentEngine) Fitted() bool {
	return e.index.Load() != nil
}

// Generation identifies the currently published index, 0 when unfitted.
func (e *ContentEngine) Generation() uint64 {
	if index := e.index.Load(); index != nil {
		return index.generation
	}
	return 0
}

func (e *ContentEngine) queryVector(ctx context.Context, query string) []float32 {
	if query == "" {
		return make([]float32, e.embedder.Dimensions())
	}
	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) != 1 {
		e.logger.Warn().Err(err).Msg("query embedding failed, using zero vector")
		return make([]float32, e.embedder.Dimensions())
	}
	return vectors[0]
}

func courseText(course Course) string {
	return course.Title + " " + course.Description + " " + strings.Join(course.Topics, " ")
}
