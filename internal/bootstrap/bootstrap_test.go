package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-recommender/internal/config"
	"github.com/noah-isme/gema-recommender/internal/dto"
	"github.com/noah-isme/gema-recommender/internal/recommender"
	"github.com/noah-isme/gema-recommender/internal/service"
)

const bootstrapSeed = `
courses:
  - {id: A, title: Python fundamentals, topics: [python]}
  - {id: B, title: Web design, topics: [web]}
interactions:
  - {user_id: U1, course_id: B, weight: 1}
  - {user_id: U2, course_id: A, weight: 1}
`

func testConfig(dsn string) config.Config {
	return config.Config{
		AppName:             "GEMA Recommender",
		DatabaseURL:         dsn,
		Embedder:            "hash",
		EmbeddingDimensions: 64,
		Recommender: config.RecommenderConfig{
			Weights:       recommender.DefaultWeights(),
			TopN:          5,
			Collaborative: recommender.DefaultCollaborativeConfig(),
			Confidence:    0.85,
		},
	}
}

func TestBuildWiresServices(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig("sqlite:file:bootstrap_build?mode=memory&cache=shared")
	cfg.RedisURL = "redis://" + mr.Addr()

	app, err := Build(context.Background(), cfg, Options{SkipNATS: true}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	require.NotNil(t, app.Redis)
	require.Nil(t, app.NATS)
	require.Nil(t, app.Moodle)

	ctx := context.Background()
	_, err = app.Seed.Seed(ctx, "", []byte(bootstrapSeed))
	require.ErrorIs(t, err, service.ErrSeedDisabled)

	require.NoError(t, seedFromString(t, app))
	_, err = app.Training.Retrain(ctx, service.TriggerCLI)
	require.NoError(t, err)

	resp, err := app.Recommendations.Recommend(ctx, dto.RecommendationRequest{
		UserID: "U1",
		Grades: []dto.GradeRecordRequest{},
	})
	require.NoError(t, err)
	require.Equal(t, dto.RecommendationStatusOK, resp.Status)
	require.NotEmpty(t, resp.RecommendedCourses)

	_, err = app.Sync.SyncCourses(ctx)
	require.ErrorIs(t, err, service.ErrMoodleUnavailable)
}

func TestBuildRejectsBadFilter(t *testing.T) {
	cfg := testConfig("sqlite:file:bootstrap_filter?mode=memory&cache=shared")
	cfg.Recommender.CandidateFilter = "course.topics +"

	_, err := Build(context.Background(), cfg, Options{SkipNATS: true}, zerolog.Nop())
	require.Error(t, err)
}

func seedFromString(t *testing.T, app *App) error {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bootstrapSeed), 0o600))
	_, err := app.Seed.SeedFile(context.Background(), path)
	return err
}
