package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "GEMA Recommender", cfg.AppName)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, "hash", cfg.Embedder)
	require.Equal(t, 384, cfg.EmbeddingDimensions)
	require.Equal(t, "gema.interactions", cfg.NATSSubject)
	require.Equal(t, 8*time.Second, cfg.AITimeout)
	require.Equal(t, 10*time.Second, cfg.MoodleTimeout)
	require.Equal(t, 5*time.Second, cfg.SourceTimeout)

	rec := cfg.Recommender
	require.InDelta(t, 0.6, rec.Weights.Collaborative, 1e-9)
	require.InDelta(t, 0.4, rec.Weights.Content, 1e-9)
	require.Equal(t, 10, rec.TopN)
	require.Equal(t, 30, rec.Collaborative.Components)
	require.Equal(t, 20, rec.Collaborative.Epochs)
	require.Equal(t, int64(42), rec.Collaborative.Seed)
	require.Equal(t, 5, rec.Collaborative.NegativeSamples)
	require.InDelta(t, 0.85, rec.Confidence, 1e-9)
	require.Equal(t, 5*time.Minute, rec.CacheTTL)
	require.Zero(t, rec.RetrainInterval)
	require.Empty(t, rec.Collaborative.Vocabulary)
	require.Equal(t, "*", cfg.CORSAllowOrigins)
	require.Empty(t, cfg.JWTSecret)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("GEMA_APP_PORT", ":9090")
	t.Setenv("GEMA_RECOMMENDER_COLLAB_WEIGHT", "0.7")
	t.Setenv("GEMA_RECOMMENDER_CONTENT_WEIGHT", "0.3")
	t.Setenv("GEMA_RECOMMENDER_FEATURE_VOCABULARY", "python, web ,databases")
	t.Setenv("GEMA_RECOMMENDER_RETRAIN_INTERVAL", "1h")
	t.Setenv("GEMA_MOODLE_URL", "https://moodle.example.com/")
	t.Setenv("GEMA_EMBEDDER", "OpenAI")
	t.Setenv("GEMA_JWT_SECRET", "s3cret")
	t.Setenv("GEMA_CORS_ALLOW_ORIGINS", "https://gema.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.InDelta(t, 0.7, cfg.Recommender.Weights.Collaborative, 1e-9)
	require.Equal(t, []string{"python", "web", "databases"}, cfg.Recommender.Collaborative.Vocabulary)
	require.Equal(t, time.Hour, cfg.Recommender.RetrainInterval)
	require.Equal(t, "https://moodle.example.com", cfg.MoodleURL)
	require.Equal(t, "openai", cfg.Embedder)
	require.Equal(t, "s3cret", cfg.JWTSecret)
	require.Equal(t, "https://gema.example.com", cfg.CORSAllowOrigins)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Run("zero weights", func(t *testing.T) {
		t.Setenv("GEMA_RECOMMENDER_COLLAB_WEIGHT", "0")
		t.Setenv("GEMA_RECOMMENDER_CONTENT_WEIGHT", "0")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("GEMA_RECOMMENDER_CACHE_TTL", "soon")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("seed without token", func(t *testing.T) {
		t.Setenv("GEMA_SEED_ENABLED", "true")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("unknown embedder", func(t *testing.T) {
		t.Setenv("GEMA_EMBEDDER", "bert")
		_, err := Load()
		require.Error(t, err)
	})
}
