// Package bootstrap assembles the recommender from configuration. It is shared
// by the HTTP server and the trainer CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-recommender/internal/config"
	"github.com/noah-isme/gema-recommender/internal/database"
	"github.com/noah-isme/gema-recommender/internal/embedding"
	"github.com/noah-isme/gema-recommender/internal/moodle"
	"github.com/noah-isme/gema-recommender/internal/recommender"
	"github.com/noah-isme/gema-recommender/internal/repository"
	"github.com/noah-isme/gema-recommender/internal/service"
	"github.com/noah-isme/gema-recommender/pkg/ai"
)

const embeddingCacheTTL = 7 * 24 * time.Hour

// App holds the assembled services and the connections they depend on.
type App struct {
	DB     *gorm.DB
	Redis  *redis.Client
	NATS   *nats.Conn
	Moodle *moodle.Client

	Validate      *validator.Validate
	Content       *recommender.ContentEngine
	Collaborative *recommender.CollaborativeEngine

	Recommendations service.RecommendationService
	Training        service.TrainingService
	Sync            service.CatalogSyncService
	Seed            service.SeedService
	Interactions    service.InteractionService
}

// Options toggles the optional connections. The trainer CLI skips NATS.
type Options struct {
	SkipNATS bool
}

// Build connects to the database and optional backends and wires the services.
// Redis, NATS, Moodle and OpenAI are optional; failures to reach them are
// logged and the corresponding feature is disabled.
func Build(ctx context.Context, cfg config.Config, opts Options, logger zerolog.Logger) (*App, error) {
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}

	app := &App{DB: db, Validate: validator.New(validator.WithRequiredStructEnabled())}

	if cfg.RedisURL != "" {
		client, err := database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, caching disabled")
		} else {
			app.Redis = client
		}
	}

	if cfg.NATSURL != "" && !opts.SkipNATS {
		conn, err := nats.Connect(cfg.NATSURL,
			nats.Name(cfg.AppName),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(10),
		)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, interactions stored synchronously")
		} else {
			app.NATS = conn
		}
	}

	if cfg.MoodleURL != "" {
		client, err := moodle.NewClient(moodle.Config{
			BaseURL: cfg.MoodleURL,
			Token:   cfg.MoodleToken,
			Timeout: cfg.MoodleTimeout,
			Logger:  logger,
		})
		switch {
		case errors.Is(err, moodle.ErrNotConfigured):
			logger.Warn().Msg("moodle token missing, grade lookups disabled")
		case err != nil:
			app.Close()
			return nil, fmt.Errorf("moodle client: %w", err)
		default:
			app.Moodle = client
		}
	}

	embedder, err := newEmbedder(cfg, app.Redis, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	filter, err := recommender.NewCandidateFilter(cfg.Recommender.CandidateFilter)
	if err != nil {
		app.Close()
		return nil, err
	}

	courseRepo := repository.NewCourseRepository(db)
	interactionRepo := repository.NewInteractionRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	catalog := service.NewRepositoryCatalog(courseRepo, interactionRepo, studentRepo)

	app.Content = recommender.NewContentEngine(embedder, logger)
	app.Collaborative = recommender.NewCollaborativeEngine(cfg.Recommender.Collaborative, logger)

	// Interfaces stay nil when Moodle is absent; a nil *moodle.Client would not.
	var grades service.GradeSource
	var moodleCatalog service.MoodleCatalog
	if app.Moodle != nil {
		grades = moodle.NewGradeSource(app.Moodle, cfg.MoodleCourseID, logger)
		moodleCatalog = app.Moodle
	}

	app.Recommendations = service.NewRecommendationService(
		catalog,
		grades,
		recommender.NewExtractor(recommender.KeywordMatcher(false)),
		app.Content,
		app.Collaborative,
		newExplainer(cfg, logger),
		app.Validate,
		app.Redis,
		service.RecommendationConfig{
			Weights:        cfg.Recommender.Weights,
			TopN:           cfg.Recommender.TopN,
			Confidence:     cfg.Recommender.Confidence,
			CacheTTL:       cfg.Recommender.CacheTTL,
			SourceTimeout:  cfg.SourceTimeout,
			ExplainTimeout: cfg.AITimeout,
			Filter:         filter,
		},
		logger,
	)
	app.Training = service.NewTrainingService(catalog, catalog, catalog, app.Content, app.Collaborative, service.TrainingConfig{
		Epochs:        cfg.Recommender.Collaborative.Epochs,
		ModelPath:     cfg.Recommender.ModelPath,
		SourceTimeout: cfg.SourceTimeout,
	}, logger)
	app.Sync = service.NewCatalogSyncService(moodleCatalog, courseRepo, interactionRepo, studentRepo, cfg.MoodleCourseID, logger)
	app.Seed = service.NewSeedService(courseRepo, interactionRepo, studentRepo, cfg.SeedEnabled, cfg.SeedToken, logger)
	app.Interactions = service.NewInteractionService(interactionRepo, app.NATS, cfg.NATSSubject, cfg.NATSQueue, app.Validate, logger)

	return app, nil
}

// Close releases the connections opened by Build.
func (a *App) Close() {
	if a.NATS != nil {
		a.NATS.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func newEmbedder(cfg config.Config, cache *redis.Client, logger zerolog.Logger) (recommender.Embedder, error) {
	var inner recommender.Embedder
	switch cfg.Embedder {
	case "openai":
		embedder, err := ai.NewOpenAIEmbedder(ai.EmbedderConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.AIEmbeddingModel,
			Dimensions: cfg.EmbeddingDimensions,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		inner = embedder
	default:
		inner = recommender.NewHashEmbedder(cfg.EmbeddingDimensions)
	}

	if cache == nil {
		return inner, nil
	}
	return embedding.NewCachedEmbedder(inner, cache, embeddingCacheTTL, logger), nil
}

// newExplainer returns nil when no API key is configured, which makes the
// recommender use the template explanation.
func newExplainer(cfg config.Config, logger zerolog.Logger) ai.Explainer {
	if cfg.OpenAIAPIKey == "" {
		return nil
	}
	explainer, err := ai.NewOpenAIExplainer(ai.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.AIModel,
		Logger:  logger,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("explainer disabled")
		return nil
	}
	return ai.NewCircuitBreakerExplainer(explainer, ai.DefaultBreakerSettings(), logger)
}
