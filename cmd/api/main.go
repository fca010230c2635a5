package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-recommender/internal/bootstrap"
	"github.com/noah-isme/gema-recommender/internal/config"
	"github.com/noah-isme/gema-recommender/internal/handler"
	"github.com/noah-isme/gema-recommender/internal/middleware"
	"github.com/noah-isme/gema-recommender/internal/router"
	"github.com/noah-isme/gema-recommender/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, bootstrap.Options{}, logger)
	if err != nil {
		log.Fatalf("failed to initialise recommender: %v", err)
	}
	defer app.Close()

	if cfg.SeedFile != "" {
		result, err := app.Seed.SeedFile(ctx, cfg.SeedFile)
		if err != nil {
			log.Fatalf("failed to import seed file: %v", err)
		}
		logger.Info().Int64("courses", result.Courses).Int64("interactions", result.Interactions).Msg("seed file imported")
	}

	if err := app.Training.WarmStart(ctx); err != nil {
		logger.Warn().Err(err).Msg("saved model could not be loaded")
	}

	go func() {
		if _, err := app.Training.Retrain(ctx, service.TriggerStartup); err != nil && !errors.Is(err, service.ErrTrainingInProgress) {
			logger.Error().Err(err).Msg("startup training failed")
		}
	}()
	go app.Training.Run(ctx, cfg.Recommender.RetrainInterval)

	go func() {
		if err := app.Interactions.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("interaction subscriber stopped")
		}
	}()

	server := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(server, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(server, cfg, router.Dependencies{
		RecommendationHandler: handler.NewRecommendationHandler(app.Recommendations, logger),
		InteractionHandler:    handler.NewInteractionHandler(app.Interactions, logger),
		AdminHandler:          handler.NewRecommenderAdminHandler(app.Training, app.Sync, app.Validate, logger),
		SeedHandler:           handler.NewSeedHandler(app.Seed, logger),
		ModelStatus:           app.Training,
		JWTMiddleware:         middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := server.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(ctx, server)
}

func waitForShutdown(ctx context.Context, app *fiber.App) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
