package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-recommender/internal/dto"
	"github.com/noah-isme/gema-recommender/internal/observability"
	"github.com/noah-isme/gema-recommender/internal/recommender"
)

// Training triggers.
const (
	TriggerStartup  = "startup"
	TriggerInterval = "interval"
	TriggerAdmin    = "admin"
	TriggerCLI      = "cli"
)

// ErrTrainingInProgress indicates a retrain was requested while one is running.
var ErrTrainingInProgress = errors.New("model training already in progress")

// ContentTrainer is a content ranker that can be refitted.
type ContentTrainer interface {
	ContentRanker
	Fit(ctx context.Context, courses []recommender.Course) error
}

// CollaborativeTrainer is a collaborative ranker that can be retrained and persisted.
type CollaborativeTrainer interface {
	CollaborativeRanker
	KnownFeatures(features recommender.Features) (recommender.Features, []string)
	Prepare(interactions []recommender.Interaction, userFeatures, itemFeatures recommender.Features) error
	Train(ctx context.Context, epochs int) error
	Save(path string) error
	Load(path string) error
	Stats() recommender.ModelStats
}

// TrainingConfig configures model training.
type TrainingConfig struct {
	Epochs        int
	ModelPath     string
	SourceTimeout time.Duration
}

// TrainingService rebuilds the recommender models off the request path.
type TrainingService interface {
	Retrain(ctx context.Context, trigger string) (dto.TrainingRunResponse, error)
	WarmStart(ctx context.Context) error
	Run(ctx context.Context, interval time.Duration)
	Status() dto.TrainingStatusResponse
}

type trainingService struct {
	catalog       CatalogStore
	interactions  InteractionSource
	students      StudentFeatureSource
	content       ContentTrainer
	collaborative CollaborativeTrainer
	cfg           TrainingConfig
	logger        zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time

	running atomic.Bool

	mu        sync.RWMutex
	lastRun   *dto.TrainingRunResponse
	lastErr   string
	lastErrAt *time.Time
}

// NewTrainingService builds the training coordinator. students may be nil.
func NewTrainingService(catalog CatalogStore, interactions InteractionSource, students StudentFeatureSource, content ContentTrainer, collaborative CollaborativeTrainer, cfg TrainingConfig, logger zerolog.Logger) TrainingService {
	return &trainingService{
		catalog:       catalog,
		interactions:  interactions,
		students:      students,
		content:       content,
		collaborative: collaborative,
		cfg:           cfg,
		logger:        logger.With().Str("component", "training_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/gema-recommender/internal/service"),
		now:           time.Now,
	}
}

// Retrain refits the content index and retrains the collaborative model. Only
// one run is allowed at a time; concurrent calls get ErrTrainingInProgress.
func (s *trainingService) Retrain(ctx context.Context, trigger string) (dto.TrainingRunResponse, error) {
	if !s.running.CompareAndSwap(false, true) {
		return dto.TrainingRunResponse{}, ErrTrainingInProgress
	}
	defer s.running.Store(false)

	ctx, span := s.tracer.Start(ctx, "training.Retrain", trace.WithAttributes(attribute.String("trigger", trigger)))
	defer span.End()

	started := time.Now()
	run, err := s.train(ctx, trigger)
	elapsed := time.Since(started)
	observability.TrainingDuration().Observe(elapsed.Seconds())

	if err != nil {
		observability.TrainingRuns().WithLabelValues(trigger, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.recordFailure(err)
		s.logger.Error().Err(err).Str("trigger", trigger).Dur("elapsed", elapsed).Msg("model training failed")
		return dto.TrainingRunResponse{}, err
	}

	run.Duration = elapsed
	run.FinishedAt = s.now().UTC()
	observability.TrainingRuns().WithLabelValues(trigger, "success").Inc()
	observability.ModelGeneration().WithLabelValues("content").Set(float64(run.ContentGen))
	observability.ModelGeneration().WithLabelValues("collaborative").Set(float64(run.CollaborativeGen))

	s.mu.Lock()
	s.lastRun = &run
	s.mu.Unlock()

	s.logger.Info().
		Str("trigger", trigger).
		Int("courses", run.Courses).
		Int("interactions", run.Interactions).
		Bool("collaborative", run.CollaborativeOK).
		Dur("elapsed", elapsed).
		Msg("model training completed")
	return run, nil
}

func (s *trainingService) train(ctx context.Context, trigger string) (dto.TrainingRunResponse, error) {
	var (
		courses      []recommender.Course
		interactions []recommender.Interaction
		userFeatures recommender.Features
	)

	loadCtx, cancel := s.bounded(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(loadCtx)
	g.Go(func() error {
		items, err := s.catalog.ListCourses(gctx)
		if err != nil {
			return fmt.Errorf("load courses: %w", err)
		}
		courses = items
		return nil
	})
	g.Go(func() error {
		items, err := s.interactions.ListInteractions(gctx)
		if err != nil {
			return fmt.Errorf("load interactions: %w", err)
		}
		interactions = items
		return nil
	})
	if s.students != nil {
		g.Go(func() error {
			features, err := s.students.StudentFeatures(gctx)
			if err != nil {
				return fmt.Errorf("load student features: %w", err)
			}
			userFeatures = features
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return dto.TrainingRunResponse{}, err
	}

	if err := s.content.Fit(ctx, courses); err != nil {
		return dto.TrainingRunResponse{}, fmt.Errorf("fit content index: %w", err)
	}

	run := dto.TrainingRunResponse{
		Trigger:      trigger,
		Courses:      len(courses),
		Interactions: len(interactions),
		ContentGen:   s.content.Generation(),
	}

	if len(interactions) == 0 {
		s.logger.Warn().Msg("no interactions recorded, keeping the previous collaborative model")
		run.CollaborativeGen = s.collaborative.Generation()
		return run, nil
	}

	itemFeatures := make(recommender.Features, len(courses))
	for _, course := range courses {
		if len(course.Topics) > 0 {
			itemFeatures[course.ID] = course.Topics
		}
	}

	userFeatures = s.knownFeatures("student", userFeatures)
	itemFeatures = s.knownFeatures("course", itemFeatures)

	if err := s.collaborative.Prepare(interactions, userFeatures, itemFeatures); err != nil {
		return dto.TrainingRunResponse{}, fmt.Errorf("prepare collaborative dataset: %w", err)
	}
	if err := s.collaborative.Train(ctx, s.cfg.Epochs); err != nil {
		return dto.TrainingRunResponse{}, fmt.Errorf("train collaborative model: %w", err)
	}

	if s.cfg.ModelPath != "" {
		if err := s.collaborative.Save(s.cfg.ModelPath); err != nil {
			// the live model is already published; only persistence failed
			s.logger.Error().Err(err).Str("path", s.cfg.ModelPath).Msg("failed to persist collaborative model")
		}
	}

	stats := s.collaborative.Stats()
	run.Users = stats.Users
	run.Items = stats.Items
	run.CollaborativeGen = stats.Generation
	run.CollaborativeOK = true
	return run, nil
}

// WarmStart loads a persisted collaborative model so recommendations can use
// it before the first retrain completes.
func (s *trainingService) WarmStart(ctx context.Context) error {
	if s.cfg.ModelPath == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.collaborative.Load(s.cfg.ModelPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info().Str("path", s.cfg.ModelPath).Msg("no persisted collaborative model")
			return nil
		}
		return fmt.Errorf("load collaborative model: %w", err)
	}

	observability.ModelGeneration().WithLabelValues("collaborative").Set(float64(s.collaborative.Generation()))
	return nil
}

// Run retrains on every tick until ctx is done. A zero interval disables it.
func (s *trainingService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Retrain(ctx, TriggerInterval); err != nil && errors.Is(err, ErrTrainingInProgress) {
				s.logger.Debug().Msg("skipping scheduled retrain, another run is active")
			}
		}
	}
}

func (s *trainingService) Status() dto.TrainingStatusResponse {
	stats := s.collaborative.Stats()
	status := dto.TrainingStatusResponse{
		Running:            s.running.Load(),
		ContentFitted:      s.content.Fitted(),
		CollaborativeReady: s.collaborative.Trained(),
		Models: dto.ModelGenerations{
			Content:       s.content.Generation(),
			Collaborative: stats.Generation,
		},
		Users:        stats.Users,
		Items:        stats.Items,
		Interactions: stats.Interactions,
	}
	if !stats.TrainedAt.IsZero() {
		trainedAt := stats.TrainedAt
		status.CollaborativeAt = &trainedAt
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastRun != nil {
		run := *s.lastRun
		status.LastRun = &run
	}
	status.LastError = s.lastErr
	status.LastErrorOccurredAt = s.lastErrAt
	return status
}

// knownFeatures drops features the collaborative vocabulary does not know, so
// an unexpected catalog tag costs that tag only.
func (s *trainingService) knownFeatures(kind string, features recommender.Features) recommender.Features {
	kept, dropped := s.collaborative.KnownFeatures(features)
	if len(dropped) > 0 {
		s.logger.Warn().Str("kind", kind).Strs("features", dropped).Msg("ignoring features outside the vocabulary")
	}
	return kept
}

func (s *trainingService) recordFailure(err error) {
	at := s.now().UTC()
	s.mu.Lock()
	s.lastErr = err.Error()
	s.lastErrAt = &at
	s.mu.Unlock()
}

func (s *trainingService) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.SourceTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.SourceTimeout)
}
