package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-recommender/internal/dto"
	"github.com/noah-isme/gema-recommender/internal/observability"
	"github.com/noah-isme/gema-recommender/internal/recommender"
	"github.com/noah-isme/gema-recommender/pkg/ai"
)

const noRecommendationsExplanation = "No courses can be recommended yet. Complete a few assessments or enrol in a course to receive suggestions."

// Degraded signal names reported in responses and metrics.
const (
	signalGrades        = "grades"
	signalCatalog       = "catalog"
	signalCollaborative = "collaborative"
	signalContent       = "content"
	signalExplanation   = "explanation"
)

// ContentRanker scores courses against a topic query.
type ContentRanker interface {
	Fitted() bool
	Generation() uint64
	Recommend(ctx context.Context, queryTopics []string, topN int) ([]recommender.ScoredCandidate, error)
}

// CollaborativeRanker scores candidate courses for a known user.
type CollaborativeRanker interface {
	Trained() bool
	Generation() uint64
	Recommend(userID string, candidates []string, topN int) ([]recommender.ScoredCandidate, error)
}

// RecommendationConfig tunes the orchestration.
type RecommendationConfig struct {
	Weights        recommender.Weights
	TopN           int
	Confidence     float64
	CacheTTL       time.Duration
	SourceTimeout  time.Duration
	ExplainTimeout time.Duration
	Filter         *recommender.CandidateFilter
}

// RecommendationService produces hybrid course recommendations for a student.
type RecommendationService interface {
	Recommend(ctx context.Context, req dto.RecommendationRequest) (dto.RecommendationResponse, error)
}

type recommendationService struct {
	catalog       CatalogStore
	grades        GradeSource
	extractor     *recommender.Extractor
	content       ContentRanker
	collaborative CollaborativeRanker
	explainer     ai.Explainer
	validate      *validator.Validate
	cache         *redis.Client
	cfg           RecommendationConfig
	logger        zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// NewRecommendationService wires the orchestrator. grades, explainer and cache
// are optional.
func NewRecommendationService(catalog CatalogStore, grades GradeSource, extractor *recommender.Extractor, content ContentRanker, collaborative CollaborativeRanker, explainer ai.Explainer, validate *validator.Validate, cache *redis.Client, cfg RecommendationConfig, logger zerolog.Logger) RecommendationService {
	if extractor == nil {
		extractor = recommender.NewExtractor(nil)
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 10
	}
	if cfg.Weights.Validate() != nil {
		cfg.Weights = recommender.DefaultWeights()
	}
	return &recommendationService{
		catalog:       catalog,
		grades:        grades,
		extractor:     extractor,
		content:       content,
		collaborative: collaborative,
		explainer:     explainer,
		validate:      validate,
		cache:         cache,
		cfg:           cfg,
		logger:        logger.With().Str("component", "recommendation_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/gema-recommender/internal/service"),
		now:           time.Now,
	}
}

func (s *recommendationService) Recommend(ctx context.Context, req dto.RecommendationRequest) (dto.RecommendationResponse, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	if s.validate != nil {
		if err := s.validate.Struct(req); err != nil {
			return dto.RecommendationResponse{}, err
		}
	}

	ctx, span := s.tracer.Start(ctx, "recommendation.Recommend", trace.WithAttributes(attribute.String("user_id", req.UserID)))
	defer span.End()

	started := time.Now()
	defer func() {
		observability.RecommendationLatency().Observe(time.Since(started).Seconds())
	}()

	topN := req.TopN
	if topN <= 0 {
		topN = s.cfg.TopN
	}

	userKey := s.canonicalUser(ctx, req.UserID)

	var degraded []string
	records, ok := s.gradeRecords(ctx, userKey, req)
	if !ok {
		degraded = append(degraded, signalGrades)
	}
	signal := s.extractor.Extract(records)
	span.SetAttributes(
		attribute.Int("grade_records", len(records)),
		attribute.Int("weak_topics", len(signal.WeakTopics)),
	)

	generations := s.generations()
	cacheKey := s.cacheKey(userKey, signal, topN, generations)
	if cached, hit := s.readCache(ctx, cacheKey); hit {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		cached.UserID = req.UserID
		return cached, nil
	}

	courses, ok := s.loadCatalog(ctx)
	if !ok {
		degraded = append(degraded, signalCatalog)
	}
	candidates, failures := s.cfg.Filter.Apply(courses, signal.WeakTopics)
	if failures > 0 {
		s.logger.Warn().Int("failures", failures).Str("filter", s.cfg.Filter.String()).Msg("candidate filter failed on some courses")
	}

	byID := make(map[string]recommender.Course, len(candidates))
	candidateIDs := make([]string, 0, len(candidates))
	for _, course := range candidates {
		if _, dup := byID[course.ID]; dup {
			continue
		}
		byID[course.ID] = course
		candidateIDs = append(candidateIDs, course.ID)
	}

	var (
		collabScores, contentScores []recommender.ScoredCandidate
		collabOK, contentOK         = true, true
	)
	if len(candidateIDs) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			collabScores, collabOK = s.collaborativeScores(userKey, candidateIDs)
			return nil
		})
		g.Go(func() error {
			contentScores, contentOK = s.contentScores(gctx, signal.WeakTopics, byID)
			return nil
		})
		_ = g.Wait()
	}
	if !collabOK {
		degraded = append(degraded, signalCollaborative)
	}
	if !contentOK {
		degraded = append(degraded, signalContent)
	}

	merged := recommender.Merge(collabScores, contentScores, s.cfg.Weights)
	recommended := make([]dto.RecommendedCourse, 0, topN)
	for _, candidate := range merged {
		if len(recommended) == topN {
			break
		}
		course, exists := byID[candidate.CourseID]
		if !exists {
			continue
		}
		recommended = append(recommended, toRecommendedCourse(course, candidate.Score))
	}

	response := dto.RecommendationResponse{
		UserID:             req.UserID,
		Status:             dto.RecommendationStatusOK,
		RecommendationType: recommendationType(collabScores, contentScores),
		RecommendedCourses: recommended,
		ConfidenceScore:    s.cfg.Confidence,
		WeakTopics:         nonNil(signal.WeakTopics),
		StrongTopics:       nonNil(signal.StrongTopics),
		Models:             generations,
		GeneratedAt:        s.now().UTC(),
	}

	if len(recommended) == 0 {
		response.Status = dto.RecommendationStatusNone
		response.RecommendationType = dto.RecommendationTypeNone
		response.ConfidenceScore = 0
		response.Explanation = noRecommendationsExplanation
	} else {
		explanation, explained := s.explain(ctx, req.UserID, recommended, signal)
		if !explained {
			degraded = append(degraded, signalExplanation)
		}
		response.Explanation = explanation
	}
	response.Degraded = degraded

	observability.Recommendations().WithLabelValues(response.RecommendationType, response.Status).Inc()
	span.SetAttributes(
		attribute.String("recommendation_type", response.RecommendationType),
		attribute.Int("recommended", len(recommended)),
	)

	// degraded responses are not cached so a recovered collaborator is used on the next call
	if len(degraded) == 0 {
		s.writeCache(ctx, cacheKey, response)
	}

	s.logger.Info().
		Str("correlation_id", observability.CorrelationID(ctx)).
		Str("user_id", req.UserID).
		Str("user_key", userKey).
		Str("type", response.RecommendationType).
		Int("recommended", len(recommended)).
		Strs("degraded", degraded).
		Msg("recommendations generated")

	return response, nil
}

// canonicalUser returns the id the collaborative model and the cache know the
// user by. Without a grade source, or when resolution fails, the requested id
// is used as is.
func (s *recommendationService) canonicalUser(ctx context.Context, userID string) string {
	if s.grades == nil {
		return userID
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	canonical, err := s.grades.CanonicalUserID(ctx, userID)
	if err != nil || strings.TrimSpace(canonical) == "" {
		s.logger.Debug().Err(err).Str("user_id", userID).Msg("user id not resolved, using it as given")
		return userID
	}
	return canonical
}

func (s *recommendationService) gradeRecords(ctx context.Context, userKey string, req dto.RecommendationRequest) ([]recommender.GradeRecord, bool) {
	if req.Grades != nil {
		records := make([]recommender.GradeRecord, 0, len(req.Grades))
		for _, grade := range req.Grades {
			records = append(records, recommender.GradeRecord{
				ItemName: grade.ItemName,
				RawScore: grade.RawScore,
				MaxScore: grade.MaxScore,
				Tags:     grade.Tags,
			})
		}
		return records, true
	}
	if s.grades == nil {
		return nil, true
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	records, err := s.grades.GradeRecords(ctx, userKey, req.CourseID)
	if err != nil {
		s.degrade(signalGrades, err)
		return nil, false
	}
	return records, true
}

func (s *recommendationService) loadCatalog(ctx context.Context) ([]recommender.Course, bool) {
	if s.catalog == nil {
		return nil, true
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	courses, err := s.catalog.ListCourses(ctx)
	if err != nil {
		s.degrade(signalCatalog, err)
		return nil, false
	}
	return courses, true
}

// collaborativeScores returns nil without degrading when the model is not
// trained yet or the user is a cold start.
func (s *recommendationService) collaborativeScores(userID string, candidateIDs []string) ([]recommender.ScoredCandidate, bool) {
	if s.collaborative == nil || !s.collaborative.Trained() {
		observability.SignalDegraded().WithLabelValues(signalCollaborative, "untrained").Inc()
		return nil, true
	}
	scores, err := s.collaborative.Recommend(userID, candidateIDs, 0)
	switch {
	case err == nil:
		return scores, true
	case errors.Is(err, recommender.ErrUnknownUser):
		observability.SignalDegraded().WithLabelValues(signalCollaborative, "unknown_user").Inc()
		s.logger.Debug().Str("user_id", userID).Msg("cold start user, using content scores only")
		return nil, true
	case errors.Is(err, recommender.ErrNotTrained):
		return nil, true
	default:
		s.degrade(signalCollaborative, err)
		return nil, false
	}
}

func (s *recommendationService) contentScores(ctx context.Context, weakTopics []string, candidates map[string]recommender.Course) ([]recommender.ScoredCandidate, bool) {
	if s.content == nil || !s.content.Fitted() {
		observability.SignalDegraded().WithLabelValues(signalContent, "untrained").Inc()
		return nil, true
	}
	scores, err := s.content.Recommend(ctx, weakTopics, 0)
	if err != nil {
		if errors.Is(err, recommender.ErrNotFitted) {
			return nil, true
		}
		s.degrade(signalContent, err)
		return nil, false
	}

	// normalisation in the merge runs over the candidate set only
	filtered := scores[:0:0]
	for _, score := range scores {
		if _, ok := candidates[score.CourseID]; ok {
			filtered = append(filtered, score)
		}
	}
	return filtered, true
}

func (s *recommendationService) explain(ctx context.Context, userID string, recommended []dto.RecommendedCourse, signal recommender.TopicSignal) (string, bool) {
	if s.explainer == nil {
		return ai.FallbackExplanation, true
	}

	if s.cfg.ExplainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ExplainTimeout)
		defer cancel()
	}

	titles := make([]string, 0, len(recommended))
	for _, course := range recommended {
		titles = append(titles, course.Title)
	}

	text, err := s.explainer.Explain(ctx, ai.ExplanationInput{
		UserID:       userID,
		CourseTitles: titles,
		WeakTopics:   signal.WeakTopics,
	})
	text = strings.TrimSpace(text)
	if err == nil && text == "" {
		err = errors.New("empty explanation")
	}
	if err != nil {
		s.degrade(signalExplanation, err)
		return ai.FallbackExplanation, false
	}
	return text, true
}

func (s *recommendationService) degrade(signal string, err error) {
	reason := "error"
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "timeout"
	}
	observability.SignalDegraded().WithLabelValues(signal, reason).Inc()
	s.logger.Warn().Err(err).Str("signal", signal).Str("reason", reason).Msg("recommendation signal degraded")
}

func (s *recommendationService) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.SourceTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.SourceTimeout)
}

func (s *recommendationService) generations() dto.ModelGenerations {
	var generations dto.ModelGenerations
	if s.content != nil {
		generations.Content = s.content.Generation()
	}
	if s.collaborative != nil {
		generations.Collaborative = s.collaborative.Generation()
	}
	return generations
}

func (s *recommendationService) cacheKey(userID string, signal recommender.TopicSignal, topN int, generations dto.ModelGenerations) string {
	fingerprint := xxhash.Sum64String(strings.Join(signal.WeakTopics, "\x1f") + "\x1e" + strings.Join(signal.StrongTopics, "\x1f"))
	return fmt.Sprintf("recommendations:%s:%d:%d:%d:%016x", userID, topN, generations.Content, generations.Collaborative, fingerprint)
}

func (s *recommendationService) readCache(ctx context.Context, key string) (dto.RecommendationResponse, bool) {
	if s.cache == nil {
		return dto.RecommendationResponse{}, false
	}
	cached, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read recommendation cache")
		}
		observability.RecommendationCache().WithLabelValues("miss").Inc()
		return dto.RecommendationResponse{}, false
	}
	var response dto.RecommendationResponse
	if err := json.Unmarshal([]byte(cached), &response); err != nil {
		observability.RecommendationCache().WithLabelValues("miss").Inc()
		return dto.RecommendationResponse{}, false
	}
	observability.RecommendationCache().WithLabelValues("hit").Inc()
	return response, true
}

func (s *recommendationService) writeCache(ctx context.Context, key string, response dto.RecommendationResponse) {
	if s.cache == nil || s.cfg.CacheTTL <= 0 {
		return
	}
	payload, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cfg.CacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store recommendation cache")
	}
}

func recommendationType(collab, content []recommender.ScoredCandidate) string {
	switch {
	case len(collab) > 0 && len(content) > 0:
		return dto.RecommendationTypeHybrid
	case len(collab) > 0:
		return dto.RecommendationTypeCollaborative
	case len(content) > 0:
		return dto.RecommendationTypeContent
	default:
		return dto.RecommendationTypeNone
	}
}

func toRecommendedCourse(course recommender.Course, score float64) dto.RecommendedCourse {
	return dto.RecommendedCourse{
		ID:          course.ID,
		Title:       course.Title,
		Description: course.Description,
		Platform:    course.Platform,
		Difficulty:  course.Difficulty,
		Topics:      nonNil(course.Topics),
		Score:       score,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
