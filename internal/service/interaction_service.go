package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-recommender/internal/dto"
	"github.com/noah-isme/gema-recommender/internal/models"
	"github.com/noah-isme/gema-recommender/internal/observability"
	"github.com/noah-isme/gema-recommender/internal/repository"
)

const (
	defaultInteractionQueue = "gema-recommender"
	interactionStoreTimeout = 5 * time.Second
)

// InteractionService ingests engagement events. Events are published on NATS
// when a connection is configured and stored by the queue subscriber,
// otherwise they are stored directly.
type InteractionService interface {
	Record(ctx context.Context, event dto.InteractionEvent) error
	Start(ctx context.Context) error
}

type interactionService struct {
	repo     repository.InteractionRepository
	nats     *nats.Conn
	subject  string
	queue    string
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
}

// NewInteractionService builds the interaction ingester. natsConn may be nil.
func NewInteractionService(repo repository.InteractionRepository, natsConn *nats.Conn, subject, queue string, validate *validator.Validate, logger zerolog.Logger) InteractionService {
	if queue == "" {
		queue = defaultInteractionQueue
	}
	return &interactionService{
		repo:     repo,
		nats:     natsConn,
		subject:  subject,
		queue:    queue,
		validate: validate,
		logger:   logger.With().Str("component", "interaction_service").Logger(),
		now:      time.Now,
	}
}

func (s *interactionService) Record(ctx context.Context, event dto.InteractionEvent) error {
	event = s.normalize(event)
	if err := s.validate.Struct(event); err != nil {
		return err
	}

	if s.nats == nil || s.subject == "" {
		return s.store(ctx, event)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(s.subject)
	msg.Data = payload
	if id := observability.CorrelationID(ctx); id != "" {
		msg.Header.Set(observability.CorrelationHeader, id)
	}
	if err := s.nats.PublishMsg(msg); err != nil {
		observability.InteractionEvents().WithLabelValues("publish_failed").Inc()
		return err
	}
	observability.InteractionEvents().WithLabelValues("published").Inc()
	return nil
}

// Start subscribes to the interaction subject until ctx is cancelled.
func (s *interactionService) Start(ctx context.Context) error {
	if s.nats == nil || s.subject == "" {
		return nil
	}

	sub, err := s.nats.QueueSubscribe(s.subject, s.queue, s.consume)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain interaction subscription")
		}
	}()

	s.logger.Info().Str("subject", s.subject).Str("queue", s.queue).Msg("consuming interaction events")
	return nil
}

// consume stores one message under its own deadline. Messages delivered while
// the subscription drains after shutdown are still written.
func (s *interactionService) consume(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), interactionStoreTimeout)
	defer cancel()

	s.handleMessage(observability.WithCorrelationID(ctx, msg.Header.Get(observability.CorrelationHeader)), msg.Data)
}

func (s *interactionService) handleMessage(ctx context.Context, payload []byte) {
	logger := s.logger.With().Str("correlation_id", observability.CorrelationID(ctx)).Logger()

	var event dto.InteractionEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		observability.InteractionEvents().WithLabelValues("invalid").Inc()
		logger.Warn().Err(err).Msg("invalid interaction event payload")
		return
	}
	event = s.normalize(event)
	if err := s.validate.Struct(event); err != nil {
		observability.InteractionEvents().WithLabelValues("invalid").Inc()
		logger.Warn().Err(err).Str("user_id", event.UserID).Msg("rejected interaction event")
		return
	}
	if err := s.store(ctx, event); err != nil {
		logger.Error().Err(err).Str("user_id", event.UserID).Str("course_id", event.CourseID).Msg("failed to store interaction event")
	}
}

func (s *interactionService) store(ctx context.Context, event dto.InteractionEvent) error {
	err := s.repo.Accumulate(ctx, &models.Interaction{
		UserID:     event.UserID,
		CourseID:   event.CourseID,
		Source:     models.InteractionSourceEvent,
		Weight:     event.Weight,
		OccurredAt: event.OccurredAt,
	})
	if err != nil {
		observability.InteractionEvents().WithLabelValues("error").Inc()
		return err
	}
	observability.InteractionEvents().WithLabelValues("stored").Inc()
	return nil
}

func (s *interactionService) normalize(event dto.InteractionEvent) dto.InteractionEvent {
	event.UserID = strings.TrimSpace(event.UserID)
	event.CourseID = strings.TrimSpace(event.CourseID)
	if event.Weight == 0 {
		event.Weight = 1
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}
	return event
}
