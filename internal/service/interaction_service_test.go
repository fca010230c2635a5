package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-recommender/internal/dto"
	"github.com/noah-isme/gema-recommender/internal/models"
	"github.com/noah-isme/gema-recommender/internal/repository"
)

func TestInteractionServiceRecordAccumulates(t *testing.T) {
	db := setupRecommenderDB(t)
	repo := repository.NewInteractionRepository(db)
	svc := NewInteractionService(repo, nil, "gema.interactions", "", validator.New(), zerolog.Nop())

	require.NoError(t, svc.Record(context.Background(), dto.InteractionEvent{UserID: " U1 ", CourseID: "B"}))
	require.NoError(t, svc.Record(context.Background(), dto.InteractionEvent{UserID: "U1", CourseID: "B", Weight: 2.5}))

	items, err := repo.ListByUser(context.Background(), "U1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, models.InteractionSourceEvent, items[0].Source)
	require.InDelta(t, 3.5, items[0].Weight, 1e-9)
	require.False(t, items[0].OccurredAt.IsZero())

	// no connection means there is nothing to subscribe to
	require.NoError(t, svc.Start(context.Background()))
}

func TestInteractionServiceRejectsInvalidEvents(t *testing.T) {
	db := setupRecommenderDB(t)
	repo := repository.NewInteractionRepository(db)
	svc := NewInteractionService(repo, nil, "", "", validator.New(), zerolog.Nop())

	err := svc.Record(context.Background(), dto.InteractionEvent{UserID: "U1", CourseID: "B", Weight: -1})
	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)

	impl := svc.(*interactionService)
	impl.handleMessage(context.Background(), []byte("{not json"))
	impl.handleMessage(context.Background(), []byte(`{"user_id":"","course_id":"B"}`))
	impl.handleMessage(context.Background(), []byte(`{"user_id":"U3","course_id":"C","weight":4}`))

	total, err := repo.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
}

func TestInteractionServiceConsumeStoresWithOwnDeadline(t *testing.T) {
	db := setupRecommenderDB(t)
	repo := repository.NewInteractionRepository(db)
	svc := NewInteractionService(repo, nil, "gema.interactions", "", validator.New(), zerolog.Nop())
	impl := svc.(*interactionService)

	msg := nats.NewMsg("gema.interactions")
	msg.Data = []byte(`{"user_id":"U5","course_id":"A","weight":2}`)
	msg.Header.Set("X-Correlation-ID", "corr-1")
	impl.consume(msg)

	items, err := repo.ListByUser(context.Background(), "U5")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.InDelta(t, 2.0, items[0].Weight, 1e-9)
}
