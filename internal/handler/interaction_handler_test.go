package handler_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-recommender/internal/dto"
	"github.com/noah-isme/gema-recommender/internal/handler"
)

type stubInteractionService struct {
	events []dto.InteractionEvent
	err    error
}

func (s *stubInteractionService) Record(_ context.Context, event dto.InteractionEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *stubInteractionService) Start(context.Context) error { return nil }

func postInteraction(t *testing.T, app *fiber.App, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v2/interactions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestInteractionHandlerAcceptsEvent(t *testing.T) {
	svc := &stubInteractionService{}
	app := fiber.New()
	handler.NewInteractionHandler(svc, zerolog.Nop()).Register(app.Group("/api/v2"))

	resp := postInteraction(t, app, `{"user_id":"U1","course_id":"B","weight":2}`)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	require.Len(t, svc.events, 1)
	require.Equal(t, "U1", svc.events[0].UserID)
	require.Equal(t, 2.0, svc.events[0].Weight)
}

func TestInteractionHandlerPinsStudentSubject(t *testing.T) {
	svc := &stubInteractionService{}
	app := fiber.New()
	v2 := app.Group("/api/v2", asUser("U7", "student"))
	handler.NewInteractionHandler(svc, zerolog.Nop()).Register(v2)

	resp := postInteraction(t, app, `{"user_id":"someone-else","course_id":"B"}`)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	require.Equal(t, "U7", svc.events[0].UserID)
}

func TestInteractionHandlerErrors(t *testing.T) {
	validationErr := validator.New().Struct(dto.InteractionEvent{})
	require.Error(t, validationErr)

	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "malformed body", body: `{`, status: fiber.StatusBadRequest},
		{name: "validation", body: `{"course_id":"B"}`, err: validationErr, status: fiber.StatusBadRequest},
		{name: "storage failure", body: `{"user_id":"U1","course_id":"B"}`, err: errors.New("db down"), status: fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			handler.NewInteractionHandler(&stubInteractionService{err: tc.err}, zerolog.Nop()).Register(app.Group("/api/v2"))

			resp := postInteraction(t, app, tc.body)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
