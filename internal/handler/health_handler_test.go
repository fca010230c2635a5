package handler_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-recommender/internal/config"
	"github.com/noah-isme/gema-recommender/internal/dto"
	"github.com/noah-isme/gema-recommender/internal/handler"
)

type healthResponse struct {
	Success bool                   `json:"success"`
	Data    handler.HealthResponse `json:"data"`
}

func TestHealthCheck(t *testing.T) {
	cfg := config.Config{AppName: "GEMA Recommender", AppEnv: "test"}

	app := fiber.New()
	app.Get("/api/v1/health", handler.HealthCheck(cfg, nil))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload healthResponse
	decodeResponse(t, resp, &payload)
	assert.True(t, payload.Success)
	assert.Equal(t, "ok", payload.Data.Status)
	assert.Equal(t, "GEMA Recommender", payload.Data.Service)
	assert.False(t, payload.Data.ModelLoaded)
}

func TestHealthCheckReportsModels(t *testing.T) {
	training := &stubTrainingService{status: dto.TrainingStatusResponse{
		CollaborativeReady: true,
		Models:             dto.ModelGenerations{Collaborative: 4},
	}}

	app := fiber.New()
	app.Get("/api/v1/health", handler.HealthCheck(config.Config{AppName: "GEMA Recommender"}, training))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)

	var payload healthResponse
	decodeResponse(t, resp, &payload)
	assert.True(t, payload.Data.ModelLoaded)
	assert.Equal(t, uint64(4), payload.Data.Models.Collaborative)
}
