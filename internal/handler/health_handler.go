package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-recommender/internal/config"
	"github.com/noah-isme/gema-recommender/internal/dto"
	"github.com/noah-isme/gema-recommender/internal/utils"
)

// ModelStatus reports the readiness of the recommender models.
type ModelStatus interface {
	Status() dto.TrainingStatusResponse
}

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string               `json:"status"`
	Timestamp   time.Time            `json:"timestamp"`
	Service     string               `json:"service"`
	Environment string               `json:"environment"`
	ModelLoaded bool                 `json:"model_loaded"`
	Models      dto.ModelGenerations `json:"model_generation"`
}

// HealthCheck returns a handler that reports application health information.
// models may be nil.
func HealthCheck(cfg config.Config, models ModelStatus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
		}
		if models != nil {
			status := models.Status()
			payload.ModelLoaded = status.ContentFitted || status.CollaborativeReady
			payload.Models = status.Models
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
