package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-recommender/internal/dto"
	"github.com/noah-isme/gema-recommender/internal/service"
	"github.com/noah-isme/gema-recommender/internal/utils"
)

// InteractionHandler accepts engagement events.
type InteractionHandler struct {
	service service.InteractionService
	logger  zerolog.Logger
}

// NewInteractionHandler constructs an interaction handler.
func NewInteractionHandler(service service.InteractionService, logger zerolog.Logger) *InteractionHandler {
	return &InteractionHandler{
		service: service,
		logger:  logger.With().Str("component", "interaction_handler").Logger(),
	}
}

// Register wires interaction routes.
func (h *InteractionHandler) Register(router fiber.Router) {
	router.Post("/interactions", h.record)
}

func (h *InteractionHandler) record(c *fiber.Ctx) error {
	var event dto.InteractionEvent
	if err := c.BodyParser(&event); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if subject := subjectFromContext(c); subject != "" && !isStaff(c) {
		event.UserID = subject
	}

	if err := h.service.Record(c.UserContext(), event); err != nil {
		if isValidationError(err) {
			return utils.Fail(c, fiber.StatusBadRequest, "invalid interaction", validationDetails(err))
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to record interaction")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to record interaction")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "interaction recorded", nil)
}
