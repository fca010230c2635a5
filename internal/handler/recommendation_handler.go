package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-recommender/internal/dto"
	"github.com/noah-isme/gema-recommender/internal/service"
	"github.com/noah-isme/gema-recommender/internal/utils"
)

// RecommendationHandler serves course recommendations.
type RecommendationHandler struct {
	service service.RecommendationService
	logger  zerolog.Logger
}

// NewRecommendationHandler constructs a recommendation handler.
func NewRecommendationHandler(service service.RecommendationService, logger zerolog.Logger) *RecommendationHandler {
	return &RecommendationHandler{
		service: service,
		logger:  logger.With().Str("component", "recommendation_handler").Logger(),
	}
}

// Register wires recommendation routes. studentGuards run before the
// per-student route.
func (h *RecommendationHandler) Register(router fiber.Router, studentGuards ...fiber.Handler) {
	router.Post("/recommendations", h.recommend)

	handlers := append(append([]fiber.Handler{}, studentGuards...), h.recommendForStudent)
	router.Get("/students/:userID/recommendations", handlers...)
}

func (h *RecommendationHandler) recommend(c *fiber.Ctx) error {
	var req dto.RecommendationRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	if subject := subjectFromContext(c); subject != "" && !isStaff(c) && subject != strings.TrimSpace(req.UserID) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	return h.respond(c, req)
}

func (h *RecommendationHandler) recommendForStudent(c *fiber.Ctx) error {
	topN, err := parseQueryInt(c, "top_n")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "top_n must be a number")
	}

	req := dto.RecommendationRequest{
		UserID:   c.Params("userID"),
		CourseID: strings.TrimSpace(c.Query("course_id")),
		TopN:     topN,
	}
	return h.respond(c, req)
}

func (h *RecommendationHandler) respond(c *fiber.Ctx, req dto.RecommendationRequest) error {
	resp, err := h.service.Recommend(c.UserContext(), req)
	if err != nil {
		if isValidationError(err) {
			return utils.Fail(c, fiber.StatusBadRequest, "invalid recommendation request", validationDetails(err))
		}
		requestLogger(h.logger, c).Error().Err(err).Str("user_id", req.UserID).Msg("failed to generate recommendations")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to generate recommendations")
	}

	message := "recommendations generated"
	if resp.Status == dto.RecommendationStatusNone {
		message = "no recommendations available"
	}
	return utils.SendSuccess(c, message, resp)
}
