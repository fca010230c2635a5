package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-recommender/internal/dto"
	"github.com/noah-isme/gema-recommender/internal/service"
	"github.com/noah-isme/gema-recommender/internal/utils"
)

// RecommenderAdminHandler exposes model training and Moodle sync operations.
type RecommenderAdminHandler struct {
	training service.TrainingService
	sync     service.CatalogSyncService
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewRecommenderAdminHandler constructs the admin handler.
func NewRecommenderAdminHandler(training service.TrainingService, sync service.CatalogSyncService, validate *validator.Validate, logger zerolog.Logger) *RecommenderAdminHandler {
	return &RecommenderAdminHandler{
		training: training,
		sync:     sync,
		validate: validate,
		logger:   logger.With().Str("component", "recommender_admin_handler").Logger(),
	}
}

// Register wires admin routes. retrainGuards typically hold a rate limiter.
func (h *RecommenderAdminHandler) Register(router fiber.Router, retrainGuards ...fiber.Handler) {
	handlers := append(append([]fiber.Handler{}, retrainGuards...), h.retrain)
	router.Post("/retrain", handlers...)
	router.Get("/status", h.status)
	router.Post("/sync-courses", h.syncCourses)
	router.Post("/sync-grades", h.syncGrades)
}

func (h *RecommenderAdminHandler) retrain(c *fiber.Ctx) error {
	run, err := h.training.Retrain(c.UserContext(), service.TriggerAdmin)
	if err != nil {
		if errors.Is(err, service.ErrTrainingInProgress) {
			return utils.SendError(c, fiber.StatusConflict, "training already in progress")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("retrain failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to retrain models")
	}
	return utils.SendSuccess(c, "models retrained", run)
}

func (h *RecommenderAdminHandler) status(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "training status", h.training.Status())
}

func (h *RecommenderAdminHandler) syncCourses(c *fiber.Ctx) error {
	result, err := h.sync.SyncCourses(c.UserContext())
	if err != nil {
		return h.syncError(c, err)
	}
	return utils.SendSuccess(c, "courses synced", result)
}

func (h *RecommenderAdminHandler) syncGrades(c *fiber.Ctx) error {
	var req dto.SyncGradesRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		}
	}
	if err := h.validate.Struct(req); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid sync request", validationDetails(err))
	}

	result, err := h.sync.SyncGrades(c.UserContext(), req.CourseID)
	if err != nil {
		return h.syncError(c, err)
	}
	return utils.SendSuccess(c, "grades synced", result)
}

func (h *RecommenderAdminHandler) syncError(c *fiber.Ctx, err error) error {
	if errors.Is(err, service.ErrMoodleUnavailable) {
		requestLogger(h.logger, c).Warn().Err(err).Msg("moodle unavailable during sync")
		return utils.SendError(c, fiber.StatusServiceUnavailable, "moodle is unavailable")
	}
	requestLogger(h.logger, c).Error().Err(err).Msg("moodle sync failed")
	return utils.SendError(c, fiber.StatusInternalServerError, "sync failed")
}
