package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/campusforge/grading-api/internal/middleware"
	"github.com/campusforge/grading-api/internal/service"
	"github.com/campusforge/grading-api/internal/utils"
)

// GradingHandler wires the exercise-level grading endpoints.
type GradingHandler struct {
	grading      service.GradingService
	reevaluation service.ReevaluationService
	logger       zerolog.Logger
}

// NewGradingHandler constructs the handler.
func NewGradingHandler(grading service.GradingService, reevaluation service.ReevaluationService, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		grading:      grading,
		reevaluation: reevaluation,
		logger:       logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches grading endpoints to the exercise router group.
func (h *GradingHandler) Register(router fiber.Router) {
	router.Post("/:id/grading/reevaluate", middleware.RequireRole("instructor", "admin"), h.reevaluate)
	router.Get("/:id/grading/statistics", middleware.RequireRole("tutor", "editor", "instructor", "admin"), h.statistics)
}

func (h *GradingHandler) reevaluate(c *fiber.Ctx) error {
	exerciseID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	includeExtended := c.QueryBool("include_extended")
	summary, err := h.reevaluation.ReevaluateExercise(c.Context(), exerciseID, includeExtended, actorFromContext(c))
	if err != nil {
		if errors.Is(err, service.ErrExerciseNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "exercise not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("exercise_id", exerciseID).Msg("failed to re-evaluate exercise")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to re-evaluate exercise")
	}

	return utils.SendSuccess(c, "exercise re-evaluated", summary)
}

func (h *GradingHandler) statistics(c *fiber.Ctx) error {
	exerciseID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	statistics, err := h.grading.Statistics(c.Context(), exerciseID)
	if err != nil {
		if errors.Is(err, service.ErrExerciseNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "exercise not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("exercise_id", exerciseID).Msg("failed to compute grading statistics")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to compute grading statistics")
	}

	return utils.SendSuccess(c, "grading statistics computed", statistics)
}
