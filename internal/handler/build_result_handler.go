package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/campusforge/grading-api/internal/middleware"
	"github.com/campusforge/grading-api/internal/service"
	"github.com/campusforge/grading-api/internal/utils"
)

// BuildResultHandler receives build notifications from the CI system.
type BuildResultHandler struct {
	service service.GradingService
	logger  zerolog.Logger
}

// NewBuildResultHandler constructs the handler.
func NewBuildResultHandler(service service.GradingService, logger zerolog.Logger) *BuildResultHandler {
	return &BuildResultHandler{
		service: service,
		logger:  logger.With().Str("component", "build_result_handler").Logger(),
	}
}

// Register attaches the webhook endpoint. The CI system authenticates with a
// service account token carrying the admin role.
func (h *BuildResultHandler) Register(router fiber.Router) {
	router.Post("/results",
		middleware.RequireRole("admin"),
		middleware.RateLimit("build-results", 60, time.Minute),
		h.receive,
	)
}

func (h *BuildResultHandler) receive(c *fiber.Ctx) error {
	result, err := h.service.ProcessBuildResult(c.Context(), c.Body())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidBuildPayload):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrParticipationNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "participation not found")
		case isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("failed to process build result")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to process build result")
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "build result processed", result)
}
