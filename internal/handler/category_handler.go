package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/campusforge/grading-api/internal/dto"
	"github.com/campusforge/grading-api/internal/middleware"
	"github.com/campusforge/grading-api/internal/service"
	"github.com/campusforge/grading-api/internal/utils"
)

// CategoryHandler wires the static code analysis category endpoints.
type CategoryHandler struct {
	service service.CategoryService
	logger  zerolog.Logger
}

// NewCategoryHandler constructs the handler.
func NewCategoryHandler(service service.CategoryService, logger zerolog.Logger) *CategoryHandler {
	return &CategoryHandler{
		service: service,
		logger:  logger.With().Str("component", "category_handler").Logger(),
	}
}

// Register attaches category endpoints to the exercise router group.
func (h *CategoryHandler) Register(router fiber.Router) {
	router.Get("/:id/categories", middleware.RequireRole("tutor", "editor", "instructor", "admin"), h.list)
	router.Patch("/:id/categories", middleware.RequireRole("editor", "instructor", "admin"), h.bulkUpdate)
	router.Post("/:id/categories/import", middleware.RequireRole("instructor", "admin"), h.importFrom)
}

func (h *CategoryHandler) list(c *fiber.Ctx) error {
	exerciseID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	categories, err := h.service.List(c.Context(), exerciseID)
	if err != nil {
		if errors.Is(err, service.ErrExerciseNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "exercise not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("exercise_id", exerciseID).Msg("failed to list categories")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list categories")
	}

	return utils.SendSuccess(c, "categories retrieved", categories)
}

func (h *CategoryHandler) bulkUpdate(c *fiber.Ctx) error {
	exerciseID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.CategoryBulkUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	categories, err := h.service.BulkUpdate(c.Context(), exerciseID, payload, actorFromContext(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExerciseNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "exercise not found")
		case errors.Is(err, service.ErrCategoryNotInExercise):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrConfigurationInconsistency):
			return utils.SendError(c, fiber.StatusConflict, err.Error())
		case isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Uint("exercise_id", exerciseID).Msg("failed to update categories")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to update categories")
		}
	}

	return utils.SendSuccess(c, "categories updated", categories)
}

func (h *CategoryHandler) importFrom(c *fiber.Ctx) error {
	exerciseID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.CategoryImportRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	categories, err := h.service.ImportFrom(c.Context(), exerciseID, payload, actorFromContext(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExerciseNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "exercise not found")
		case errors.Is(err, service.ErrConfigurationInconsistency):
			return utils.SendError(c, fiber.StatusConflict, err.Error())
		case isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Uint("exercise_id", exerciseID).Msg("failed to import categories")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to import categories")
		}
	}

	return utils.SendSuccess(c, "categories imported", categories)
}
