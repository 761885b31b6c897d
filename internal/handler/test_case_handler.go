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

// TestCaseHandler wires the test case grading configuration endpoints.
type TestCaseHandler struct {
	service service.TestCaseService
	logger  zerolog.Logger
}

// NewTestCaseHandler constructs the handler.
func NewTestCaseHandler(service service.TestCaseService, logger zerolog.Logger) *TestCaseHandler {
	return &TestCaseHandler{
		service: service,
		logger:  logger.With().Str("component", "test_case_handler").Logger(),
	}
}

// Register attaches test case endpoints to the exercise router group.
func (h *TestCaseHandler) Register(router fiber.Router) {
	router.Get("/:id/test-cases", middleware.RequireRole("tutor", "editor", "instructor", "admin"), h.list)
	router.Patch("/:id/test-cases", middleware.RequireRole("editor", "instructor", "admin"), h.bulkUpdate)
	router.Post("/:id/test-cases/reset", middleware.RequireRole("instructor", "admin"), h.reset)
}

func (h *TestCaseHandler) list(c *fiber.Ctx) error {
	exerciseID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	testCases, err := h.service.List(c.Context(), exerciseID)
	if err != nil {
		if errors.Is(err, service.ErrExerciseNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "exercise not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("exercise_id", exerciseID).Msg("failed to list test cases")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list test cases")
	}

	return utils.SendSuccess(c, "test cases retrieved", testCases)
}

func (h *TestCaseHandler) bulkUpdate(c *fiber.Ctx) error {
	exerciseID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.TestCaseBulkUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	testCases, err := h.service.BulkUpdate(c.Context(), exerciseID, payload, actorFromContext(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExerciseNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "exercise not found")
		case errors.Is(err, service.ErrTestCaseNotInExercise):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		case isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Uint("exercise_id", exerciseID).Msg("failed to update test cases")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to update test cases")
		}
	}

	return utils.SendSuccess(c, "test cases updated", testCases)
}

func (h *TestCaseHandler) reset(c *fiber.Ctx) error {
	exerciseID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	testCases, err := h.service.Reset(c.Context(), exerciseID, actorFromContext(c))
	if err != nil {
		if errors.Is(err, service.ErrExerciseNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "exercise not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("exercise_id", exerciseID).Msg("failed to reset test cases")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to reset test cases")
	}

	return utils.SendSuccess(c, "test cases reset", testCases)
}
