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

// AssessmentHandler wires the manual assessment endpoints.
type AssessmentHandler struct {
	service service.AssessmentService
	logger  zerolog.Logger
}

// NewAssessmentHandler constructs the handler.
func NewAssessmentHandler(service service.AssessmentService, logger zerolog.Logger) *AssessmentHandler {
	return &AssessmentHandler{
		service: service,
		logger:  logger.With().Str("component", "assessment_handler").Logger(),
	}
}

// Register attaches assessment endpoints to the router group.
func (h *AssessmentHandler) Register(router fiber.Router) {
	staff := middleware.RequireRole("tutor", "editor", "instructor", "admin")
	router.Post("/lock", staff, h.lock)
	router.Put("/:id/submit", staff, h.submit)
	router.Put("/:id/override", staff, h.override)
	router.Post("/:id/complaint", staff, h.decideComplaint)
	router.Delete("/:id", staff, h.remove)
}

func (h *AssessmentHandler) lock(c *fiber.Ctx) error {
	var payload dto.AssessmentLockRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.Lock(c.Context(), payload, actorFromContext(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSubmissionNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "submission not found")
		case errors.Is(err, service.ErrLockConflict):
			return utils.SendError(c, fiber.StatusConflict, "assessment already locked")
		case errors.Is(err, service.ErrAssessmentNotAllowed):
			return utils.SendError(c, fiber.StatusForbidden, err.Error())
		case isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Uint("submission_id", payload.SubmissionID).Msg("failed to lock assessment")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to lock assessment")
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assessment locked", result)
}

func (h *AssessmentHandler) submit(c *fiber.Ctx) error {
	resultID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.AssessmentSubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.Submit(c.Context(), resultID, payload, actorFromContext(c))
	if err != nil {
		return h.respondAssessmentError(c, resultID, err, "failed to submit assessment")
	}

	return utils.SendSuccess(c, "assessment submitted", result)
}

func (h *AssessmentHandler) override(c *fiber.Ctx) error {
	resultID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.AssessmentOverrideRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.Override(c.Context(), resultID, payload, actorFromContext(c))
	if err != nil {
		return h.respondAssessmentError(c, resultID, err, "failed to override assessment")
	}

	return utils.SendSuccess(c, "assessment overridden", result)
}

func (h *AssessmentHandler) decideComplaint(c *fiber.Ctx) error {
	resultID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.ComplaintDecisionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.DecideComplaint(c.Context(), resultID, payload, actorFromContext(c))
	if err != nil {
		if errors.Is(err, service.ErrComplaintSelfReview) {
			return utils.SendError(c, fiber.StatusForbidden, err.Error())
		}
		return h.respondAssessmentError(c, resultID, err, "failed to decide complaint")
	}

	return utils.SendSuccess(c, "complaint decided", result)
}

func (h *AssessmentHandler) remove(c *fiber.Ctx) error {
	resultID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	if err := h.service.Delete(c.Context(), resultID, actorFromContext(c)); err != nil {
		switch {
		case errors.Is(err, service.ErrResultNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "result not found")
		case errors.Is(err, service.ErrAssessmentNotAllowed):
			return utils.SendError(c, fiber.StatusForbidden, err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Uint("result_id", resultID).Msg("failed to delete result")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to delete result")
		}
	}

	return utils.SendSuccess(c, "result deleted", nil)
}

func (h *AssessmentHandler) respondAssessmentError(c *fiber.Ctx, resultID uint, err error, fallback string) error {
	switch {
	case errors.Is(err, service.ErrResultNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "result not found")
	case errors.Is(err, service.ErrNotLockOwner):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrAssessmentNotAllowed):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Uint("result_id", resultID).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}
