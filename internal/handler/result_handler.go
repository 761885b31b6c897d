package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/campusforge/grading-api/internal/dto"
	"github.com/campusforge/grading-api/internal/middleware"
	"github.com/campusforge/grading-api/internal/service"
	"github.com/campusforge/grading-api/internal/utils"
)

// ResultHandler wires result reads and the live result feed websocket.
type ResultHandler struct {
	grading  service.GradingService
	notifier service.GradingNotifier
	logger   zerolog.Logger
}

// NewResultHandler constructs the handler.
func NewResultHandler(grading service.GradingService, notifier service.GradingNotifier, logger zerolog.Logger) *ResultHandler {
	return &ResultHandler{
		grading:  grading,
		notifier: notifier,
		logger:   logger.With().Str("component", "result_handler").Logger(),
	}
}

// Register attaches result endpoints to the router group.
func (h *ResultHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws", websocket.New(h.handleFeed))
	router.Get("/:id", h.get)
	router.Post("/:id/recalculate", middleware.RequireRole("instructor", "admin"), h.recalculate)
}

func (h *ResultHandler) get(c *fiber.Ctx) error {
	resultID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	result, err := h.grading.GetResult(c.Context(), resultID, actorFromContext(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrResultNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "result not found")
		case errors.Is(err, service.ErrResultAccessDenied):
			return utils.SendError(c, fiber.StatusForbidden, "result access denied")
		default:
			requestLogger(h.logger, c).Error().Err(err).Uint("result_id", resultID).Msg("failed to load result")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to load result")
		}
	}

	return utils.SendSuccess(c, "result retrieved", result)
}

func (h *ResultHandler) recalculate(c *fiber.Ctx) error {
	resultID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	result, err := h.grading.RecalculateResult(c.Context(), resultID, actorFromContext(c))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrResultNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "result not found")
		case errors.Is(err, service.ErrResultNotAutomatic):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrResultAccessDenied):
			return utils.SendError(c, fiber.StatusForbidden, "result access denied")
		default:
			requestLogger(h.logger, c).Error().Err(err).Uint("result_id", resultID).Msg("failed to recalculate result")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to recalculate result")
		}
	}

	return utils.SendSuccess(c, "result recalculated", result)
}

// handleFeed streams grading events for one participation or one exercise.
// Staff may watch any scope, students only their own participation feed.
func (h *ResultHandler) handleFeed(conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()

	var (
		events  <-chan dto.GradingEventResponse
		cleanup func()
	)

	switch {
	case strings.TrimSpace(conn.Query("participation_id")) != "":
		id, err := strconv.ParseUint(conn.Query("participation_id"), 10, 64)
		if err != nil {
			h.closeWith(conn, "invalid participation_id")
			return
		}
		actor := service.Actor{ID: websocketUserID(conn), Role: websocketRole(conn)}
		allowed, err := h.grading.CanViewParticipation(context.Background(), uint(id), actor)
		if err != nil || !allowed {
			h.closeWith(conn, "insufficient permissions")
			return
		}
		events, cleanup = h.notifier.SubscribeParticipation(uint(id))
	case strings.TrimSpace(conn.Query("exercise_id")) != "":
		if !isStaffRole(websocketRole(conn)) {
			h.closeWith(conn, "insufficient permissions")
			return
		}
		id, err := strconv.ParseUint(conn.Query("exercise_id"), 10, 64)
		if err != nil {
			h.closeWith(conn, "invalid exercise_id")
			return
		}
		events, cleanup = h.notifier.SubscribeExercise(uint(id))
	default:
		h.closeWith(conn, "participation_id or exercise_id required")
		return
	}
	defer cleanup()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Info().Msg("result feed connected")
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug().Err(err).Msg("result feed write failed")
				return
			}
		case <-done:
			h.logger.Info().Msg("result feed disconnected")
			return
		}
	}
}

func (h *ResultHandler) closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
}

func websocketUserID(conn *websocket.Conn) uint {
	switch v := conn.Locals("user_id").(type) {
	case uint:
		return v
	case int:
		if v < 0 {
			return 0
		}
		return uint(v)
	default:
		return 0
	}
}

func websocketRole(conn *websocket.Conn) string {
	if v := conn.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

func isStaffRole(role string) bool {
	switch role {
	case "tutor", "editor", "instructor", "admin":
		return true
	default:
		return false
	}
}
