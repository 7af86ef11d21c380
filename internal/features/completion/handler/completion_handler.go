package handler

import (
	"errors"

	"route-tracker/internal/core/logger"
	"route-tracker/internal/features/completion/domain"
	"route-tracker/internal/features/completion/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// CompletionHandler handles HTTP requests for smart completion.
type CompletionHandler struct {
	detector *service.Detector
}

// NewCompletionHandler creates a new CompletionHandler.
func NewCompletionHandler(detector *service.Detector) *CompletionHandler {
	return &CompletionHandler{
		detector: detector,
	}
}

// ErrorResponse represents an error response with Ray ID.
type ErrorResponse struct {
	// Message is the error description.
	Message string `json:"message"`
	// RayID is the unique request identifier for tracing.
	RayID string `json:"ray_id,omitempty"`
}

// GetState godoc
// @Summary Get the completion detector state
// @Description Returns zone flags and the pending completion candidate, if any.
// @Tags completion
// @Produce json
// @Success 200 {object} domain.State
// @Router /completion [get]
func (h *CompletionHandler) GetState(c *fiber.Ctx) error {
	return c.JSON(h.detector.State())
}

// Confirm godoc
// @Summary Confirm the pending completion
// @Description Stops the session at the last known position.
// @Tags completion
// @Produce json
// @Success 200 {object} sessiondomain.RouteSession
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /completion/confirm [post]
func (h *CompletionHandler) Confirm(c *fiber.Ctx) error {
	session, err := h.detector.Confirm(c.UserContext())
	if err != nil {
		if errors.Is(err, domain.ErrNoCandidate) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Message: "no completion candidate pending",
				RayID:   rayID(c),
			})
		}
		logger.Get().Error("failed to confirm completion", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Message: "failed to confirm completion",
			RayID:   rayID(c),
		})
	}
	return c.JSON(session)
}

// Cancel godoc
// @Summary Cancel the pending completion
// @Description Dismisses the candidate until the rider leaves and re-enters the start zone.
// @Tags completion
// @Produce json
// @Success 200 {object} domain.State
// @Failure 404 {object} ErrorResponse
// @Router /completion/cancel [post]
func (h *CompletionHandler) Cancel(c *fiber.Ctx) error {
	if err := h.detector.Cancel(); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Message: "no completion candidate pending",
			RayID:   rayID(c),
		})
	}
	return c.JSON(h.detector.State())
}

func rayID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return ""
}
