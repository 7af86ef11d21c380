package handler

import (
	"context"
	"errors"

	"route-tracker/internal/core/logger"
	offlinedomain "route-tracker/internal/features/offline/domain"
	"route-tracker/internal/features/sync/domain"
	"route-tracker/internal/features/sync/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// FailureAccess is the slice of the offline queue the handler exposes to
// operators: permanently failed records and their acknowledgement.
type FailureAccess interface {
	ListFailed(ctx context.Context) ([]offlinedomain.Record, error)
	Acknowledge(ctx context.Context, localID string) error
}

// SyncHandler handles HTTP requests for the sync engine.
type SyncHandler struct {
	engine   *service.Engine
	failures FailureAccess
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(engine *service.Engine, failures FailureAccess) *SyncHandler {
	return &SyncHandler{
		engine:   engine,
		failures: failures,
	}
}

// ErrorResponse represents an error response with Ray ID.
type ErrorResponse struct {
	// Message is the error description.
	Message string `json:"message"`
	// RayID is the unique request identifier for tracing.
	RayID string `json:"ray_id,omitempty"`
}

// RunPass godoc
// @Summary Run a sync pass now
// @Description Drains the offline queue immediately. Returns 409 while a pass is already running.
// @Tags sync
// @Produce json
// @Success 200 {object} domain.Report
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sync/run [post]
func (h *SyncHandler) RunPass(c *fiber.Ctx) error {
	report, err := h.engine.RunPass(c.UserContext())
	if err != nil {
		if errors.Is(err, domain.ErrPassInFlight) {
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
				Message: "a sync pass is already running",
				RayID:   rayID(c),
			})
		}
		logger.Get().Error("manual sync pass failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Message: "sync pass failed",
			RayID:   rayID(c),
		})
	}
	return c.JSON(report)
}

// GetStatus godoc
// @Summary Get sync engine status
// @Description Returns the in-flight flag and the last pass report.
// @Tags sync
// @Produce json
// @Success 200 {object} service.Status
// @Router /sync/status [get]
func (h *SyncHandler) GetStatus(c *fiber.Ctx) error {
	return c.JSON(h.engine.Status())
}

// ListFailures godoc
// @Summary List permanently failed records
// @Description Returns records that crossed the attempt ceiling and await acknowledgement.
// @Tags sync
// @Produce json
// @Success 200 {array} offlinedomain.Record
// @Failure 500 {object} ErrorResponse
// @Router /sync/failures [get]
func (h *SyncHandler) ListFailures(c *fiber.Ctx) error {
	failed, err := h.failures.ListFailed(c.UserContext())
	if err != nil {
		logger.Get().Error("failed to list sync failures", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Message: "failed to list sync failures",
			RayID:   rayID(c),
		})
	}
	if failed == nil {
		failed = []offlinedomain.Record{}
	}
	return c.JSON(failed)
}

// AcknowledgeFailure godoc
// @Summary Acknowledge a permanent failure
// @Description Dismisses one failed record from the operator view. The record itself is retained.
// @Tags sync
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /sync/failures/{id}/ack [post]
func (h *SyncHandler) AcknowledgeFailure(c *fiber.Ctx) error {
	localID := c.Params("id")
	if localID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Message: "record id is required",
			RayID:   rayID(c),
		})
	}

	if err := h.failures.Acknowledge(c.UserContext(), localID); err != nil {
		if errors.Is(err, offlinedomain.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Message: "failed record not found",
				RayID:   rayID(c),
			})
		}
		logger.Get().Error("failed to acknowledge sync failure",
			zap.String("local_id", localID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Message: "failed to acknowledge sync failure",
			RayID:   rayID(c),
		})
	}
	return c.JSON(fiber.Map{"message": "failure acknowledged"})
}

func rayID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return ""
}
