package handler

import (
	"errors"
	"net/http"

	"route-tracker/internal/core/logger"
	"route-tracker/internal/features/alerts/domain"
	"route-tracker/internal/features/alerts/ports"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AlertHandler handles HTTP requests for operator alerts.
type AlertHandler struct {
	service ports.AlertService
}

// NewAlertHandler creates a new AlertHandler.
func NewAlertHandler(service ports.AlertService) *AlertHandler {
	return &AlertHandler{
		service: service,
	}
}

// ListAlerts handles GET /alerts.
// @Summary List active alerts
// @Description Retrieves operator alerts, e.g. permanently failed sync records.
// @Tags Alerts
// @Produce json
// @Success 200 {array} domain.Alert
// @Failure 500 {object} map[string]string
// @Router /alerts [get]
func (h *AlertHandler) ListAlerts(c *fiber.Ctx) error {
	alerts, err := h.service.Active(c.UserContext())
	if err != nil {
		logger.Get().Error("Failed to list alerts", zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	return c.Status(http.StatusOK).JSON(alerts)
}

// AcknowledgeAlert handles POST /alerts/:id/ack.
// @Summary Acknowledge an alert
// @Description Removes one alert from the active set.
// @Tags Alerts
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /alerts/{id}/ack [post]
func (h *AlertHandler) AcknowledgeAlert(c *fiber.Ctx) error {
	id := c.Params("id")

	if err := h.service.Acknowledge(c.UserContext(), id); err != nil {
		if errors.Is(err, domain.ErrAlertNotFound) {
			return c.Status(http.StatusNotFound).JSON(fiber.Map{
				"error": "Alert not found",
			})
		}
		logger.Get().Error("Failed to acknowledge alert", zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "Alert acknowledged",
	})
}
