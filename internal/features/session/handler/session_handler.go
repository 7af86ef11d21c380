package handler

import (
	"errors"
	"time"

	"route-tracker/internal/core/logger"
	"route-tracker/internal/features/geo"
	"route-tracker/internal/features/session/domain"
	"route-tracker/internal/features/session/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SessionHandler handles HTTP requests for the route session lifecycle.
type SessionHandler struct {
	tracker *service.Tracker
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(tracker *service.Tracker) *SessionHandler {
	return &SessionHandler{
		tracker: tracker,
	}
}

// ErrorResponse represents an error response with Ray ID.
type ErrorResponse struct {
	// Message is the error description.
	Message string `json:"message"`
	// RayID is the unique request identifier for tracing.
	RayID string `json:"ray_id,omitempty"`
}

// StartSessionRequest represents the request body for starting a session.
type StartSessionRequest struct {
	OperatorID string  `json:"operator_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

// PositionRequest represents one GPS reading.
type PositionRequest struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	SpeedKmh       *float64  `json:"speed_kmh,omitempty"`
	HeadingDegrees *float64  `json:"heading_degrees,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// PositionResponse reports whether a sample was folded into the metrics.
type PositionResponse struct {
	Accepted  bool                 `json:"accepted"`
	Rejection *domain.Rejection    `json:"rejection,omitempty"`
	Session   *domain.RouteSession `json:"session,omitempty"`
}

// ShipmentEventRequest represents a pickup or delivery at a position.
type ShipmentEventRequest struct {
	ShipmentID string  `json:"shipment_id"`
	EventType  string  `json:"event_type"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

// StopSessionRequest carries the final position.
type StopSessionRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// StartSession godoc
// @Summary Start a route session
// @Description Starts tracking for an operator. Fails while another session is active or paused.
// @Tags sessions
// @Accept json
// @Produce json
// @Param session body StartSessionRequest true "Operator and start position"
// @Success 201 {object} domain.RouteSession
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/start [post]
func (h *SessionHandler) StartSession(c *fiber.Ctx) error {
	var req StartSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badRequest(c, "invalid request body")
	}
	if req.OperatorID == "" {
		return h.badRequest(c, "operator_id is required")
	}

	session, err := h.tracker.Start(c.UserContext(), req.OperatorID, geo.Point{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		if errors.Is(err, domain.ErrSessionConflict) {
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
				Message: err.Error(),
				RayID:   rayID(c),
			})
		}
		return h.internalError(c, "failed to start session", err)
	}

	return c.Status(fiber.StatusCreated).JSON(session)
}

// PauseSession godoc
// @Summary Pause the current session
// @Description Freezes active-time accrual. Only valid from the active state.
// @Tags sessions
// @Produce json
// @Success 200 {object} domain.RouteSession
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/pause [post]
func (h *SessionHandler) PauseSession(c *fiber.Ctx) error {
	if err := h.tracker.Pause(c.UserContext()); err != nil {
		return h.lifecycleError(c, "failed to pause session", err)
	}
	return c.JSON(h.tracker.Session())
}

// ResumeSession godoc
// @Summary Resume the current session
// @Description Resumes active-time accrual. Only valid from the paused state.
// @Tags sessions
// @Produce json
// @Success 200 {object} domain.RouteSession
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/resume [post]
func (h *SessionHandler) ResumeSession(c *fiber.Ctx) error {
	if err := h.tracker.Resume(c.UserContext()); err != nil {
		return h.lifecycleError(c, "failed to resume session", err)
	}
	return c.JSON(h.tracker.Session())
}

// StopSession godoc
// @Summary Stop the current session
// @Description Completes the session with final metrics and queues it for sync.
// @Tags sessions
// @Accept json
// @Produce json
// @Param position body StopSessionRequest true "Final position"
// @Success 200 {object} domain.RouteSession
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/stop [post]
func (h *SessionHandler) StopSession(c *fiber.Ctx) error {
	var req StopSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badRequest(c, "invalid request body")
	}

	session, err := h.tracker.Stop(c.UserContext(), geo.Point{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		return h.lifecycleError(c, "failed to stop session", err)
	}
	return c.JSON(session)
}

// RecordPosition godoc
// @Summary Record a GPS sample
// @Description Feeds one position reading into the current session. Rejected samples return 200 with the rejection reason.
// @Tags sessions
// @Accept json
// @Produce json
// @Param position body PositionRequest true "GPS reading"
// @Success 200 {object} PositionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/position [post]
func (h *SessionHandler) RecordPosition(c *fiber.Ctx) error {
	var req PositionRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badRequest(c, "invalid request body")
	}

	rejection, err := h.tracker.RecordPosition(c.UserContext(), domain.GPSSample{
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		AccuracyMeters: req.AccuracyMeters,
		SpeedKmh:       req.SpeedKmh,
		HeadingDegrees: req.HeadingDegrees,
		Timestamp:      req.Timestamp,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoSession) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Message: "no session in progress",
				RayID:   rayID(c),
			})
		}
		if errors.Is(err, domain.ErrNotActive) {
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
				Message: err.Error(),
				RayID:   rayID(c),
			})
		}
		return h.internalError(c, "failed to record position", err)
	}

	if rejection != nil {
		return c.JSON(PositionResponse{Accepted: false, Rejection: rejection})
	}
	return c.JSON(PositionResponse{Accepted: true, Session: h.tracker.Session()})
}

// RecordShipmentEvent godoc
// @Summary Record a shipment pickup or delivery
// @Description Records an event-typed sample at the given position. Delivery events increment the shipment count.
// @Tags sessions
// @Accept json
// @Produce json
// @Param event body ShipmentEventRequest true "Shipment event"
// @Success 200 {object} domain.RouteSession
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/shipment-event [post]
func (h *SessionHandler) RecordShipmentEvent(c *fiber.Ctx) error {
	var req ShipmentEventRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badRequest(c, "invalid request body")
	}

	err := h.tracker.RecordShipmentEvent(c.UserContext(), req.ShipmentID,
		domain.EventType(req.EventType), geo.Point{
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
		})
	if err != nil {
		if errors.Is(err, domain.ErrNoSession) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Message: "no session in progress",
				RayID:   rayID(c),
			})
		}
		if errors.Is(err, domain.ErrNotActive) {
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
				Message: err.Error(),
				RayID:   rayID(c),
			})
		}
		if errors.Is(err, domain.ErrInvalidTransition) {
			return h.badRequest(c, err.Error())
		}
		return h.internalError(c, "failed to record shipment event", err)
	}
	return c.JSON(h.tracker.Session())
}

// GetCurrentSession godoc
// @Summary Get the current session
// @Description Returns the live session with up-to-date metrics.
// @Tags sessions
// @Produce json
// @Success 200 {object} domain.RouteSession
// @Failure 404 {object} ErrorResponse
// @Router /sessions/current [get]
func (h *SessionHandler) GetCurrentSession(c *fiber.Ctx) error {
	session := h.tracker.Session()
	if session == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Message: "no session in progress",
			RayID:   rayID(c),
		})
	}
	return c.JSON(session)
}

func (h *SessionHandler) lifecycleError(c *fiber.Ctx, msg string, err error) error {
	if errors.Is(err, domain.ErrNoSession) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Message: "no session in progress",
			RayID:   rayID(c),
		})
	}
	if errors.Is(err, domain.ErrInvalidTransition) {
		return h.badRequest(c, err.Error())
	}
	return h.internalError(c, msg, err)
}

func (h *SessionHandler) badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Message: msg,
		RayID:   rayID(c),
	})
}

func (h *SessionHandler) internalError(c *fiber.Ctx, msg string, err error) error {
	logger.Get().Error(msg, zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Message: msg,
		RayID:   rayID(c),
	})
}

func rayID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return ""
}
