package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"route-tracker/internal/features/session/domain"
	"route-tracker/internal/features/session/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nopQueue accepts every durable write.
type nopQueue struct{}

func (nopQueue) EnqueueSession(context.Context, domain.RouteSession) error { return nil }
func (nopQueue) AppendSample(context.Context, domain.GPSSample) error      { return nil }

func newTestApp(t *testing.T) (*fiber.App, *service.Tracker) {
	t.Helper()

	tracker := service.NewTracker(service.TrackerConfig{
		Metrics: service.MetricsConfig{
			AccuracyCeilingMeters: 50,
			ClockSkew:             2 * time.Second,
		},
	}, nopQueue{}, service.NewBus())
	h := NewSessionHandler(tracker)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("requestid", "test-ray-id")
		return c.Next()
	})
	app.Post("/sessions/start", h.StartSession)
	app.Post("/sessions/pause", h.PauseSession)
	app.Post("/sessions/resume", h.ResumeSession)
	app.Post("/sessions/stop", h.StopSession)
	app.Post("/sessions/position", h.RecordPosition)
	app.Post("/sessions/shipment-event", h.RecordShipmentEvent)
	app.Get("/sessions/current", h.GetCurrentSession)
	return app, tracker
}

func request(t *testing.T, app *fiber.App, method, path string, body any) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out.Bytes()
}

func TestSessionHandler_StartSession(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := request(t, app, "POST", "/sessions/start", StartSessionRequest{
		OperatorID: "op-1",
		Latitude:   4.7110,
		Longitude:  -74.0721,
	})
	require.Equal(t, fiber.StatusCreated, status)

	var session domain.RouteSession
	require.NoError(t, json.Unmarshal(body, &session))
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "op-1", session.OperatorID)
	assert.Equal(t, domain.StatusActive, session.Status)
}

func TestSessionHandler_StartSession_MissingOperator(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := request(t, app, "POST", "/sessions/start", StartSessionRequest{})
	require.Equal(t, fiber.StatusBadRequest, status)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, "operator_id is required", errResp.Message)
	assert.Equal(t, "test-ray-id", errResp.RayID)
}

func TestSessionHandler_StartSession_Conflict(t *testing.T) {
	app, _ := newTestApp(t)

	req := StartSessionRequest{OperatorID: "op-1", Latitude: 4.7110, Longitude: -74.0721}
	status, _ := request(t, app, "POST", "/sessions/start", req)
	require.Equal(t, fiber.StatusCreated, status)

	status, body := request(t, app, "POST", "/sessions/start", req)
	assert.Equal(t, fiber.StatusConflict, status)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, "test-ray-id", errResp.RayID)
}

func TestSessionHandler_PauseWithoutSession(t *testing.T) {
	app, _ := newTestApp(t)
	status, _ := request(t, app, "POST", "/sessions/pause", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestSessionHandler_LifecycleRoundTrip(t *testing.T) {
	app, _ := newTestApp(t)

	status, _ := request(t, app, "POST", "/sessions/start", StartSessionRequest{
		OperatorID: "op-1", Latitude: 4.7110, Longitude: -74.0721,
	})
	require.Equal(t, fiber.StatusCreated, status)

	status, body := request(t, app, "POST", "/sessions/pause", nil)
	require.Equal(t, fiber.StatusOK, status)
	var session domain.RouteSession
	require.NoError(t, json.Unmarshal(body, &session))
	assert.Equal(t, domain.StatusPaused, session.Status)

	// Pausing twice is an invalid transition.
	status, _ = request(t, app, "POST", "/sessions/pause", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = request(t, app, "POST", "/sessions/resume", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &session))
	assert.Equal(t, domain.StatusActive, session.Status)

	status, body = request(t, app, "POST", "/sessions/stop", StopSessionRequest{
		Latitude: 4.7120, Longitude: -74.0721,
	})
	require.Equal(t, fiber.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &session))
	assert.Equal(t, domain.StatusCompleted, session.Status)
	assert.NotNil(t, session.EndTime)
}

func TestSessionHandler_RecordPosition(t *testing.T) {
	app, _ := newTestApp(t)

	status, _ := request(t, app, "POST", "/sessions/start", StartSessionRequest{
		OperatorID: "op-1", Latitude: 4.7110, Longitude: -74.0721,
	})
	require.Equal(t, fiber.StatusCreated, status)

	status, body := request(t, app, "POST", "/sessions/position", PositionRequest{
		Latitude: 4.7115, Longitude: -74.0721, AccuracyMeters: 10,
		Timestamp: time.Now(),
	})
	require.Equal(t, fiber.StatusOK, status)

	var resp PositionResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.True(t, resp.Accepted)
	require.NotNil(t, resp.Session)

	// An inaccurate fix is rejected but the request still succeeds.
	status, body = request(t, app, "POST", "/sessions/position", PositionRequest{
		Latitude: 4.7120, Longitude: -74.0721, AccuracyMeters: 120,
		Timestamp: time.Now(),
	})
	require.Equal(t, fiber.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.False(t, resp.Accepted)
	require.NotNil(t, resp.Rejection)
	assert.Equal(t, domain.RejectionInaccurate, resp.Rejection.Reason)
}

func TestSessionHandler_RecordPosition_NoSession(t *testing.T) {
	app, _ := newTestApp(t)
	status, _ := request(t, app, "POST", "/sessions/position", PositionRequest{
		Latitude: 4.7115, Longitude: -74.0721, AccuracyMeters: 10, Timestamp: time.Now(),
	})
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestSessionHandler_RecordPosition_WhilePaused(t *testing.T) {
	app, _ := newTestApp(t)

	request(t, app, "POST", "/sessions/start", StartSessionRequest{
		OperatorID: "op-1", Latitude: 4.7110, Longitude: -74.0721,
	})
	request(t, app, "POST", "/sessions/pause", nil)

	status, _ := request(t, app, "POST", "/sessions/position", PositionRequest{
		Latitude: 4.7115, Longitude: -74.0721, AccuracyMeters: 10, Timestamp: time.Now(),
	})
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestSessionHandler_ShipmentEvent(t *testing.T) {
	app, _ := newTestApp(t)

	request(t, app, "POST", "/sessions/start", StartSessionRequest{
		OperatorID: "op-1", Latitude: 4.7110, Longitude: -74.0721,
	})

	status, body := request(t, app, "POST", "/sessions/shipment-event", ShipmentEventRequest{
		ShipmentID: "ship-9", EventType: "delivery",
		Latitude: 4.7115, Longitude: -74.0721,
	})
	require.Equal(t, fiber.StatusOK, status)

	var session domain.RouteSession
	require.NoError(t, json.Unmarshal(body, &session))
	assert.Equal(t, 1, session.ShipmentsCompleted)

	// Unknown event types are rejected.
	status, _ = request(t, app, "POST", "/sessions/shipment-event", ShipmentEventRequest{
		ShipmentID: "ship-9", EventType: "detour",
		Latitude: 4.7115, Longitude: -74.0721,
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestSessionHandler_GetCurrentSession(t *testing.T) {
	app, _ := newTestApp(t)

	status, _ := request(t, app, "GET", "/sessions/current", nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	request(t, app, "POST", "/sessions/start", StartSessionRequest{
		OperatorID: "op-1", Latitude: 4.7110, Longitude: -74.0721,
	})

	status, body := request(t, app, "GET", "/sessions/current", nil)
	require.Equal(t, fiber.StatusOK, status)

	var session domain.RouteSession
	require.NoError(t, json.Unmarshal(body, &session))
	assert.Equal(t, "op-1", session.OperatorID)
}
