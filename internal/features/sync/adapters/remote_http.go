package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"route-tracker/internal/core/httpclient"
	"route-tracker/internal/core/logger"
	sessiondomain "route-tracker/internal/features/session/domain"
	"route-tracker/internal/features/sync/domain"
	"route-tracker/internal/features/sync/ports"

	"go.uber.org/zap"
)

// HTTPRemote implements the RemoteRoutes port against the routes REST
// service. Every call carries the client timeout; a timed-out call is a
// network error, never a permanent failure.
type HTTPRemote struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPRemote creates an adapter for the given base URL.
func NewHTTPRemote(baseURL string, timeout time.Duration) *HTTPRemote {
	return &HTTPRemote{
		baseURL: baseURL,
		client:  httpclient.NewClient(timeout),
		logger:  logger.Named("remote_routes"),
	}
}

// syncSessionResponse is the JSON structure of the sync-session endpoint.
type syncSessionResponse struct {
	Status  string                      `json:"status"`
	Reason  string                      `json:"reason"`
	Session *sessiondomain.RouteSession `json:"session"`
}

// syncCoordinatesRequest is the batch submission body.
type syncCoordinatesRequest struct {
	SessionID string                    `json:"session_id"`
	Samples   []sessiondomain.GPSSample `json:"samples"`
}

// syncCoordinatesResponse reports per-sample outcomes.
type syncCoordinatesResponse struct {
	Results []struct {
		Index  int    `json:"index"`
		Status string `json:"status"`
		Error  string `json:"error"`
	} `json:"results"`
}

// PushSession submits a session to POST /routes/sync-session.
func (a *HTTPRemote) PushSession(ctx context.Context, s sessiondomain.RouteSession) (*ports.SessionPushResult, error) {
	resp, err := a.post(ctx, "/routes/sync-session", s)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var body syncSessionResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			// An unreadable success body still means the write landed.
			return &ports.SessionPushResult{Status: ports.PushAccepted}, nil
		}
		if body.Status == "duplicate" {
			return &ports.SessionPushResult{Status: ports.PushDuplicate, ServerSession: body.Session}, nil
		}
		return &ports.SessionPushResult{Status: ports.PushAccepted, ServerSession: body.Session}, nil

	case resp.StatusCode == http.StatusConflict:
		var body syncSessionResponse
		reason := domain.ReasonDataMismatch
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Reason != "" {
			reason = domain.ConflictReason(body.Reason)
		}
		return &ports.SessionPushResult{
			Status:        ports.PushConflict,
			Reason:        reason,
			ServerSession: body.Session,
		}, nil

	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: sync-session returned %d", domain.ErrNetwork, resp.StatusCode)

	default:
		return nil, fmt.Errorf("sync-session rejected with status %d", resp.StatusCode)
	}
}

// PushSamples submits one coordinate batch to POST /routes/sync-coordinates.
func (a *HTTPRemote) PushSamples(ctx context.Context, sessionID string, samples []sessiondomain.GPSSample) ([]ports.SampleResult, error) {
	resp, err := a.post(ctx, "/routes/sync-coordinates", syncCoordinatesRequest{
		SessionID: sessionID,
		Samples:   samples,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var body syncCoordinatesResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || len(body.Results) == 0 {
			// No per-sample detail: the whole batch was accepted.
			results := make([]ports.SampleResult, len(samples))
			for i := range samples {
				results[i] = ports.SampleResult{Index: i, Accepted: true}
			}
			return results, nil
		}

		results := make([]ports.SampleResult, 0, len(body.Results))
		for _, r := range body.Results {
			accepted := r.Status == "accepted" || r.Status == "duplicate"
			results = append(results, ports.SampleResult{
				Index:    r.Index,
				Accepted: accepted,
				Error:    r.Error,
			})
		}
		return results, nil

	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: sync-coordinates returned %d", domain.ErrNetwork, resp.StatusCode)

	default:
		return nil, fmt.Errorf("sync-coordinates rejected with status %d", resp.StatusCode)
	}
}

// FetchSession reads GET /routes/session/:id.
func (a *HTTPRemote) FetchSession(ctx context.Context, id string) (*sessiondomain.RouteSession, error) {
	url := fmt.Sprintf("%s/routes/session/%s", a.baseURL, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: session fetch returned %d", domain.ErrNetwork, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session fetch rejected with status %d", resp.StatusCode)
	}

	var s sessiondomain.RouteSession
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}
	return &s, nil
}

// post submits a JSON body and wraps transport failures as network errors.
func (a *HTTPRemote) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Debug("remote call failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	return resp, nil
}
