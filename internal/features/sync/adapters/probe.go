package adapters

import (
	"context"
	"net/http"
	"time"

	"route-tracker/internal/core/httpclient"
)

// HTTPProbe implements the Connectivity port by pinging the remote health
// endpoint. Any response at all counts as online; only transport failures
// mean the link is down.
type HTTPProbe struct {
	url    string
	client *http.Client
}

// NewHTTPProbe creates a probe against {baseURL}/health.
func NewHTTPProbe(baseURL string, timeout time.Duration) *HTTPProbe {
	return &HTTPProbe{
		url:    baseURL + "/health",
		client: httpclient.NewClient(timeout),
	}
}

// Online reports whether the remote service answered.
func (p *HTTPProbe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
