package scaler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"gearshed/catalogworker/logger"
)

// Scaler is the operational hook fired when a worker pool drains its queue.
// It lives at the process boundary; pipeline logic never depends on it.
type Scaler interface {
	// ScaleToZero asks the hosting orchestrator to drop the replica count to
	// zero. Best effort; failures are logged, never propagated.
	ScaleToZero(ctx context.Context)
}

// Noop is used in environments without an orchestrator.
type Noop struct{}

var _ Scaler = Noop{}

func (Noop) ScaleToZero(context.Context) {}

// HTTPScaler posts a zero replica count to an orchestrator endpoint.
type HTTPScaler struct {
	url    string
	token  string
	client *http.Client
}

var _ Scaler = (*HTTPScaler)(nil)

// NewHTTPScaler builds a scaler for the given orchestrator endpoint.
func NewHTTPScaler(url, token string) *HTTPScaler {
	return &HTTPScaler{
		url:   url,
		token: token,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// ScaleToZero issues the scale-down call.
func (s *HTTPScaler) ScaleToZero(ctx context.Context) {
	body := bytes.NewBufferString(`{"replicas":0}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, body)
	if err != nil {
		logger.LogError("scaler", err, "failed to build scale-down request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		logger.LogError("scaler", err, "scale-down request failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logger.LogError("scaler", fmt.Errorf("status %d", resp.StatusCode), "orchestrator rejected scale-down")
		return
	}
	logger.LogInfo("scaler", "requested scale to zero replicas")
}

// FromConfig returns an HTTP scaler when an endpoint is configured and a
// no-op otherwise.
func FromConfig(url, token string) Scaler {
	if url == "" {
		return Noop{}
	}
	return NewHTTPScaler(url, token)
}
