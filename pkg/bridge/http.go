package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/renlou/orbit/pkg/config"
	"github.com/renlou/orbit/pkg/invoke"
)

// HTTPInvoker reaches the daemon over its loopback HTTP endpoint. Each call
// issues exactly one POST; there is no retry, pooling state beyond the
// standard client's, or request coalescing.
type HTTPInvoker struct {
	baseURL string
	client  *http.Client
	logger  Logger
}

// NewHTTPInvoker builds the HTTP binding. An empty baseURL falls back to the
// default loopback address.
func NewHTTPInvoker(baseURL string, logger Logger) *HTTPInvoker {
	if baseURL == "" {
		baseURL = config.DefaultBaseURL
	}
	return &HTTPInvoker{
		baseURL: baseURL,
		client:  http.DefaultClient,
		logger:  logger,
	}
}

// WithClient overrides the HTTP client, mainly for tests and timeouts.
func (b *HTTPInvoker) WithClient(client *http.Client) *HTTPInvoker {
	b.client = client
	return b
}

// Invoke implements Invoker over POST {base}/api/invoke.
func (b *HTTPInvoker) Invoke(ctx context.Context, cmd string, args map[string]any) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(map[string]any{"cmd": cmd, "args": args})
	if err != nil {
		logFailure(b.logger, cmd, err)
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/invoke", bytes.NewReader(body))
	if err != nil {
		logFailure(b.logger, cmd, err)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		logFailure(b.logger, cmd, err)
		return nil, fmt.Errorf("invoke %s: %w", cmd, err)
	}
	defer resp.Body.Close()

	var env invoke.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			backendErr := &BackendError{Command: cmd, Status: resp.StatusCode}
			logFailure(b.logger, cmd, backendErr)
			return nil, backendErr
		}
		logFailure(b.logger, cmd, err)
		return nil, fmt.Errorf("decode %s envelope: %w", cmd, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.OK {
		backendErr := &BackendError{
			Command: cmd,
			Status:  resp.StatusCode,
			Code:    env.Code,
			Message: env.Error,
		}
		logFailure(b.logger, cmd, backendErr)
		return nil, backendErr
	}
	return env.Data, nil
}
