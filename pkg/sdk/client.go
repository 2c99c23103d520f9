// Package sdk provides a client for connecting to a bestinstance server.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kankou-aliaksei/amazon-ec2-best-instance/pkg/selector"
)

// Client is a bestinstance API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a new bestinstance API client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			// Cold-cache selections can take minutes.
			Timeout: 10 * time.Minute,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SelectionResult is the response for a selection request.
type SelectionResult struct {
	InstanceTypes []selector.InstanceOption `json:"instance_types"`
	Count         int                       `json:"count"`
}

// InstanceStorageResult is the response for the instance storage probe.
type InstanceStorageResult struct {
	InstanceType             string `json:"instance_type"`
	InstanceStorageSupported bool   `json:"instance_storage_supported"`
}

// APIError represents an API error.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.StatusCode)
}

// SelectInstanceTypes asks the server for the instance types matching opts.
// The server applies the same defaults as selector.GetBestInstanceTypes.
func (c *Client) SelectInstanceTypes(ctx context.Context, opts selector.Options) (*SelectionResult, error) {
	var result SelectionResult
	if err := c.doRequest(ctx, "POST", "/api/v1/selections", opts, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// InstanceStorage reports whether an instance type has local instance storage.
func (c *Client) InstanceStorage(ctx context.Context, instanceType string) (*InstanceStorageResult, error) {
	var result InstanceStorageResult
	path := "/api/v1/instance-types/" + instanceType + "/instance-storage"
	if err := c.doRequest(ctx, "GET", path, nil, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// Stats returns the server's selection counters.
func (c *Client) Stats(ctx context.Context) (*selector.MetricsSnapshot, error) {
	var result selector.MetricsSnapshot
	if err := c.doRequest(ctx, "GET", "/api/v1/stats", nil, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// Health checks the server health.
func (c *Client) Health(ctx context.Context) error {
	return c.doRequest(ctx, "GET", "/health", nil, nil)
}

// envelope mirrors the server's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{
				StatusCode: resp.StatusCode,
				Code:       "unknown",
				Message:    fmt.Sprintf("request failed with status %d", resp.StatusCode),
			}
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode >= 400 || !env.Success {
		apiErr := env.Error
		if apiErr == nil {
			apiErr = &APIError{
				Code:    "unknown",
				Message: fmt.Sprintf("request failed with status %d", resp.StatusCode),
			}
		}
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
