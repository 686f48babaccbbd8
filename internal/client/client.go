// Package client is the HTTP client for the secmon API, used by the
// operator CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/telhawk-systems/secmon/internal/models"
	"github.com/telhawk-systems/secmon/internal/monitor"
)

// Client talks to a running secmon instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// RecordEvent submits one security event and returns its assigned ID.
func (c *Client) RecordEvent(ctx context.Context, event *models.SecurityEvent) (string, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/events", body, http.StatusAccepted, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// ListAlerts fetches stored alerts, optionally filtered by acknowledgment
// state.
func (c *Client) ListAlerts(ctx context.Context, acknowledged *bool) ([]*models.SecurityAlert, error) {
	path := "/api/v1/alerts"
	if acknowledged != nil {
		path += "?acknowledged=" + strconv.FormatBool(*acknowledged)
	}

	var resp struct {
		Alerts []*models.SecurityAlert `json:"alerts"`
		Total  int                     `json:"total"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Alerts, nil
}

// AcknowledgeAlert marks an alert acknowledged.
func (c *Client) AcknowledgeAlert(ctx context.Context, id string) error {
	path := fmt.Sprintf("/api/v1/alerts/%s/ack", url.PathEscape(id))
	return c.do(ctx, http.MethodPost, path, nil, http.StatusOK, nil)
}

// Snapshot fetches the monitor's current state.
func (c *Client) Snapshot(ctx context.Context) (*monitor.Snapshot, error) {
	var snap monitor.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/v1/snapshot", nil, http.StatusOK, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, wantStatus int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
