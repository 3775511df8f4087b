// Package reporter implements the agent-side HTTP client that pushes
// server identity, service status, and alerts to the collector, grounded
// on overcli/overclient.py's Overclient and generalizing the teacher's
// internal/notify/slack webhook-posting idiom to a JSON request/response
// API client.
package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

// ServerIdentity is embedded in every request (spec.md §6's "server"
// object): a name and a shared key the collector compares against its
// stored value.
type ServerIdentity struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// ServiceReport is one entry of a /api/set/service/status batch.
type ServiceReport struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Info  string `json:"info"`
}

// AlertReport is one entry of a /api/set/alerts batch.
type AlertReport struct {
	Service string `json:"service,omitempty"`
	Message string `json:"message"`
}

// Client posts monitoring reports to a Sentinel collector over HTTP.
type Client struct {
	baseURL  string
	identity ServerIdentity
	client   *http.Client
}

// New creates a Client. baseURL is the collector's root URL (no trailing
// path); identity is sent on every request.
func New(baseURL string, identity ServerIdentity) *Client {
	return &Client{
		baseURL:  baseURL,
		identity: identity,
		client:   &http.Client{Timeout: defaultTimeout},
	}
}

// Ping verifies connectivity and identity with the collector.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.post(ctx, "/api/ping", map[string]any{
		"server": c.identity,
	})
	return err
}

// SetServiceStatus reports a batch of service states with a promised
// reporting period in seconds.
func (c *Client) SetServiceStatus(ctx context.Context, period int, services []ServiceReport) error {
	_, err := c.post(ctx, "/api/set/service/status", map[string]any{
		"server":   c.identity,
		"period":   period,
		"services": services,
	})
	return err
}

// SetAlerts reports a batch of manually-raised alerts.
func (c *Client) SetAlerts(ctx context.Context, alerts []AlertReport) error {
	_, err := c.post(ctx, "/api/set/alerts", map[string]any{
		"server": c.identity,
		"alerts": alerts,
	})
	return err
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("reporter: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("reporter: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reporter: post %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reporter: read response from %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("reporter: %s returned %d: %s", path, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
