package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"murmur/internal/queue"
)

// Client talks to a running daemon over its HTTP API.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient builds a client for the given bind address. A bare
// host:port is assumed to be plain HTTP.
func NewClient(bind string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, fmt.Errorf("api bind address is empty")
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &Client{
		base: base,
		http: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// SubmitTranscription enqueues a transcription task.
func (c *Client) SubmitTranscription(ctx context.Context, req SubmitTranscriptionRequest) (SubmitResponse, error) {
	var out SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/tasks/transcription", nil, req, &out)
	return out, err
}

// SubmitRiskDetection enqueues a risk detection task.
func (c *Client) SubmitRiskDetection(ctx context.Context, req SubmitRiskDetectionRequest) (SubmitResponse, error) {
	var out SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/tasks/risk-detection", nil, req, &out)
	return out, err
}

// GetTask fetches one task by id.
func (c *Client) GetTask(ctx context.Context, taskID string) (TaskResponse, error) {
	var out TaskResponse
	err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(taskID), nil, nil, &out)
	return out, err
}

// ListTasks fetches tasks matching the filter.
func (c *Client) ListTasks(ctx context.Context, filter queue.TaskFilter) (TaskListResponse, error) {
	values := url.Values{}
	if filter.Status != "" {
		values.Set("status", string(filter.Status))
	}
	if filter.Type != "" {
		values.Set("type", string(filter.Type))
	}
	if filter.Limit > 0 {
		values.Set("limit", strconv.Itoa(filter.Limit))
	}
	var out TaskListResponse
	err := c.do(ctx, http.MethodGet, "/api/tasks", values, nil, &out)
	return out, err
}

// CancelTask cancels a task that is still queued.
func (c *Client) CancelTask(ctx context.Context, taskID string) (TaskResponse, error) {
	var out TaskResponse
	err := c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(taskID), nil, nil, &out)
	return out, err
}

// Stats fetches queue counters.
func (c *Client) Stats(ctx context.Context) (StatsResponse, error) {
	var out StatsResponse
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, nil, &out)
	return out, err
}

// Health fetches the daemon liveness payload.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.do(ctx, http.MethodGet, "/api/health", nil, nil, &out)
	return out, err
}

// TriggerBackup asks the daemon to write a queue snapshot now.
func (c *Client) TriggerBackup(ctx context.Context) (BackupResponse, error) {
	var out BackupResponse
	err := c.do(ctx, http.MethodPost, "/api/admin/backup", nil, nil, &out)
	return out, err
}

// CleanupStuck asks the daemon to reclaim stuck processing tasks.
func (c *Client) CleanupStuck(ctx context.Context) (CleanupResponse, error) {
	var out CleanupResponse
	err := c.do(ctx, http.MethodPost, "/api/admin/cleanup-stuck", nil, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c == nil {
		return fmt.Errorf("api client is nil")
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("api returned status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("api returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
