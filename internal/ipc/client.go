// Package ipc provides the HTTP client the CLI uses to talk to a running
// daemon's API server.
package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"snatcher/internal/api"
)

// ErrNotFound reports that the referenced record does not exist on the daemon.
var ErrNotFound = errors.New("record not found")

// Client provides access to the daemon API over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// Dial builds a client for the daemon listening at addr (host:port). The
// daemon is not contacted until the first request.
func Dial(addr string) (*Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("daemon address is required")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	parsed, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse daemon address: %w", err)
	}
	return &Client{
		baseURL: strings.TrimRight(parsed.String(), "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	if c.http != nil {
		c.http.CloseIdleConnections()
	}
	return nil
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var status api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &status)
	return status, err
}

// Submit registers a posting for evaluation.
func (c *Client) Submit(ctx context.Context, req api.SubmitRequest) (api.SubmitResponse, error) {
	var resp api.SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/records", req, &resp)
	return resp, err
}

// List returns records, optionally filtered by status.
func (c *Client) List(ctx context.Context, statuses []string) ([]api.RecordView, error) {
	path := "/api/records"
	if len(statuses) > 0 {
		query := url.Values{}
		for _, status := range statuses {
			query.Add("status", status)
		}
		path += "?" + query.Encode()
	}
	var resp api.RecordListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// Pending lists records awaiting a reviewer decision.
func (c *Client) Pending(ctx context.Context) ([]api.RecordView, error) {
	var resp api.RecordListResponse
	if err := c.do(ctx, http.MethodGet, "/api/pending", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// Describe fetches a single record by ID or external key.
func (c *Client) Describe(ctx context.Context, ref string) (api.RecordView, error) {
	var resp api.RecordResponse
	err := c.do(ctx, http.MethodGet, "/api/records/"+url.PathEscape(ref), nil, &resp)
	return resp.Record, err
}

// Advance moves a record through one pipeline stage.
func (c *Client) Advance(ctx context.Context, ref string) (api.RecordView, error) {
	return c.recordAction(ctx, ref, "advance", nil)
}

// Promote forces letter generation for a parked record.
func (c *Client) Promote(ctx context.Context, ref string) (api.RecordView, error) {
	return c.recordAction(ctx, ref, "promote", nil)
}

// Retry clears the review flag so the daemon resumes a stalled record.
func (c *Client) Retry(ctx context.Context, ref string) (api.RecordView, error) {
	return c.recordAction(ctx, ref, "retry", nil)
}

// Decide applies a reviewer verdict.
func (c *Client) Decide(ctx context.Context, ref string, req api.DecideRequest) (api.RecordView, error) {
	return c.recordAction(ctx, ref, "decide", req)
}

func (c *Client) recordAction(ctx context.Context, ref, action string, body any) (api.RecordView, error) {
	var resp api.RecordResponse
	path := fmt.Sprintf("/api/records/%s/%s", url.PathEscape(ref), action)
	err := c.do(ctx, http.MethodPost, path, body, &resp)
	return resp.Record, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(encoded)
	} else if method == http.MethodPost {
		payload = strings.NewReader("{}")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return wrapDialError(err, c.baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	message := resp.Status
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		message = body.Error
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, message)
	}
	return errors.New(message)
}

func wrapDialError(err error, base string) error {
	if strings.Contains(err.Error(), "connection refused") {
		return fmt.Errorf("connect to daemon at %s: connection refused; start the daemon with `snatcherd`", base)
	}
	return fmt.Errorf("connect to daemon: %w", err)
}
