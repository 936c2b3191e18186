package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to a running verse instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// State fetches the merged playback state.
func (c *Client) State(ctx context.Context) (*StateResponse, error) {
	var st StateResponse
	if err := c.do(ctx, http.MethodGet, "/api/state", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Command issues a bodyless command: play, pause, toggle, next or previous.
func (c *Client) Command(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/api/"+url.PathEscape(name), nil, nil)
}

// Seek seeks to progress (0..1).
func (c *Client) Seek(ctx context.Context, progress float64) error {
	return c.do(ctx, http.MethodPost, "/api/seek", SeekRequest{Progress: &progress}, nil)
}

// SwitchSource selects a source.
func (c *Client) SwitchSource(ctx context.Context, source string) error {
	return c.do(ctx, http.MethodPost, "/api/source", SourceRequest{Source: source}, nil)
}

// Connect connects a source.
func (c *Client) Connect(ctx context.Context, source string) error {
	return c.do(ctx, http.MethodPost, "/api/connect/"+url.PathEscape(source), nil, nil)
}

// Callback forwards an OAuth redirect URL.
func (c *Client) Callback(ctx context.Context, rawURL string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/callback", CallbackRequest{URL: rawURL}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var e errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
			return fmt.Errorf("%s", e.Error)
		}
		return fmt.Errorf("request failed: %s", resp.Status)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
