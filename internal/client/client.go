// Package client talks to a running daemon over its loopback HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/eliteGoblin/focusd/site_mon/internal/api"
	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/usecase"
)

const defaultTimeout = 10 * time.Second

// ErrDaemonUnreachable is returned when no daemon answers at the base URL.
var ErrDaemonUnreachable = errors.New("daemon is not reachable")

// Client is a thin wrapper over the daemon API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the daemon at baseURL, e.g. "http://127.0.0.1:7769".
func New(baseURL string) *Client {
	return NewWithHTTPClient(baseURL, &http.Client{Timeout: defaultTimeout})
}

// NewWithHTTPClient creates a client with a custom http.Client (for testing).
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: baseURL, http: hc}
}

// Send dispatches req and returns the response. An unsuccessful response is
// returned as an error carrying the daemon's message.
func (c *Client) Send(ctx context.Context, req usecase.Request) (usecase.Response, error) {
	var resp usecase.Response
	if err := c.do(ctx, http.MethodPost, api.PathMessages, req, &resp); err != nil {
		return usecase.Response{}, err
	}
	if !resp.Success {
		return resp, fmt.Errorf("%s: %s", req.Action, resp.Error)
	}
	return resp, nil
}

// Navigate reports a navigation event, as the browser host would.
func (c *Client) Navigate(ctx context.Context, ev domain.NavigationEvent) (domain.Verdict, error) {
	var v domain.Verdict
	err := c.do(ctx, http.MethodPost, api.PathNavigation, ev, &v)
	return v, err
}

// TabCommands drains the queued tab redirects.
func (c *Client) TabCommands(ctx context.Context) ([]domain.TabCommand, error) {
	var cmds []domain.TabCommand
	err := c.do(ctx, http.MethodGet, api.PathTabCommands, nil, &cmds)
	return cmds, err
}

// CloseTab tells the daemon a tab is gone.
func (c *Client) CloseTab(ctx context.Context, tabID int) error {
	return c.do(ctx, http.MethodDelete, api.PathTabs+"/"+strconv.Itoa(tabID), nil, nil)
}

// Health queries /healthz.
func (c *Client) Health(ctx context.Context) (api.Health, error) {
	var h api.Health
	err := c.do(ctx, http.MethodGet, api.PathHealth, nil, &h)
	return h, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "sitemon-cli")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w at %s: %w", ErrDaemonUnreachable, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
