package httpapi

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

	"ringkv/internal/node"
)

// ErrNotFound is matched by errors.Is for 404 replies.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx reply from a node.
type APIError struct {
	StatusCode int
	Response   Response
}

func (e *APIError) Error() string {
	msg := e.Response.Error
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, msg)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Client talks to one node's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the node at baseURL, e.g. http://127.0.0.1:8001.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the node URL this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func keyURL(base, key, consistency string) string {
	u := base + "/keys/" + url.PathEscape(key)
	if consistency != "" {
		u += "?consistency=" + url.QueryEscape(consistency)
	}
	return u
}

// Put stores value under key. An empty consistency uses the server default.
func (c *Client) Put(ctx context.Context, key, value, consistency string) (Response, error) {
	body, err := json.Marshal(putRequest{Value: &value, Consistency: consistency})
	if err != nil {
		return Response{}, fmt.Errorf("encode PUT body: %w", err)
	}
	var out Response
	err = c.do(ctx, http.MethodPut, keyURL(c.baseURL, key, ""), body, &out)
	return out, err
}

// Get reads key.
func (c *Client) Get(ctx context.Context, key, consistency string) (Response, error) {
	var out Response
	err := c.do(ctx, http.MethodGet, keyURL(c.baseURL, key, consistency), nil, &out)
	return out, err
}

// Delete removes key.
func (c *Client) Delete(ctx context.Context, key, consistency string) (Response, error) {
	var out Response
	err := c.do(ctx, http.MethodDelete, keyURL(c.baseURL, key, consistency), nil, &out)
	return out, err
}

// Join asks the node to join the cluster through contact.
func (c *Client) Join(ctx context.Context, contact string) (Response, error) {
	body, err := json.Marshal(joinRequest{Address: contact})
	if err != nil {
		return Response{}, fmt.Errorf("encode join body: %w", err)
	}
	var out Response
	err = c.do(ctx, http.MethodPost, c.baseURL+"/admin/join", body, &out)
	return out, err
}

// Status fetches the node status.
func (c *Client) Status(ctx context.Context) (node.Status, error) {
	var out node.Status
	err := c.do(ctx, http.MethodGet, c.baseURL+"/admin/status", nil, &out)
	return out, err
}

// Peers fetches the node's member list.
func (c *Client) Peers(ctx context.Context) ([]PeerInfo, error) {
	var out []PeerInfo
	err := c.do(ctx, http.MethodGet, c.baseURL+"/admin/peers", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute %s request: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, &apiErr.Response)
		if r, ok := out.(*Response); ok {
			*r = apiErr.Response
		}
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
