// Package client is a Go client for the mediation HTTP API.
package client

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

	"github.com/gorilla/websocket"

	"github.com/patrickwarner/admediation/internal/models"
)

// ErrEmptyUserID is returned by calls that require a user.
var ErrEmptyUserID = errors.New("user id is required")

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the mediation HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// ShowResult identifies a show that was started.
type ShowResult struct {
	RequestID string           `json:"request_id"`
	Network   models.NetworkID `json:"network"`
}

// Status is the per-source snapshot returned by the server.
type Status struct {
	Ready   bool                  `json:"ready"`
	Sources []models.SourceStatus `json:"sources"`
}

// APIError is a non-success response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// New constructs a client targeting baseURL (e.g. http://localhost:8787).
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithHeader sets a header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// Show asks the server to show a rewarded ad for userID. A server-side no
// fill is returned as models.ErrNoFill.
func (c *Client) Show(ctx context.Context, userID string) (ShowResult, error) {
	body, err := json.Marshal(map[string]string{"user_id": userID})
	if err != nil {
		return ShowResult{}, err
	}
	resp, err := c.do(ctx, http.MethodPost, "/rewarded/show", bytes.NewReader(body))
	if err != nil {
		return ShowResult{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return ShowResult{Network: models.NetworkNone}, models.ErrNoFill
	case http.StatusConflict:
		return ShowResult{}, fmt.Errorf("%w: %s", models.ErrNotReady, readError(resp))
	}
	var res ShowResult
	if err := decodeJSON(resp, &res); err != nil {
		return ShowResult{}, err
	}
	return res, nil
}

// Ready reports whether any network has an ad loaded.
func (c *Client) Ready(ctx context.Context) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, "/rewarded/ready", nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	var body struct {
		Ready bool `json:"ready"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return false, err
	}
	return body.Ready, nil
}

// Status returns the state of every registered source.
func (c *Client) Status(ctx context.Context) (Status, error) {
	resp, err := c.do(ctx, http.MethodGet, "/rewarded/status", nil)
	if err != nil {
		return Status{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	var st Status
	if err := decodeJSON(resp, &st); err != nil {
		return Status{}, err
	}
	return st, nil
}

// Balance returns the reward wallet balance of userID.
func (c *Client) Balance(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, ErrEmptyUserID
	}
	resp, err := c.do(ctx, http.MethodGet, "/rewards/"+url.PathEscape(userID), nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	var body struct {
		Balance int64 `json:"balance"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return 0, err
	}
	return body.Balance, nil
}

// SubscribeEvents connects to the event stream. types optionally restricts
// the event types delivered. The channel closes when ctx is done or the
// connection drops.
func (c *Client) SubscribeEvents(ctx context.Context, types ...models.EventType) (<-chan models.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	u := c.wsURL
	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		u += "?types=" + url.QueryEscape(strings.Join(names, ","))
	}
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan models.Event, 32)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer func() { _ = conn.Close() }()
		for {
			var ev models.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vals := range c.headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	return c.httpClient.Do(req)
}

func readError(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(data))
}

func decodeJSON(resp *http.Response, v interface{}) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: readError(resp)}
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return ""
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/events"
	return u.String()
}
