// Package chessclient talks to the chess session API over HTTP and follows
// the live game feed over WebSocket.
package chessclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/chess-session-api/pkg/chessdto"
	"github.com/valyala/fasthttp"
)

// HeaderProvider supplies per-request headers such as X-User-Id.
type HeaderProvider func() map[string]string

type Client struct {
	baseURL string
	prefix  string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

// WithUser sends id as X-User-Id on every request.
func WithUser(id string) Option {
	return WithHeaderProvider(func() map[string]string { return map[string]string{"X-User-Id": id} })
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithPrefix overrides the API path prefix, "/api/v1" by default.
func WithPrefix(p string) Option {
	return func(c *Client) { c.prefix = "/" + strings.Trim(p, "/") }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		prefix:  "/api/v1",
		// path normalizing would decode %2F in positions passed to /validate
		http: &fasthttp.Client{
			ReadTimeout:            10 * time.Second,
			WriteTimeout:           10 * time.Second,
			MaxConnsPerHost:        64,
			DisablePathNormalizing: true,
		},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.prefix == "/" {
		c.prefix = ""
	}
	return c
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status int
	Body   chessdto.DomainError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chess api error: status=%d code=%s message=%s", e.Status, e.Body.Code, e.Body.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func (c *Client) CreateGame(ctx context.Context, req chessdto.CreateGameRequest) (*chessdto.CreateGameResponse, error) {
	var out chessdto.CreateGameResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, c.prefix+"/games", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Game(ctx context.Context, id string) (*chessdto.Game, error) {
	var out chessdto.Game
	if err := c.doJSON(ctx, fasthttp.MethodGet, c.prefix+"/games/"+url.PathEscape(id), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Move submits a move in SAN or UCI text.
func (c *Client) Move(ctx context.Context, id, move string) (*chessdto.MoveResponse, error) {
	req := chessdto.MoveRequest{Move: &chessdto.MoveInput{Notation: move}}
	var out chessdto.MoveResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, c.prefix+"/games/"+url.PathEscape(id)+"/move", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Games lists a player's games; an empty player falls back to the X-User-Id header.
func (c *Client) Games(ctx context.Context, player string, limit int) (*chessdto.GameList, error) {
	q := url.Values{}
	if player != "" {
		q.Set("player", player)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := c.prefix + "/games"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out chessdto.GameList
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Validate(ctx context.Context, position string) (*chessdto.ValidateResponse, error) {
	var out chessdto.ValidateResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, c.prefix+"/validate/"+url.PathEscape(position), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Health(ctx context.Context) (*chessdto.Health, error) {
	var out chessdto.Health
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/health", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// BoardPNG fetches the rendered board of a game.
func (c *Client) BoardPNG(ctx context.Context, id string) ([]byte, error) {
	var img []byte
	err := c.do(ctx, fasthttp.MethodGet, c.prefix+"/games/"+url.PathEscape(id)+"/board.png", nil, true, func(body []byte) error {
		img = append([]byte(nil), body...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = b
	}
	return c.do(ctx, method, path, payload, retry, func(body []byte) error {
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, retry bool, onBody func([]byte) error) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.URI().DisablePathNormalizing = true
	if payload != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}
	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
		} else if status := resp.StatusCode(); status < 200 || status >= 300 {
			lastErr = decodeError(status, resp.Body())
			if !shouldRetryStatus(status) {
				return lastErr
			}
		} else {
			return onBody(resp.Body())
		}
		if attempt == attempts {
			break
		}
		if err := sleepWithContext(ctx, backoffDuration(attempt)); err != nil {
			return lastErr
		}
	}
	return lastErr
}

func decodeError(status int, body []byte) error {
	var er chessdto.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error.Code == "" {
		er.Error = chessdto.DomainError{Code: "http_" + strconv.Itoa(status), Message: truncate(string(body), 512)}
	}
	return &APIError{Status: status, Body: er.Error}
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
