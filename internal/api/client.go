// Package api is the HTTP client for the remote task API.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dori/taskdeck/internal/logging"
	"github.com/dori/taskdeck/internal/model"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 4 << 20

// RequestIDHeader carries a per-request id for correlating client and server logs.
const RequestIDHeader = "X-Request-ID"

var codec = sonic.ConfigStd

// TokenSource supplies the current bearer token. An empty string means signed out.
type TokenSource interface {
	Token() string
}

// Client talks to the task API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets a per-request timeout. Zero keeps the HTTP client default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.http
			hc.Timeout = d
			c.http = &hc
		}
	}
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger sets the request logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the API rooted at baseURL. "/api" is appended when
// the URL does not already end with it.
func New(baseURL string, opts ...Option) *Client {
	base := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(base, "/api") {
		base += "/api"
	}

	c := &Client{
		baseURL: base,
		http:    &http.Client{},
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the resolved API root, including the /api prefix.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type authMode int

const (
	authNone authMode = iota
	// authBearer sends "Bearer <session token>"
	authBearer
	// authRaw sends an explicit token with no scheme (password reset links)
	authRaw
)

type request struct {
	op     string
	method string
	path   string
	auth   authMode
	token  string
	body   interface{}
}

// errorBody is the shape of a failed response.
type errorBody struct {
	ErrorMessage string `json:"errorMessage"`
	Message      string `json:"message"`
}

// do sends r and returns the body of a successful response.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	var token string
	switch r.auth {
	case authBearer:
		if c.tokens != nil {
			token = c.tokens.Token()
		}
		if token == "" {
			return nil, &model.AuthError{Message: "not logged in"}
		}
	case authRaw:
		token = r.token
	}

	var body io.Reader
	if r.body != nil {
		data, err := codec.Marshal(r.body)
		if err != nil {
			return nil, &model.FetchError{Op: r.op, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return nil, &model.FetchError{Op: r.op, Err: err}
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch r.auth {
	case authBearer:
		req.Header.Set("Authorization", "Bearer "+token)
	case authRaw:
		if token != "" {
			req.Header.Set("Authorization", token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed", "op", r.op, "method", r.method, "path", r.path, "request_id", reqID, "err", err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &model.FetchError{Op: r.op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &model.FetchError{Op: r.op, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.Debug("request", "op", r.op, "method", r.method, "path", r.path,
		"status", resp.StatusCode, "duration", time.Since(start), "request_id", reqID)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}

	msg := serverMessage(data)
	if r.auth == authBearer && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		return nil, &model.AuthError{Status: resp.StatusCode, Message: msg}
	}
	return nil, &model.FetchError{Op: r.op, Status: resp.StatusCode, Message: msg}
}

// serverMessage extracts the human-readable message from an error body.
func serverMessage(data []byte) string {
	var eb errorBody
	if len(data) == 0 || codec.Unmarshal(data, &eb) != nil {
		return ""
	}
	if eb.ErrorMessage != "" {
		return eb.ErrorMessage
	}
	return eb.Message
}

// envelope is the common response wrapper: {success, message, data}.
type envelope[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func decode[T any](op string, data []byte) (T, error) {
	var env envelope[T]
	if err := codec.Unmarshal(data, &env); err != nil {
		var zero T
		return zero, &model.FetchError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return env.Data, nil
}

// messageOf returns the success message of a response, which some endpoints
// put in "message" and others in a string "data".
func messageOf(data []byte, fallback string) string {
	var env envelope[interface{}]
	if codec.Unmarshal(data, &env) != nil {
		return fallback
	}
	if env.Message != "" {
		return env.Message
	}
	if s, ok := env.Data.(string); ok && s != "" {
		return s
	}
	return fallback
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var fe *model.FetchError
	return errors.As(err, &fe) && fe.Status == http.StatusNotFound
}
