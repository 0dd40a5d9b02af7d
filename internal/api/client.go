// Package api is the typed client for the parcel REST backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Version is reported in the User-Agent header.
const Version = "0.1.0"

const (
	// MaxPageSize is the largest page the backend serves.
	MaxPageSize = 200
	// DefaultPageSize is used when a request leaves the page size unset.
	DefaultPageSize = 100
	// MaxBBoxAreaKm2 is the largest search box the backend accepts.
	MaxBBoxAreaKm2 = 5000.0

	maxErrorBody = 4 << 10
)

// Client talks to the parcel backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the transport-level timeout. Per-call deadlines come from the context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("api: base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("api: invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api: base URL scheme must be http or https, got %q", u.Scheme)
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  "parcelmap/" + Version,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, out any) error {
	return c.do(ctx, op, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	return c.do(ctx, op, http.MethodPost, path, nil, body, out)
}

// do performs one request. There is no retry loop: retries are user-triggered.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request body: %w", op, err)
		}
		bodyReader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return c.transportError(ctx, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.log().Debug("api request",
		"op", op,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", elapsed,
		"request_id", requestID)

	if resp.StatusCode >= 400 {
		return statusError(op, requestID, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return c.transportError(ctx, op, ctx.Err())
		}
		return &DecodeError{Op: op, Err: err}
	}
	return nil
}

func (c *Client) transportError(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		// superseded by a newer request
		return fmt.Errorf("%s: %w", op, context.Canceled)
	}
	timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		timeout = true
	}
	return &NetworkError{Op: op, Timeout: timeout, Err: err}
}

func statusError(op, requestID string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := errorMessage(raw)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return &ValidationError{Field: errorField(raw), Message: msg, StatusCode: resp.StatusCode}
	case resp.StatusCode >= 500:
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	default:
		return &APIError{StatusCode: resp.StatusCode, Message: msg, RequestID: requestID}
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Field   string `json:"field"`
}

func errorMessage(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil {
		return strings.TrimSpace(string(raw))
	}
	for _, s := range []string{eb.Error, eb.Message, eb.Detail} {
		if s != "" {
			return s
		}
	}
	return ""
}

// errorField guesses which parameter a 400 refers to when the backend does not say.
func errorField(raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Field != "" {
		return eb.Field
	}
	text := strings.ToLower(string(raw))
	switch {
	case strings.Contains(text, "bbox") || strings.Contains(text, "bounding box") || strings.Contains(text, "km"):
		return "bbox"
	case strings.Contains(text, "page_size") || strings.Contains(text, "page size"):
		return "page_size"
	}
	return ""
}
