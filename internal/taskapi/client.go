// Package taskapi fetches task instances from the task scheduler's HTTP API.
package taskapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/taskconsole/internal/taskgraph"
)

// ErrTaskNotFound is wrapped by errors for task ids the API does not know.
var ErrTaskNotFound = errors.New("task not found")

// maxBodySize bounds a single response; task logs are embedded in it.
const maxBodySize = 32 << 20

// APIError is a failure reported by the API, either as a non-2xx status or
// as an unsuccessful envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("task api: %d %s: %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("task api: %d: %s", e.StatusCode, msg)
}

// Unwrap lets errors.Is(err, ErrTaskNotFound) match 404 responses.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrTaskNotFound
	}
	return nil
}

// Temporary reports whether repeating the request may succeed.
func (e *APIError) Temporary() bool {
	return temporaryStatus(e.StatusCode)
}

// DecodeError is returned when a response body is not a valid envelope.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "task api: decode response: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// envelope is the wrapper every API response arrives in.
type envelope struct {
	Successful bool            `json:"successful"`
	Data       json.RawMessage `json:"data"`
	Error      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Fetcher retrieves one task instance by id.
type Fetcher interface {
	GetTask(ctx context.Context, id int64) (*taskgraph.TaskInstance, error)
}

// Client talks to the task API over HTTP.
type Client struct {
	base     *url.URL
	token    string
	http     *http.Client
	timeout  time.Duration
	retry    RetryConfig
	breakers *CircuitBreakerRegistry
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetry overrides the retry policy.
func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithBreakers shares a circuit breaker registry between clients.
func WithBreakers(r *CircuitBreakerRegistry) Option {
	return func(c *Client) { c.breakers = r }
}

// WithTimeout bounds each attempt. Zero disables the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse api url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse api url: missing host in %q", baseURL)
	}

	c := &Client{
		base:    u,
		http:    http.DefaultClient,
		timeout: 10 * time.Second,
		retry:   DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.breakers == nil {
		c.breakers = NewCircuitBreakerRegistry(c.logger)
	}
	return c, nil
}

// BaseURL returns the API root the client was created with.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// GetTask fetches one task instance with its subtasks. Transient failures are
// retried; the returned error wraps ErrTaskNotFound for unknown ids.
func (c *Client) GetTask(ctx context.Context, id int64) (*taskgraph.TaskInstance, error) {
	endpoint := c.base.JoinPath("api", "v2", "tasks", "instances", strconv.FormatInt(id, 10))
	cb := c.breakers.Get(c.base.Host)

	task, err := doWithRetry(ctx, cb, c.retry, func(ctx context.Context) (*taskgraph.TaskInstance, error) {
		var task taskgraph.TaskInstance
		if err := c.get(ctx, endpoint.String(), &task); err != nil {
			return nil, err
		}
		return &task, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return task, nil
}

// get performs one GET attempt and decodes the envelope's data into out.
func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("task api request failed", "url", endpoint, "request_id", requestID, "error", err)
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("task api request",
		"url", endpoint,
		"request_id", requestID,
		"status", resp.StatusCode,
		"bytes", len(body),
		"elapsed", time.Since(start))

	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if decodeErr != nil {
		return &DecodeError{Err: decodeErr}
	}
	if !env.Successful {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: "unsuccessful response"}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return &APIError{StatusCode: http.StatusNotFound, Message: "empty data"}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}
