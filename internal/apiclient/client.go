package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"taskdeck-client/internal/observability/logging"
	"taskdeck-client/internal/observability/tracing"
	"taskdeck-client/internal/resilience/circuitbreaker"
	"taskdeck-client/internal/session"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

const (
	// defaultTimeout is the process-wide request deadline unless overridden per call.
	defaultTimeout = 15 * time.Second

	// defaultCSRFHeader carries the anti-forgery token on mutating calls.
	defaultCSRFHeader = "X-CSRF-Token"

	defaultTokenPath   = "/auth/csrf"
	defaultLoginPath   = "/auth/login"
	defaultRefreshPath = "/auth/refresh"
)

// Config contains configuration for the request client.
type Config struct {
	// BaseURL is the backend service root, e.g. "https://deck.example.com"
	BaseURL string

	// Timeout is the default per-call deadline. Zero means defaultTimeout.
	Timeout time.Duration

	// CSRFHeader is the header name carrying the anti-forgery token on
	// mutating calls. Zero value means defaultCSRFHeader.
	CSRFHeader string

	// TokenPath is the dedicated anti-forgery token endpoint
	TokenPath string

	// LoginPath is the authentication endpoint
	LoginPath string

	// RefreshPath is the credential refresh endpoint
	RefreshPath string

	// LogoutPath is the optional sign-out endpoint. Empty disables the
	// server-side call; Logout then only clears the local credential.
	LogoutPath string

	// RatePerSecond enables client-side request pacing when positive
	RatePerSecond float64

	// RateBurst is the pacing burst size. Zero means 1 when pacing is enabled.
	RateBurst int

	// BreakerEnabled routes dispatch through a circuit breaker so a failing
	// backend is not hammered by an interactive retry loop
	BreakerEnabled bool
}

// withDefaults fills zero-value fields with defaults.
func (cfg Config) withDefaults() Config {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CSRFHeader == "" {
		cfg.CSRFHeader = defaultCSRFHeader
	}
	if cfg.TokenPath == "" {
		cfg.TokenPath = defaultTokenPath
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = defaultLoginPath
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = defaultRefreshPath
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	return cfg
}

// Client issues request/response calls to the backend with anti-forgery
// binding, per-call timeouts, and one silent refresh-and-retry on 401.
//
// A Client is safe for concurrent use. The anti-forgery cache and the
// refresh flight are the only state shared across concurrent calls.
type Client struct {
	cfg     Config
	session *session.Store
	http    *http.Client
	csrf    csrfCache
	refresh singleflight.Group
	limiter *RateLimiter
	breaker *circuitbreaker.CircuitBreaker
}

// New creates a request client bound to the given credential store.
// The store is owned by the hosting application; the client reads the
// credential from it and writes back refreshed values.
func New(cfg Config, store *session.Store) *Client {
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:     cfg,
		session: store,
		// Deadlines are enforced per call via context, not on the
		// transport, so per-call overrides work.
		http: &http.Client{},
	}
	if cfg.RatePerSecond > 0 {
		c.limiter = NewRateLimiter(cfg.RatePerSecond, cfg.RateBurst)
	}
	if cfg.BreakerEnabled {
		c.breaker = circuitbreaker.New(circuitbreaker.APIClientConfig())
	}
	return c
}

// Request describes one backend call.
type Request struct {
	// Method defaults to GET
	Method string

	// Path is appended to the configured base URL
	Path string

	// Body, when non-nil, is JSON-encoded as the request body
	Body interface{}

	// Timeout overrides the client default for this call when positive
	Timeout time.Duration

	// Raw skips payload decoding; out must then be a *[]byte
	Raw bool
}

// Call performs a request and decodes the response payload into out.
//
// out may be nil when no payload is expected. A 204 response never attempts
// a decode. Errors are always typed: *NetworkError, *TimeoutError,
// *HTTPError, or an error wrapping ErrAuthExpired.
func (c *Client) Call(ctx context.Context, req Request, out interface{}) error {
	return c.call(ctx, req, out, false)
}

// Get performs a GET request for path.
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.call(ctx, Request{Method: http.MethodGet, Path: path}, out, false)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	return c.call(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out, false)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out interface{}) error {
	return c.call(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, out, false)
}

// Delete performs a DELETE request for path.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.call(ctx, Request{Method: http.MethodDelete, Path: path}, nil, false)
}

// call runs the full pipeline. The retried flag marks the single authorized
// refresh-and-retry; it is never set by external callers.
func (c *Client) call(ctx context.Context, req Request, out interface{}, retried bool) error {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	callID := uuid.New().String()
	logger := logging.WithCallID(slog.Default(), callID)
	start := time.Now()

	// Step 1: anti-forgery binding. Mutating calls never dispatch without
	// a cached token; concurrent callers share one fetch.
	var csrfToken string
	if isMutating(method) {
		token, err := c.ensureCSRF(ctx)
		if err != nil {
			recordRequest(method, "csrf_error")
			return fmt.Errorf("ensure anti-forgery token: %w", err)
		}
		csrfToken = token
	}

	// Step 2: timeout enforcement. Each call owns its own timer; cancelling
	// one call never affects concurrently in-flight calls.
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cctx, span := tracing.GetTracer().Start(cctx, "apiclient.call")
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", req.Path),
		attribute.Bool("retry", retried),
	)

	if c.limiter != nil {
		if err := c.limiter.Allow(cctx); err != nil {
			reqErr := classifyTransportError(err, timeout)
			recordRequestError(method, reqErr)
			return reqErr
		}
	}

	// Step 3: credential attachment.
	var bodyReader io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(cctx, method, c.cfg.BaseURL+req.Path, bodyReader)
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token := c.session.Token(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if csrfToken != "" {
		httpReq.Header.Set(c.cfg.CSRFHeader, csrfToken)
	}

	// Step 4: dispatch and classify.
	resp, err := c.dispatch(httpReq)
	if err != nil {
		reqErr := classifyTransportError(err, timeout)
		span.RecordError(reqErr)
		recordRequestError(method, reqErr)
		logger.Warn("api call failed",
			slog.String("method", method),
			slog.String("path", req.Path),
			slog.Any("error", reqErr),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()))
		return reqErr
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		reqErr := classifyTransportError(err, timeout)
		recordRequestError(method, reqErr)
		return reqErr
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusUnauthorized {
		if retried {
			recordRequest(method, "auth_expired")
			logger.Warn("authentication expired after refresh retry",
				slog.String("method", method),
				slog.String("path", req.Path))
			return fmt.Errorf("call %s %s: %w", method, req.Path, ErrAuthExpired)
		}
		if err := c.refreshCredential(ctx); err != nil {
			recordRequest(method, "auth_expired")
			logger.Warn("credential refresh failed",
				slog.String("method", method),
				slog.String("path", req.Path),
				slog.Any("error", err))
			return fmt.Errorf("call %s %s: %w", method, req.Path, ErrAuthExpired)
		}
		logger.Debug("credential refreshed, retrying call once",
			slog.String("method", method),
			slog.String("path", req.Path))
		return c.call(ctx, req, out, true)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{
			Status:  resp.StatusCode,
			Message: parseErrorMessage(respBody),
			Body:    respBody,
		}
		recordRequest(method, "http_error")
		logger.Warn("api call returned error status",
			slog.String("method", method),
			slog.String("path", req.Path),
			slog.Int("status", resp.StatusCode),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()))
		return httpErr
	}

	// Token rotation happens before the payload is handed back.
	c.rotateCSRF(respBody)

	recordRequest(method, "success")
	observeRequestDuration(method, time.Since(start).Seconds())
	logger.Debug("api call completed",
		slog.String("method", method),
		slog.String("path", req.Path),
		slog.Int("status", resp.StatusCode),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	if resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
		return nil
	}
	if req.Raw {
		if raw, ok := out.(*[]byte); ok && raw != nil {
			*raw = respBody
		}
		return nil
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response payload: %w", err)
		}
	}
	return nil
}

// dispatch sends the request, through the circuit breaker when enabled.
func (c *Client) dispatch(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.http.Do(req)
	}

	v, err := c.breaker.Execute(func() (interface{}, error) {
		return c.http.Do(req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*http.Response), nil
}

// isMutating reports whether the method requires anti-forgery binding.
func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

// classifyTransportError maps a dispatch failure to the error taxonomy.
// A tripped breaker counts as Network: the server was never reached.
func classifyTransportError(err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Timeout: timeout}
	}
	return &NetworkError{Err: err}
}

// recordRequestError records the metric result label for a typed error.
func recordRequestError(method string, err error) {
	switch {
	case IsTimeout(err):
		recordRequest(method, "timeout")
	default:
		recordRequest(method, "network")
	}
}

// errorBody is the conventional shape of non-2xx response bodies.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// parseErrorMessage extracts the human-readable message from an error
// response body. A body that is absent or fails to parse yields an empty
// message; the HTTP status stays the primary error signal.
func parseErrorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var payload errorBody
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}
