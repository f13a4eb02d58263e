package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"
)

// csrfResponse is the payload of the dedicated anti-forgery token endpoint.
type csrfResponse struct {
	AntiForgeryToken string `json:"antiForgeryToken"`
}

// csrfCache holds the anti-forgery token used on mutating calls.
//
// The token is lazily fetched on the first mutating call and cached for the
// process lifetime; a response that proactively supplies a new value rotates
// the cache. Concurrent callers that find the cache empty collapse into one
// fetch via singleflight: N callers produce exactly one network call.
type csrfCache struct {
	mu    sync.RWMutex
	token string
	group singleflight.Group
}

func (c *csrfCache) get() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *csrfCache) set(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// ensureCSRF returns a cached anti-forgery token, fetching one if needed.
// Callers that race on an empty cache await the same in-flight fetch.
func (c *Client) ensureCSRF(ctx context.Context) (string, error) {
	if token := c.csrf.get(); token != "" {
		return token, nil
	}

	v, err, shared := c.csrf.group.Do("csrf", func() (interface{}, error) {
		// A racing caller may have finished the fetch between our cache
		// check and joining the flight.
		if token := c.csrf.get(); token != "" {
			return token, nil
		}

		token, err := c.fetchCSRF(ctx)
		if err != nil {
			return "", err
		}
		c.csrf.set(token)
		return token, nil
	})
	if err != nil {
		recordCSRFFetch("failure")
		return "", err
	}
	if !shared {
		recordCSRFFetch("success")
	}

	return v.(string), nil
}

// fetchCSRF performs the actual token-endpoint call. It runs at most once per
// flight regardless of how many callers are waiting.
func (c *Client) fetchCSRF(ctx context.Context) (string, error) {
	fctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fctx, http.MethodGet, c.cfg.BaseURL+c.cfg.TokenPath, nil)
	if err != nil {
		return "", fmt.Errorf("create csrf request: %w", err)
	}
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &NetworkError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &HTTPError{Status: resp.StatusCode, Message: parseErrorMessage(body), Body: body}
	}

	var payload csrfResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("parse csrf response: %w", err)
	}
	if payload.AntiForgeryToken == "" {
		return "", fmt.Errorf("csrf endpoint returned empty token")
	}

	slog.Debug("anti-forgery token fetched",
		slog.String("endpoint", c.cfg.TokenPath))

	return payload.AntiForgeryToken, nil
}

// rotateCSRF replaces the cached token when a response body proactively
// supplies a fresh one.
func (c *Client) rotateCSRF(body []byte) {
	if len(body) == 0 {
		return
	}

	var payload csrfResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return
	}
	if payload.AntiForgeryToken == "" {
		return
	}

	c.csrf.set(payload.AntiForgeryToken)
	slog.Debug("anti-forgery token rotated")
}
