package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"taskdeck-client/internal/session"
)

type loginRequest struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret"`
}

type loginResponse struct {
	BearerToken string            `json:"bearerToken"`
	Principal   session.Principal `json:"principal"`
}

type refreshResponse struct {
	BearerToken string `json:"bearerToken"`
}

// Login authenticates against the login endpoint and stores the resulting
// credential in the session store. When the response omits the principal,
// it is derived from the bearer token's JWT claims.
func (c *Client) Login(ctx context.Context, identity, secret string) (session.Credential, error) {
	var resp loginResponse
	err := c.Call(ctx, Request{
		Method: http.MethodPost,
		Path:   c.cfg.LoginPath,
		Body:   loginRequest{Identity: identity, Secret: secret},
	}, &resp)
	if err != nil {
		return session.Credential{}, err
	}
	if resp.BearerToken == "" {
		return session.Credential{}, fmt.Errorf("login response missing bearer token")
	}

	principal := resp.Principal
	if principal == (session.Principal{}) {
		principal = session.PrincipalFromToken(resp.BearerToken)
	}

	cred := session.Credential{Token: resp.BearerToken, Principal: principal}
	c.session.Set(cred)

	slog.Info("login successful",
		slog.String("principal", principal.Email),
		slog.String("role", principal.Role))

	return cred, nil
}

// Logout clears the stored credential. When a logout endpoint is configured
// the server-side call is best effort: local sign-out proceeds regardless.
func (c *Client) Logout(ctx context.Context) {
	if c.cfg.LogoutPath != "" {
		// retried=true so a stale session cannot trigger a refresh cycle
		// on its own teardown.
		if err := c.call(ctx, Request{Method: http.MethodPost, Path: c.cfg.LogoutPath}, nil, true); err != nil {
			slog.Debug("server-side logout failed", slog.Any("error", err))
		}
	}

	c.session.Clear()
	slog.Info("signed out")
}

// refreshCredential performs the single silent refresh used by the 401
// retry path. Concurrent callers that hit 401 together collapse into one
// refresh call. The request goes straight to the transport, never back
// through Call, so it cannot recurse.
func (c *Client) refreshCredential(ctx context.Context) error {
	_, err, _ := c.refresh.Do("refresh", func() (interface{}, error) {
		cred, ok := c.session.Get()
		if !ok {
			recordAuthRefresh("failure")
			return nil, fmt.Errorf("no credential to refresh")
		}

		rctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(rctx, http.MethodPost, c.cfg.BaseURL+c.cfg.RefreshPath, nil)
		if err != nil {
			return nil, fmt.Errorf("create refresh request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+cred.Token)

		resp, err := c.http.Do(req)
		if err != nil {
			recordAuthRefresh("failure")
			return nil, &NetworkError{Err: err}
		}
		defer func() { _ = resp.Body.Close() }()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			recordAuthRefresh("failure")
			return nil, &HTTPError{Status: resp.StatusCode, Message: parseErrorMessage(body), Body: body}
		}

		var payload refreshResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			recordAuthRefresh("failure")
			return nil, fmt.Errorf("parse refresh response: %w", err)
		}
		if payload.BearerToken == "" {
			recordAuthRefresh("failure")
			return nil, fmt.Errorf("refresh response missing bearer token")
		}

		principal := cred.Principal
		if p := session.PrincipalFromToken(payload.BearerToken); p != (session.Principal{}) {
			principal = p
		}
		c.session.Set(session.Credential{Token: payload.BearerToken, Principal: principal})

		recordAuthRefresh("success")
		slog.Info("credential refreshed silently")
		return nil, nil
	})
	return err
}
