// Package smarti is a thin authenticated client for the Smarti REST API.
// Every operation returns the raw response; judging the status is left to the caller.
package smarti

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/apitests/internal/auth"
	"github.com/Checker-Finance/apitests/internal/httpclient"
	"github.com/Checker-Finance/apitests/internal/rate"
)

// API labels logs, metrics and rate limiter keys for this client.
const API = "smarti"

// Client talks to one Smarti instance.
type Client struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	baseURL string
}

// NewClient constructs a Smarti client rooted at baseURL.
// httpClient and rateMgr may be nil.
func NewClient(logger *zap.Logger, baseURL string, httpClient *http.Client, rateMgr *rate.Manager) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		logger:  logger,
		exec:    httpclient.New(logger, rateMgr, httpClient, API),
		baseURL: baseURL,
	}
}

// BaseURL returns the normalized base URL, always ending in "/".
func (c *Client) BaseURL() string { return c.baseURL }

// send builds and performs one request. A nil body sends no payload.
func (c *Client) send(ctx context.Context, a auth.Auth, method, path string, body any, query url.Values) (*httpclient.Response, error) {
	req, err := httpclient.NewRequest(ctx, method, c.baseURL+path, body, query)
	if err != nil {
		return nil, err
	}
	a.Apply(req)

	resp, err := c.exec.Do(ctx, req)
	if err != nil {
		c.logger.Warn("smarti.request_failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("auth", a.String()),
			zap.Error(err))
		return nil, err
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, a auth.Auth, path string, query url.Values) (*httpclient.Response, error) {
	return c.send(ctx, a, http.MethodGet, path, nil, query)
}

func (c *Client) post(ctx context.Context, a auth.Auth, path string, body any, query url.Values) (*httpclient.Response, error) {
	return c.send(ctx, a, http.MethodPost, path, body, query)
}

func (c *Client) put(ctx context.Context, a auth.Auth, path string, body any, query url.Values) (*httpclient.Response, error) {
	return c.send(ctx, a, http.MethodPut, path, body, query)
}

func (c *Client) del(ctx context.Context, a auth.Auth, path string, query url.Values) (*httpclient.Response, error) {
	return c.send(ctx, a, http.MethodDelete, path, nil, query)
}

// ─── clients ───

// ListClients lists the clients visible to a.
// GET client
func (c *Client) ListClients(ctx context.Context, a auth.Auth) (*httpclient.Response, error) {
	return c.get(ctx, a, "client", nil)
}

// CreateClient creates a client from body, usually a ClientRequest.
// POST client
func (c *Client) CreateClient(ctx context.Context, a auth.Auth, body any) (*httpclient.Response, error) {
	return c.post(ctx, a, "client", body, nil)
}

// GET client/{id}
func (c *Client) GetClient(ctx context.Context, a auth.Auth, clientID string) (*httpclient.Response, error) {
	return c.get(ctx, a, "client/"+clientID, nil)
}

// DELETE client/{id}
func (c *Client) DeleteClient(ctx context.Context, a auth.Auth, clientID string) (*httpclient.Response, error) {
	return c.del(ctx, a, "client/"+clientID, nil)
}

// GET client/{id}/config
func (c *Client) GetClientConfig(ctx context.Context, a auth.Auth, clientID string) (*httpclient.Response, error) {
	return c.get(ctx, a, "client/"+clientID+"/config", nil)
}

// POST client/{id}/config
func (c *Client) SetClientConfig(ctx context.Context, a auth.Auth, clientID string, config any) (*httpclient.Response, error) {
	return c.post(ctx, a, "client/"+clientID+"/config", config, nil)
}

// GET client/{id}/token
func (c *Client) ListClientTokens(ctx context.Context, a auth.Auth, clientID string) (*httpclient.Response, error) {
	return c.get(ctx, a, "client/"+clientID+"/token", nil)
}

// CreateClientToken issues a new token for the client. The server accepts "{}" as body.
// POST client/{id}/token
func (c *Client) CreateClientToken(ctx context.Context, a auth.Auth, clientID string, body any) (*httpclient.Response, error) {
	return c.post(ctx, a, "client/"+clientID+"/token", body, nil)
}

// PUT client/{id}/token/{token}
func (c *Client) UpdateClientToken(ctx context.Context, a auth.Auth, clientID, tokenID string, body any) (*httpclient.Response, error) {
	return c.put(ctx, a, "client/"+clientID+"/token/"+tokenID, body, nil)
}

// DELETE client/{id}/token/{token}
func (c *Client) DeleteClientToken(ctx context.Context, a auth.Auth, clientID, tokenID string) (*httpclient.Response, error) {
	return c.del(ctx, a, "client/"+clientID+"/token/"+tokenID, nil)
}

// GET client/{id}/user
func (c *Client) ListClientUsers(ctx context.Context, a auth.Auth, clientID string) (*httpclient.Response, error) {
	return c.get(ctx, a, "client/"+clientID+"/user", nil)
}

// CreateClientUser creates a user already assigned to the client.
// POST client/{id}/user
func (c *Client) CreateClientUser(ctx context.Context, a auth.Auth, clientID string, user any) (*httpclient.Response, error) {
	return c.post(ctx, a, "client/"+clientID+"/user", user, nil)
}

// PUT client/{id}/user/{login}
func (c *Client) AssignClientUser(ctx context.Context, a auth.Auth, clientID, login string) (*httpclient.Response, error) {
	return c.put(ctx, a, "client/"+clientID+"/user/"+login, nil, nil)
}

// DELETE client/{id}/user/{login}
func (c *Client) UnassignClientUser(ctx context.Context, a auth.Auth, clientID, login string) (*httpclient.Response, error) {
	return c.del(ctx, a, "client/"+clientID+"/user/"+login, nil)
}
