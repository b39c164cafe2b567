// Package rocketchat is a thin client for the Rocket.Chat REST API (api/v1).
package rocketchat

import (
	"context"
	"errors"
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
const API = "rocketchat"

// ErrCredentialsRequired is returned by Login for a token-mode descriptor.
var ErrCredentialsRequired = errors.New("rocket.chat login requires username and password")

// Client talks to the REST API of one Rocket.Chat server.
type Client struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	baseURL string
}

// NewClient roots the client at <baseURL>/api/v1/. httpClient and rateMgr may be nil.
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
		baseURL: baseURL + "api/v1/",
	}
}

// BaseURL returns the REST root, ending in "api/v1/".
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) send(ctx context.Context, s *Session, method, path string, body any, query url.Values) (*httpclient.Response, error) {
	req, err := httpclient.NewRequest(ctx, method, c.baseURL+path, body, query)
	if err != nil {
		return nil, err
	}
	if s != nil {
		s.Apply(req)
	}

	resp, err := c.exec.Do(ctx, req)
	if err != nil {
		c.logger.Warn("rocketchat.request_failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return nil, err
	}
	return resp, nil
}

// Login exchanges username and password for a session; see DecodeSession.
// POST login
func (c *Client) Login(ctx context.Context, a auth.Auth) (*httpclient.Response, error) {
	if !a.IsBasic() {
		c.logger.Error("rocketchat.login_rejected", zap.String("auth", a.String()))
		return nil, ErrCredentialsRequired
	}
	return c.send(ctx, nil, http.MethodPost, "login",
		LoginRequest{Username: a.Username(), Password: a.Password()}, nil)
}

// GET logout
func (c *Client) Logout(ctx context.Context, s Session) (*httpclient.Response, error) {
	return c.send(ctx, &s, http.MethodGet, "logout", nil, nil)
}

// GET users.info?userId=
func (c *Client) UserInfo(ctx context.Context, s Session, userID string) (*httpclient.Response, error) {
	return c.send(ctx, &s, http.MethodGet, "users.info", nil, url.Values{"userId": {userID}})
}

// CreateHelpRequest opens a help discussion room.
// POST assistify.helpDiscussion
func (c *Client) CreateHelpRequest(ctx context.Context, s Session, req HelpRequest) (*httpclient.Response, error) {
	if req.Providers == nil {
		req.Providers = []Participant{}
	}
	return c.send(ctx, &s, http.MethodPost, "assistify.helpDiscussion", req, nil)
}

// POST chat.postMessage
func (c *Client) PostMessage(ctx context.Context, s Session, roomID, text string) (*httpclient.Response, error) {
	return c.send(ctx, &s, http.MethodPost, "chat.postMessage", ChatMessage{RoomID: roomID, Text: text}, nil)
}
