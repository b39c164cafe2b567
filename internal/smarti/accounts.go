package smarti

import (
	"context"
	"net/url"

	"github.com/Checker-Finance/apitests/internal/auth"
	"github.com/Checker-Finance/apitests/internal/httpclient"
)

// anonymous sends neither Basic credentials nor a token.
var anonymous auth.Auth

// GetAuth returns the authentication state of an anonymous caller.
// GET auth
func (c *Client) GetAuth(ctx context.Context) (*httpclient.Response, error) {
	return c.get(ctx, anonymous, "auth", nil)
}

// GET auth/check?login=
func (c *Client) CheckLogin(ctx context.Context, login string) (*httpclient.Response, error) {
	return c.get(ctx, anonymous, "auth/check", url.Values{"login": {login}})
}

// POST auth/recover?user=
func (c *Client) RecoverPassword(ctx context.Context, login string, body any) (*httpclient.Response, error) {
	return c.post(ctx, anonymous, "auth/recover", body, url.Values{"user": {login}})
}

// POST auth/signup
func (c *Client) Signup(ctx context.Context, user any) (*httpclient.Response, error) {
	return c.post(ctx, anonymous, "auth/signup", user, nil)
}

// GET user
func (c *Client) ListUsers(ctx context.Context, a auth.Auth, query url.Values) (*httpclient.Response, error) {
	return c.get(ctx, a, "user", query)
}

// POST user
func (c *Client) CreateUser(ctx context.Context, a auth.Auth, user any) (*httpclient.Response, error) {
	return c.post(ctx, a, "user", user, nil)
}

// GET user/{login}
func (c *Client) GetUser(ctx context.Context, a auth.Auth, login string) (*httpclient.Response, error) {
	return c.get(ctx, a, "user/"+login, nil)
}

// PUT user/{login}
func (c *Client) UpdateUser(ctx context.Context, a auth.Auth, login string, user any) (*httpclient.Response, error) {
	return c.put(ctx, a, "user/"+login, user, nil)
}

// DELETE user/{login}
func (c *Client) DeleteUser(ctx context.Context, a auth.Auth, login string) (*httpclient.Response, error) {
	return c.del(ctx, a, "user/"+login, nil)
}

// PUT user/{login}/password
func (c *Client) SetUserPassword(ctx context.Context, a auth.Auth, login, password string) (*httpclient.Response, error) {
	return c.put(ctx, a, "user/"+login+"/password", PasswordRequest{Password: password}, nil)
}

// PUT user/{login}/roles
func (c *Client) SetUserRoles(ctx context.Context, a auth.Auth, login string, roles []string) (*httpclient.Response, error) {
	if roles == nil {
		roles = []string{}
	}
	return c.put(ctx, a, "user/"+login+"/roles", roles, nil)
}
