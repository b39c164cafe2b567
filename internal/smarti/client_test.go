package smarti

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/apitests/internal/auth"
	"github.com/Checker-Finance/apitests/internal/httpclient"
)

// recorded is what the test server saw for the last request.
type recorded struct {
	Method   string
	Path     string
	Query    url.Values
	Header   http.Header
	Body     string
	User     string
	Password string
	HasBasic bool
}

type recorder struct {
	mu   sync.Mutex
	last recorded
}

func (r *recorder) get() recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// newRecordingServer answers every request with status and echoes nothing else.
func newRecordingServer(t *testing.T, status int, body string) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		user, pass, ok := r.BasicAuth()
		rec.mu.Lock()
		rec.last = recorded{
			Method:   r.Method,
			Path:     r.URL.Path,
			Query:    r.URL.Query(),
			Header:   r.Header.Clone(),
			Body:     string(data),
			User:     user,
			Password: pass,
			HasBasic: ok,
		}
		rec.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

var (
	admin = auth.FromCredentials("admin", "admin")
	token = auth.FromToken("0123456789abcdef0123456789abcdef01234567/89abcdef")
)

// ─── construction ───

func TestNewClient_NormalizesBaseURL(t *testing.T) {
	c := NewClient(zap.NewNop(), "http://localhost:8080", nil, nil)
	assert.Equal(t, "http://localhost:8080/", c.BaseURL())

	c = NewClient(nil, "http://localhost:8080/", nil, nil)
	assert.Equal(t, "http://localhost:8080/", c.BaseURL())
}

// ─── authentication ───

func TestBasicAuth_Attached(t *testing.T) {
	srv, rec := newRecordingServer(t, 200, `[]`)
	c := NewClient(zap.NewNop(), srv.URL, nil, nil)

	resp, err := c.ListClients(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	got := rec.get()
	assert.True(t, got.HasBasic)
	assert.Equal(t, "admin", got.User)
	assert.Equal(t, "admin", got.Password)
	assert.Empty(t, got.Header.Get(auth.TokenHeader))
}

func TestTokenAuth_Attached(t *testing.T) {
	srv, rec := newRecordingServer(t, 200, `[]`)
	c := NewClient(zap.NewNop(), srv.URL, nil, nil)

	_, err := c.ListClients(context.Background(), token)
	require.NoError(t, err)

	got := rec.get()
	assert.False(t, got.HasBasic)
	assert.Equal(t, token.Token(), got.Header.Get(auth.TokenHeader))
}

func TestAnonymousEndpoints_NoCredentials(t *testing.T) {
	srv, rec := newRecordingServer(t, 200, `{}`)
	c := NewClient(zap.NewNop(), srv.URL, nil, nil)

	_, err := c.GetAuth(context.Background())
	require.NoError(t, err)

	got := rec.get()
	assert.False(t, got.HasBasic)
	assert.Empty(t, got.Header.Get(auth.TokenHeader))
}

// ─── routing ───

func TestEndpoints_MethodPathBody(t *testing.T) {
	q := url.Values{"client": {"c1"}}
	tests := []struct {
		name   string
		call   func(c *Client, ctx context.Context) (*httpclient.Response, error)
		method string
		path   string
		body   string
		query  url.Values
	}{
		{"ListClients", func(c *Client, ctx context.Context) (*httpclient.Response, error) { return c.ListClients(ctx, admin) },
			"GET", "/client", "", nil},
		{"CreateClient", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.CreateClient(ctx, admin, ClientRequest{Name: "doe", Description: "description"})
		}, "POST", "/client", `{"defaultClient":false,"description":"description","name":"doe"}`, nil},
		{"GetClient", func(c *Client, ctx context.Context) (*httpclient.Response, error) { return c.GetClient(ctx, admin, "c1") },
			"GET", "/client/c1", "", nil},
		{"DeleteClient", func(c *Client, ctx context.Context) (*httpclient.Response, error) { return c.DeleteClient(ctx, admin, "c1") },
			"DELETE", "/client/c1", "", nil},
		{"GetClientConfig", func(c *Client, ctx context.Context) (*httpclient.Response, error) { return c.GetClientConfig(ctx, admin, "c1") },
			"GET", "/client/c1/config", "", nil},
		{"SetClientConfig", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.SetClientConfig(ctx, admin, "c1", json.RawMessage(`{"queryBuilder":[]}`))
		}, "POST", "/client/c1/config", `{"queryBuilder":[]}`, nil},
		{"ListClientTokens", func(c *Client, ctx context.Context) (*httpclient.Response, error) { return c.ListClientTokens(ctx, admin, "c1") },
			"GET", "/client/c1/token", "", nil},
		{"CreateClientToken", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.CreateClientToken(ctx, admin, "c1", map[string]any{})
		}, "POST", "/client/c1/token", `{}`, nil},
		{"UpdateClientToken", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.UpdateClientToken(ctx, admin, "c1", "t1", map[string]any{"id": "t1"})
		}, "PUT", "/client/c1/token/t1", `{"id":"t1"}`, nil},
		{"DeleteClientToken", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.DeleteClientToken(ctx, admin, "c1", "t1")
		}, "DELETE", "/client/c1/token/t1", "", nil},
		{"ListClientUsers", func(c *Client, ctx context.Context) (*httpclient.Response, error) { return c.ListClientUsers(ctx, admin, "c1") },
			"GET", "/client/c1/user", "", nil},
		{"AssignClientUser", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.AssignClientUser(ctx, admin, "c1", "anna")
		}, "PUT", "/client/c1/user/anna", "", nil},
		{"UnassignClientUser", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.UnassignClientUser(ctx, admin, "c1", "anna")
		}, "DELETE", "/client/c1/user/anna", "", nil},
		{"ListConversations", func(c *Client, ctx context.Context) (*httpclient.Response, error) { return c.ListConversations(ctx, token, q) },
			"GET", "/conversation", "", q},
		{"CreateConversation", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.CreateConversation(ctx, token, map[string]any{}, nil)
		}, "POST", "/conversation", `{}`, nil},
		{"SearchConversations", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.SearchConversations(ctx, token, url.Values{"text": {"hallo"}})
		}, "GET", "/conversation/search", "", url.Values{"text": {"hallo"}}},
		{"GetAnalysis", func(c *Client, ctx context.Context) (*httpclient.Response, error) { return c.GetAnalysis(ctx, token, "x", nil) },
			"GET", "/conversation/x/analysis", "", nil},
		{"GetTemplateResult", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.GetTemplateResult(ctx, token, "x", "0", "queryBuilder:conversationmlt:conversationmlt", nil)
		}, "GET", "/conversation/x/analysis/template/0/result/queryBuilder:conversationmlt:conversationmlt", "", nil},
		{"PostTemplateResult", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.PostTemplateResult(ctx, token, "x", "0", "qb", map[string]any{"a": 1}, nil)
		}, "POST", "/conversation/x/analysis/template/0/result/qb", `{"a":1}`, nil},
		{"GetAnalysisTokens", func(c *Client, ctx context.Context) (*httpclient.Response, error) { return c.GetAnalysisTokens(ctx, token, "x", nil) },
			"GET", "/conversation/x/analysis/token", "", nil},
		{"PostMessage", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.PostMessage(ctx, token, "x", Message{Content: "hi", Origin: "User"}, nil)
		}, "POST", "/conversation/x/message", `{"content":"hi","origin":"User","private":false}`, nil},
		{"UpdateMessageField", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.UpdateMessageField(ctx, token, "x", "m", "votes", 2, nil)
		}, "PUT", "/conversation/x/message/m/votes", `2`, nil},
		{"DeleteMessage", func(c *Client, ctx context.Context) (*httpclient.Response, error) { return c.DeleteMessage(ctx, token, "x", "m", nil) },
			"DELETE", "/conversation/x/message/m", "", nil},
		{"UpdateConversationField", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.UpdateConversationField(ctx, token, "x", "meta.status", "Complete", nil)
		}, "PUT", "/conversation/x/meta.status", `"Complete"`, nil},
		{"DeleteConversationField", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.DeleteConversationField(ctx, token, "x", "context.domain", nil)
		}, "DELETE", "/conversation/x/context.domain", "", nil},
		{"PostRocketMessage", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.PostRocketMessage(ctx, admin, "doe", RocketMessage{ChannelID: "ch", Text: "hi"})
		}, "POST", "/rocket/doe", `{"channel_id":"ch","text":"hi"}`, nil},
		{"GetRocketConversationID", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.GetRocketConversationID(ctx, admin, "doe", "ch")
		}, "GET", "/rocket/doe/ch/conversationid", "", nil},
		{"PublishConversation", func(c *Client, ctx context.Context) (*httpclient.Response, error) { return c.PublishConversation(ctx, admin, "x") },
			"POST", "/conversation/x/publish", "", nil},
		{"GetLegacyTemplateResults", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.GetLegacyTemplateResults(ctx, admin, "x", "0", "qb")
		}, "GET", "/conversation/x/template/0/qb", "", nil},
		{"CheckLogin", func(c *Client, ctx context.Context) (*httpclient.Response, error) { return c.CheckLogin(ctx, "admin") },
			"GET", "/auth/check", "", url.Values{"login": {"admin"}}},
		{"RecoverPassword", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.RecoverPassword(ctx, "admin", map[string]any{})
		}, "POST", "/auth/recover", `{}`, url.Values{"user": {"admin"}}},
		{"Signup", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.Signup(ctx, SignupRequest{Login: "u", Password: "p", Email: "u@example.com"})
		}, "POST", "/auth/signup", `{"login":"u","password":"p","email":"u@example.com"}`, nil},
		{"GetUser", func(c *Client, ctx context.Context) (*httpclient.Response, error) { return c.GetUser(ctx, admin, "anna") },
			"GET", "/user/anna", "", nil},
		{"DeleteUser", func(c *Client, ctx context.Context) (*httpclient.Response, error) { return c.DeleteUser(ctx, admin, "anna") },
			"DELETE", "/user/anna", "", nil},
		{"SetUserPassword", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.SetUserPassword(ctx, admin, "anna", "secret")
		}, "PUT", "/user/anna/password", `{"password":"secret"}`, nil},
		{"SetUserRoles", func(c *Client, ctx context.Context) (*httpclient.Response, error) {
			return c.SetUserRoles(ctx, admin, "anna", nil)
		}, "PUT", "/user/anna/roles", `[]`, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, rec := newRecordingServer(t, 200, `{}`)
			c := NewClient(zap.NewNop(), srv.URL+"/", nil, nil)

			resp, err := tc.call(c, context.Background())
			require.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)

			got := rec.get()
			assert.Equal(t, tc.method, got.Method)
			assert.Equal(t, tc.path, got.Path)
			if tc.body == "" {
				assert.Empty(t, got.Body)
				assert.Empty(t, got.Header.Get("Content-Type"))
			} else {
				assert.JSONEq(t, tc.body, got.Body)
				assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
			}
			if tc.query != nil {
				assert.Equal(t, tc.query, got.Query)
			}
		})
	}
}

// ─── responses ───

func TestNonSuccessStatus_IsNotAnError(t *testing.T) {
	srv, _ := newRecordingServer(t, 404, `{"message":"not found"}`)
	c := NewClient(zap.NewNop(), srv.URL, nil, nil)

	resp, err := c.GetClient(context.Background(), admin, "missing")
	require.NoError(t, err)
	assert.Equal(t, NotFound, resp.StatusCode)
	assert.Contains(t, resp.Text(), "not found")
}

func TestTransportError_Returned(t *testing.T) {
	srv, _ := newRecordingServer(t, 200, `[]`)
	base := srv.URL
	srv.Close()

	c := NewClient(zap.NewNop(), base, nil, nil)
	resp, err := c.ListClients(context.Background(), admin)
	require.Error(t, err)
	assert.Nil(t, resp)
}

func TestDecodeHelpers(t *testing.T) {
	resp := &httpclient.Response{Method: "GET", URL: "u", Body: []byte(`[{"id":"a","login":"x"},{"id":"b","login":"y"}]`)}
	list, err := DecodeEntities(resp)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, IDs(list))
	assert.Equal(t, []string{"x", "y"}, Logins(list))

	id, err := DecodeID(&httpclient.Response{Body: []byte(`{"id":"abc","token":"t"}`)})
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	_, err = DecodeID(&httpclient.Response{Body: []byte(`{}`)})
	require.Error(t, err)

	_, err = DecodeEntities(&httpclient.Response{Body: []byte(`not json`)})
	require.Error(t, err)
}
