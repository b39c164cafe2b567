package dataset

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/apitests/internal/auth"
	"github.com/Checker-Finance/apitests/internal/dispatch"
	"github.com/Checker-Finance/apitests/internal/fixtures"
	"github.com/Checker-Finance/apitests/internal/rate"
	"github.com/Checker-Finance/apitests/internal/rocketchat"
)

type mockRC struct {
	*httptest.Server
	mu       sync.Mutex
	calls    map[string]int
	texts    []string
	areas    []string
	failHelp bool
}

func (m *mockRC) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func newMockRC(t *testing.T) *mockRC {
	t.Helper()
	m := &mockRC{calls: map[string]int{}}
	mux := http.NewServeMux()
	handle := func(pattern, name string, h func(w http.ResponseWriter, r *http.Request)) {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.calls[name]++
			if name != "login" && (r.Header.Get(auth.TokenHeader) != "tok" || r.Header.Get(rocketchat.UserIDHeader) != "u1") {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			h(w, r)
		})
	}
	handle("POST /api/v1/login", "login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","data":{"userId":"u1","authToken":"tok"}}`))
	})
	handle("GET /api/v1/logout", "logout", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})
	handle("GET /api/v1/users.info", "info", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"user":{"_id":"u1","username":"bot","emails":[{"address":"bot@example.com"}]}}`))
	})
	handle("POST /api/v1/assistify.helpDiscussion", "help", func(w http.ResponseWriter, r *http.Request) {
		if m.failHelp {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var req rocketchat.HelpRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Providers) != 1 || req.Providers[0] != req.Seeker || req.Seeker.Email != "bot@example.com" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		m.areas = append(m.areas, req.SupportArea)
		_, _ = w.Write([]byte(`{"success":true,"room":{"_id":"r1","name":"help-1"}}`))
	})
	handle("POST /api/v1/chat.postMessage", "message", func(w http.ResponseWriter, r *http.Request) {
		var req rocketchat.ChatMessage
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.RoomID != "r1" || req.Text == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		m.texts = append(m.texts, req.Text)
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	m.Server = httptest.NewServer(mux)
	t.Cleanup(m.Close)
	return m
}

func newGenerator(m *mockRC, user auth.Auth, rateMgr *rate.Manager) *Generator {
	rc := rocketchat.NewClient(zap.NewNop(), m.URL, nil, rateMgr)
	return NewGenerator(zap.NewNop(), rc, dispatch.New(zap.NewNop()), user)
}

var bot = auth.FromCredentials("bot", "pw")

func TestRun_CreatesRequests(t *testing.T) {
	m := newMockRC(t)
	g := newGenerator(m, bot, nil)

	stats, err := g.Run(context.Background(), 4, 3)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Requests)
	assert.GreaterOrEqual(t, stats.Messages, 4)
	assert.LessOrEqual(t, stats.Messages, 12)
	assert.LessOrEqual(t, stats.Searchable, 4)

	assert.Equal(t, 4, m.count("login"))
	assert.Equal(t, 4, m.count("logout"))
	assert.Equal(t, 4, m.count("info"))
	assert.Equal(t, 4, m.count("help"))
	assert.Equal(t, stats.Messages+stats.Searchable, m.count("message"))
	assert.Equal(t, []string{SupportArea, SupportArea, SupportArea, SupportArea}, m.areas)

	searchable := 0
	for _, text := range m.texts {
		if text == fixtures.SearchableSentence {
			searchable++
		}
	}
	assert.Equal(t, stats.Searchable, searchable)
}

func TestRun_Paced(t *testing.T) {
	m := newMockRC(t)
	mgr := rate.NewManager(rate.Config{RequestsPerSecond: 1000, Burst: 5})
	g := newGenerator(m, bot, mgr)

	stats, err := g.Run(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Requests)
	assert.Equal(t, 2, stats.Messages)
}

func TestRun_InvalidCounts(t *testing.T) {
	m := newMockRC(t)
	g := newGenerator(m, bot, nil)

	_, err := g.Run(context.Background(), 0, 3)
	assert.ErrorIs(t, err, ErrInvalidCount)
	_, err = g.Run(context.Background(), 1, 0)
	assert.ErrorIs(t, err, ErrInvalidCount)
	assert.Zero(t, m.count("login"))
}

func TestRun_TokenUserRejected(t *testing.T) {
	m := newMockRC(t)
	g := newGenerator(m, auth.FromToken("abc"), nil)

	_, err := g.Run(context.Background(), 1, 1)
	assert.ErrorIs(t, err, rocketchat.ErrCredentialsRequired)
	assert.Zero(t, m.count("login"))
}

func TestRun_FailureStillLogsOut(t *testing.T) {
	m := newMockRC(t)
	m.failHelp = true
	g := newGenerator(m, bot, nil)

	stats, err := g.Run(context.Background(), 3, 2)
	var se *dispatch.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "CreateHelpRequest", se.Op)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
	assert.Contains(t, err.Error(), "help request 1")

	assert.Zero(t, stats.Requests)
	assert.Equal(t, 1, m.count("login"))
	assert.Equal(t, 1, m.count("logout"))
}

func TestRun_ServerDown(t *testing.T) {
	m := newMockRC(t)
	g := newGenerator(m, bot, nil)
	m.Close()

	_, err := g.Run(context.Background(), 1, 1)
	require.Error(t, err)
}

func TestRun_Canceled(t *testing.T) {
	m := newMockRC(t)
	g := newGenerator(m, bot, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Run(ctx, 2, 2)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, m.count("login"))
}
