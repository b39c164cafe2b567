// Package smartitest runs an in-memory imitation of the Smarti REST API for tests.
// It keeps just enough state to honor the visibility and lifecycle rules the
// scenarios rely on: admin sees every client, users see their assigned clients,
// a client token sees its own client and an unknown token sees nothing.
package smartitest

import (
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/Checker-Finance/apitests/internal/auth"
	"github.com/Checker-Finance/apitests/internal/smarti"
)

// AdminRole marks users that may manage clients and users.
const AdminRole = "ADMIN"

// Server is a running fake. Embedding httptest.Server exposes URL and Close.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	seq           int
	clients       map[string]*client
	tokens        map[string]*token
	users         map[string]*user
	conversations map[string]*conversation
	channels      map[string]string
	faults        map[string]int
}

type client struct {
	seq           int
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	DefaultClient bool   `json:"defaultClient"`
	LastUpdate    int64  `json:"lastUpdate"`
	config        json.RawMessage
}

type token struct {
	seq         int
	ID          string `json:"id"`
	Token       string `json:"token"`
	ClientID    string `json:"clientId"`
	Description string `json:"description"`
	Created     int64  `json:"created"`
}

type user struct {
	seq      int
	password string
	Login    string         `json:"login"`
	Roles    []string       `json:"roles"`
	Clients  []string       `json:"clients"`
	Profile  smarti.Profile `json:"profile"`
}

func (u *user) isAdmin() bool { return slices.Contains(u.Roles, AdminRole) }

type conversation struct {
	seq          int
	ID           string           `json:"id"`
	Owner        string           `json:"owner"`
	Meta         map[string]any   `json:"meta"`
	Context      map[string]any   `json:"context"`
	Messages     []map[string]any `json:"messages"`
	LastModified int64            `json:"lastModified"`
}

// principal is the authenticated caller of one request.
type principal struct {
	admin    bool
	user     *user
	clientID string
}

func (p *principal) sees(clientID string) bool {
	switch {
	case p.admin:
		return true
	case p.user != nil:
		return slices.Contains(p.user.Clients, clientID)
	default:
		return p.clientID == clientID
	}
}

// New starts a fake whose only user is an admin with the given credentials.
// The server is closed when t finishes.
func New(t testing.TB, adminLogin, adminPassword string) *Server {
	t.Helper()
	s := newState(adminLogin, adminPassword)

	app := fiber.New(fiber.Config{
		Immutable:             true,
		DisableStartupMessage: true,
	})
	s.routes(app)

	s.Server = httptest.NewServer(adaptor.FiberApp(app))
	t.Cleanup(s.Server.Close)
	return s
}

func newState(adminLogin, adminPassword string) *Server {
	s := &Server{
		clients:       map[string]*client{},
		tokens:        map[string]*token{},
		users:         map[string]*user{},
		conversations: map[string]*conversation{},
		channels:      map[string]string{},
		faults:        map[string]int{},
	}
	s.users[adminLogin] = &user{
		seq:      s.next(),
		password: adminPassword,
		Login:    adminLogin,
		Roles:    []string{AdminRole},
		Clients:  []string{},
		Profile:  smarti.Profile{Name: adminLogin, Email: adminLogin + "@localhost"},
	}
	return s
}

func (s *Server) routes(app *fiber.App) {
	app.Use(s.serialize)

	app.Get("/auth", s.getAuth)
	app.Get("/auth/check", s.checkLogin)
	app.Post("/auth/recover", s.recoverPassword)
	app.Post("/auth/signup", s.signup)

	app.Get("/client", s.listClients)
	app.Post("/client", s.createClient)
	app.Get("/client/:id", s.getClient)
	app.Delete("/client/:id", s.deleteClient)
	app.Get("/client/:id/config", s.getConfig)
	app.Post("/client/:id/config", s.setConfig)
	app.Get("/client/:id/token", s.listTokens)
	app.Post("/client/:id/token", s.createToken)
	app.Put("/client/:id/token/:tid", s.updateToken)
	app.Delete("/client/:id/token/:tid", s.deleteToken)
	app.Get("/client/:id/user", s.listClientUsers)
	app.Post("/client/:id/user", s.createClientUser)
	app.Put("/client/:id/user/:login", s.assignUser)
	app.Delete("/client/:id/user/:login", s.unassignUser)

	app.Get("/user", s.listUsers)
	app.Post("/user", s.createUser)
	app.Get("/user/:login", s.getUser)
	app.Put("/user/:login", s.updateUser)
	app.Delete("/user/:login", s.deleteUser)
	app.Put("/user/:login/password", s.setPassword)
	app.Put("/user/:login/roles", s.setRoles)

	app.Post("/rocket/:client", s.rocketMessage)
	app.Get("/rocket/:client/:channel/conversationid", s.rocketConversationID)

	app.Get("/conversation", s.listConversations)
	app.Post("/conversation", s.createConversation)
	app.Get("/conversation/search", s.searchConversations)
	app.Get("/conversation/:id", s.getConversation)
	app.Delete("/conversation/:id", s.deleteConversation)
	app.Post("/conversation/:id/publish", s.publish)
	app.Get("/conversation/:id/analysis", s.getAnalysis)
	app.Post("/conversation/:id/analysis", s.postAnalysis)
	app.Get("/conversation/:id/analysis/template", s.listTemplates)
	app.Get("/conversation/:id/analysis/token", s.analysisTokens)
	app.Get("/conversation/:id/analysis/template/:idx", s.getTemplate)
	app.Get("/conversation/:id/analysis/template/:idx/result/:creator", s.getResult)
	app.Post("/conversation/:id/analysis/template/:idx/result/:creator", s.getResult)
	app.Get("/conversation/:id/template/:idx/:creator", s.getResult)
	app.Get("/conversation/:id/message", s.listMessages)
	app.Post("/conversation/:id/message", s.postMessage)
	app.Get("/conversation/:id/message/:mid", s.getMessage)
	app.Put("/conversation/:id/message/:mid", s.updateMessage)
	app.Delete("/conversation/:id/message/:mid", s.deleteMessage)
	app.Put("/conversation/:id/message/:mid/:field", s.updateMessageField)
	app.Put("/conversation/:id/:field", s.updateField)
	app.Delete("/conversation/:id/:field", s.deleteField)
}

// serialize runs one request at a time and applies injected faults.
func (s *Server) serialize(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := c.Method() + " " + c.Path()
	if status, ok := s.faults[key]; ok {
		delete(s.faults, key)
		return errorJSON(c, status, "injected fault")
	}
	return c.Next()
}

// ─── inspection ───

// FailOnce makes the next request for method and exact path answer with status.
func (s *Server) FailOnce(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method+" "+path] = status
}

// ClientIDs lists all client ids in creation order.
func (s *Server) ClientIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.clients))
	for _, cl := range sortedClients(s.clients) {
		out = append(out, cl.ID)
	}
	return out
}

// Logins lists all user logins in creation order.
func (s *Server) Logins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.users))
	for _, u := range sortedUsers(s.users) {
		out = append(out, u.Login)
	}
	return out
}

// ConversationCount returns the number of stored conversations.
func (s *Server) ConversationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// ─── helpers ───

func (s *Server) next() int {
	s.seq++
	return s.seq
}

// authenticate resolves Basic credentials or a client token. ok is false when
// the request carries neither or they do not match.
func (s *Server) authenticate(c *fiber.Ctx) (*principal, bool) {
	if tok := c.Get(auth.TokenHeader); tok != "" {
		t, ok := s.tokens[tok]
		if !ok {
			return nil, false
		}
		return &principal{clientID: t.ClientID}, true
	}

	login, password, ok := parseBasic(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return nil, false
	}
	u, ok := s.users[login]
	if !ok || u.password == "" || u.password != password {
		return nil, false
	}
	return &principal{admin: u.isAdmin(), user: u}, true
}

func parseBasic(header string) (string, string, bool) {
	encoded, ok := strings.CutPrefix(header, "Basic ")
	if !ok {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", false
	}
	return strings.Cut(string(raw), ":")
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"status": status, "message": msg})
}

func unauthorized(c *fiber.Ctx) error {
	return errorJSON(c, fiber.StatusUnauthorized, "Full authentication is required to access this resource")
}

func forbidden(c *fiber.Ctx) error {
	return errorJSON(c, fiber.StatusForbidden, "Access is denied")
}

func notFound(c *fiber.Ctx, what string) error {
	return errorJSON(c, fiber.StatusNotFound, what+" not found")
}

func now() int64 { return time.Now().UnixMilli() }

func sortedClients(m map[string]*client) []*client {
	out := make([]*client, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func sortedUsers(m map[string]*user) []*user {
	out := make([]*user, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func sortedConversations(m map[string]*conversation) []*conversation {
	out := make([]*conversation, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}
