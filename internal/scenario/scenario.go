// Package scenario holds the acceptance scenarios run against a Smarti instance.
// Each scenario is a sequence of dispatched requests; the first failed
// expectation ends it.
package scenario

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Checker-Finance/apitests/internal/auth"
	"github.com/Checker-Finance/apitests/internal/dispatch"
	"github.com/Checker-Finance/apitests/internal/fixtures"
	"github.com/Checker-Finance/apitests/internal/httpclient"
	"github.com/Checker-Finance/apitests/internal/smarti"
)

// ErrUnknownScenario is returned by Lookup for names that are not registered.
var ErrUnknownScenario = errors.New("unknown scenario")

// ErrAdminCredentials is returned by NewSuite for a token-mode admin.
var ErrAdminCredentials = errors.New("admin must authenticate with username and password")

// Scenario names.
const (
	NameClientWebservice       = "client-webservice"
	NameConversationWebservice = "conversation-webservice"
	NameAllUserRequests        = "all-user-requests"
	NameFull                   = "full"
	NameClients                = "clients"
	NameTokens                 = "tokens"
	NameTokenUsage             = "token-usage"
	NameTokenInvalid           = "token-invalid"
	NameUsers                  = "users"
	NameUserPermissions        = "user-permissions"
	NameRocketConversations    = "rocket-conversations"
	NamePerformance            = "performance"
)

// ProtectedLogin is never removed by Cleanup.
const ProtectedLogin = "admin"

// AssertionError reports a response whose status matched but whose body did not.
type AssertionError struct {
	Step    string
	Message string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion %s failed: %s", e.Step, e.Message)
}

func assertf(step, format string, args ...any) error {
	return &AssertionError{Step: step, Message: fmt.Sprintf(format, args...)}
}

// Options sizes the performance scenario.
type Options struct {
	Channels int
	Messages int
}

// DefaultOptions match the sizes of the historical performance run.
var DefaultOptions = Options{Channels: 20, Messages: 500}

// Suite binds the scenarios to one Smarti instance and admin account.
type Suite struct {
	logger *zap.Logger
	client *smarti.Client
	disp   *dispatch.Dispatcher
	admin  auth.Auth
	opts   Options
}

// NewSuite returns a suite acting as admin, which must be Basic credentials.
func NewSuite(logger *zap.Logger, client *smarti.Client, disp *dispatch.Dispatcher, admin auth.Auth, opts Options) (*Suite, error) {
	if !admin.IsBasic() {
		return nil, ErrAdminCredentials
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Channels <= 0 {
		opts.Channels = DefaultOptions.Channels
	}
	if opts.Messages <= 0 {
		opts.Messages = DefaultOptions.Messages
	}
	return &Suite{logger: logger, client: client, disp: disp, admin: admin, opts: opts}, nil
}

// Func is one runnable scenario.
type Func func(ctx context.Context) error

// Scenario is a named entry of the suite.
type Scenario struct {
	Name   string
	Legacy bool
	Run    Func
}

// Scenarios lists every scenario in run order; current-API ones first.
func (s *Suite) Scenarios() []Scenario {
	return []Scenario{
		{Name: NameClientWebservice, Run: s.ClientWebservice},
		{Name: NameConversationWebservice, Run: s.ConversationWebservice},
		{Name: NameAllUserRequests, Run: s.AllUserRequests},
		{Name: NameFull, Run: s.Full},
		{Name: NameClients, Legacy: true, Run: s.Clients},
		{Name: NameTokens, Legacy: true, Run: s.Tokens},
		{Name: NameTokenUsage, Legacy: true, Run: s.TokenUsage},
		{Name: NameTokenInvalid, Legacy: true, Run: s.TokenInvalid},
		{Name: NameUsers, Legacy: true, Run: s.Users},
		{Name: NameUserPermissions, Legacy: true, Run: s.UserPermissions},
		{Name: NameRocketConversations, Legacy: true, Run: s.RocketConversations},
		{Name: NamePerformance, Legacy: true, Run: s.Performance},
	}
}

// DefaultNames are the scenarios run when none are requested.
func DefaultNames() []string {
	return []string{NameClientWebservice, NameConversationWebservice, NameAllUserRequests, NameFull}
}

// Lookup finds a scenario by name.
func (s *Suite) Lookup(name string) (Scenario, error) {
	for _, sc := range s.Scenarios() {
		if sc.Name == name {
			return sc, nil
		}
	}
	return Scenario{}, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
}

// ─── shared steps ───

func (s *Suite) send(ctx context.Context, op string, expected int, call dispatch.Call) (*httpclient.Response, error) {
	return s.disp.Send(ctx, op, expected, call)
}

// createClient creates a client named name and returns its id.
func (s *Suite) createClient(ctx context.Context, name string) (string, error) {
	resp, err := s.send(ctx, "CreateClient", smarti.Created, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.CreateClient(ctx, s.admin, fixtures.ClientFixture(name))
	})
	if err != nil {
		return "", err
	}
	id, err := smarti.DecodeID(resp)
	if err != nil {
		return "", err
	}
	s.logger.Info("scenario.client_created", zap.String("client", name), zap.String("client_id", id))
	return id, nil
}

// configureClient installs the default query builder configuration.
func (s *Suite) configureClient(ctx context.Context, clientID string) error {
	_, err := s.send(ctx, "SetClientConfig", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.SetClientConfig(ctx, s.admin, clientID, fixtures.DefaultClientConfig())
	})
	return err
}

// createToken issues a client token and returns the created token entity.
func (s *Suite) createToken(ctx context.Context, clientID string) (*httpclient.Response, smarti.Entity, error) {
	resp, err := s.send(ctx, "CreateClientToken", smarti.Created, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.CreateClientToken(ctx, s.admin, clientID, map[string]any{})
	})
	if err != nil {
		return nil, smarti.Entity{}, err
	}
	tok, err := smarti.DecodeEntity(resp)
	if err != nil {
		return nil, smarti.Entity{}, err
	}
	if tok.Token == "" {
		return nil, smarti.Entity{}, assertf("CreateClientToken", "response carries no token")
	}
	return resp, tok, nil
}

// listClients returns the client entities visible to a.
func (s *Suite) listClients(ctx context.Context, a auth.Auth) ([]smarti.Entity, error) {
	resp, err := s.send(ctx, "ListClients", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.ListClients(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return smarti.DecodeEntities(resp)
}

func (s *Suite) listClientUsers(ctx context.Context, clientID string) ([]smarti.Entity, error) {
	resp, err := s.send(ctx, "ListClientUsers", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.ListClientUsers(ctx, s.admin, clientID)
	})
	if err != nil {
		return nil, err
	}
	return smarti.DecodeEntities(resp)
}

// uniqueClientNames draws n distinct client names.
func uniqueClientNames(n int) []string {
	seen := make(map[string]struct{}, n)
	names := make([]string, 0, n)
	for len(names) < n {
		name := fixtures.ClientName()
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// userLogin draws a login that never collides with the admin account.
func (s *Suite) userLogin() string {
	for {
		login := fixtures.Login()
		if login != ProtectedLogin && login != s.admin.Username() {
			return login
		}
	}
}
