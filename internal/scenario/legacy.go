package scenario

import (
	"context"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/Checker-Finance/apitests/internal/auth"
	"github.com/Checker-Finance/apitests/internal/fixtures"
	"github.com/Checker-Finance/apitests/internal/httpclient"
	"github.com/Checker-Finance/apitests/internal/smarti"
)

const legacyClients = 10

// Clients creates several clients and checks that all of them are listed.
func (s *Suite) Clients(ctx context.Context) error {
	created := make([]string, 0, legacyClients)
	for _, name := range uniqueClientNames(legacyClients) {
		id, err := s.createClient(ctx, name)
		if err != nil {
			return err
		}
		created = append(created, id)
	}
	clients, err := s.listClients(ctx, s.admin)
	if err != nil {
		return err
	}
	listed := smarti.IDs(clients)
	for _, id := range created {
		if !slices.Contains(listed, id) {
			return assertf("ListClients", "created client %s is not listed", id)
		}
	}
	return nil
}

// Tokens checks the token list before and after creating and deleting a token.
func (s *Suite) Tokens(ctx context.Context) error {
	clientID, err := s.createClient(ctx, fixtures.ClientName())
	if err != nil {
		return err
	}
	if err := s.expectTokens(ctx, clientID, 0); err != nil {
		return err
	}
	_, tok, err := s.createToken(ctx, clientID)
	if err != nil {
		return err
	}
	if err := s.expectTokens(ctx, clientID, 1); err != nil {
		return err
	}
	if _, err := s.send(ctx, "DeleteClientToken", smarti.NoContent, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.DeleteClientToken(ctx, s.admin, clientID, tok.ID)
	}); err != nil {
		return err
	}
	return s.expectTokens(ctx, clientID, 0)
}

func (s *Suite) expectTokens(ctx context.Context, clientID string, want int) error {
	resp, err := s.send(ctx, "ListClientTokens", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.ListClientTokens(ctx, s.admin, clientID)
	})
	if err != nil {
		return err
	}
	tokens, err := smarti.DecodeEntities(resp)
	if err != nil {
		return err
	}
	if len(tokens) != want {
		return assertf("ListClientTokens", "client %s has %d tokens, want %d", clientID, len(tokens), want)
	}
	return nil
}

// TokenUsage checks that a client token sees exactly its own client.
func (s *Suite) TokenUsage(ctx context.Context) error {
	clientID, err := s.createClient(ctx, fixtures.ClientName())
	if err != nil {
		return err
	}
	_, tok, err := s.createToken(ctx, clientID)
	if err != nil {
		return err
	}
	clients, err := s.listClients(ctx, auth.FromToken(tok.Token))
	if err != nil {
		return err
	}
	if len(clients) != 1 || clients[0].ID != clientID {
		return assertf("ListClients", "token sees %v, want [%s]", smarti.IDs(clients), clientID)
	}
	return nil
}

// TokenInvalid checks that an unknown token sees no clients.
func (s *Suite) TokenInvalid(ctx context.Context) error {
	clientID, err := s.createClient(ctx, fixtures.ClientName())
	if err != nil {
		return err
	}
	if _, _, err := s.createToken(ctx, clientID); err != nil {
		return err
	}
	clients, err := s.listClients(ctx, auth.FromToken(fixtures.RandomToken()))
	if err != nil {
		return err
	}
	if len(clients) != 0 {
		return assertf("ListClients", "random token sees %d clients, want 0", len(clients))
	}
	return nil
}

// Users toggles a user's client assignment and checks the client's user list each time.
func (s *Suite) Users(ctx context.Context) error {
	clientID, err := s.createClient(ctx, fixtures.ClientName())
	if err != nil {
		return err
	}
	login := s.userLogin()
	if _, err := s.send(ctx, "CreateClientUser", smarti.Created, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.CreateClientUser(ctx, s.admin, clientID, fixtures.UserFixture(login))
	}); err != nil {
		return err
	}
	if err := s.expectClientUsers(ctx, clientID, login, true); err != nil {
		return err
	}
	if _, err := s.send(ctx, "UnassignClientUser", smarti.NoContent, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.UnassignClientUser(ctx, s.admin, clientID, login)
	}); err != nil {
		return err
	}
	if err := s.expectClientUsers(ctx, clientID, login, false); err != nil {
		return err
	}
	if _, err := s.send(ctx, "AssignClientUser", smarti.UpdateSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.AssignClientUser(ctx, s.admin, clientID, login)
	}); err != nil {
		return err
	}
	if err := s.expectClientUsers(ctx, clientID, login, true); err != nil {
		return err
	}
	_, err = s.send(ctx, "DeleteUser", smarti.NoContent, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.DeleteUser(ctx, s.admin, login)
	})
	return err
}

func (s *Suite) expectClientUsers(ctx context.Context, clientID, login string, assigned bool) error {
	users, err := s.listClientUsers(ctx, clientID)
	if err != nil {
		return err
	}
	logins := smarti.Logins(users)
	switch {
	case assigned && !slices.Equal(logins, []string{login}):
		return assertf("ListClientUsers", "client %s has users %v, want [%s]", clientID, logins, login)
	case !assigned && len(logins) != 0:
		return assertf("ListClientUsers", "client %s has users %v, want none", clientID, logins)
	}
	return nil
}

// UserPermissions checks that a user only sees the clients assigned to it.
func (s *Suite) UserPermissions(ctx context.Context) error {
	names := uniqueClientNames(2)
	if _, err := s.createClient(ctx, names[0]); err != nil {
		return err
	}
	clientID, err := s.createClient(ctx, names[1])
	if err != nil {
		return err
	}
	login := s.userLogin()
	if _, err := s.send(ctx, "CreateClientUser", smarti.Created, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.CreateClientUser(ctx, s.admin, clientID, fixtures.UserFixture(login))
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "SetUserPassword", smarti.UpdateSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.SetUserPassword(ctx, s.admin, login, login)
	}); err != nil {
		return err
	}
	userAuth := auth.FromCredentials(login, login)
	visible, err := s.listClients(ctx, userAuth)
	if err != nil {
		return err
	}
	if len(visible) != 1 || visible[0].ID != clientID {
		return assertf("ListClients", "user %s sees %v, want [%s]", login, smarti.IDs(visible), clientID)
	}
	all, err := s.listClients(ctx, s.admin)
	if err != nil {
		return err
	}
	if len(all) != 2 {
		return assertf("ListClients", "admin sees %d clients, want 2", len(all))
	}
	return nil
}

// RocketConversations feeds one message through the rocket webhook and
// reads the resulting conversation through the legacy endpoints.
func (s *Suite) RocketConversations(ctx context.Context) error {
	name := fixtures.ClientName()
	clientID, err := s.createClient(ctx, name)
	if err != nil {
		return err
	}
	if err := s.configureClient(ctx, clientID); err != nil {
		return err
	}
	channel := fixtures.RandomID24()
	msg := smarti.RocketMessage{
		ChannelID: channel,
		Text:      "Hi, my name is " + fixtures.FullName(),
	}
	if err := s.postRocket(ctx, name, msg); err != nil {
		return err
	}
	return s.inspectChannel(ctx, name, channel)
}

// Performance spreads many webhook messages over several channels, then
// publishes and reads every conversation that was created.
func (s *Suite) Performance(ctx context.Context) error {
	name := fixtures.ClientName()
	clientID, err := s.createClient(ctx, name)
	if err != nil {
		return err
	}
	if err := s.configureClient(ctx, clientID); err != nil {
		return err
	}

	channels := make([]string, s.opts.Channels)
	for i := range channels {
		channels[i] = fixtures.RandomID24()
	}
	// the first messages visit every channel once so each gets a conversation
	used := make([]string, 0, len(channels))
	for i := range s.opts.Messages {
		var channel string
		if i < len(channels) {
			channel = channels[i]
			used = append(used, channel)
		} else {
			channel = channels[fixtures.Intn(0, len(channels)-1)]
		}
		msg := smarti.RocketMessage{
			MessageID: fixtures.RandomID24(),
			ChannelID: channel,
			Text:      fixtures.RandomText(),
		}
		if err := s.postRocket(ctx, name, msg); err != nil {
			return err
		}
	}
	s.logger.Info("scenario.messages_sent",
		zap.Int("messages", s.opts.Messages),
		zap.Int("channels", len(used)))

	for _, channel := range used {
		if err := s.inspectChannel(ctx, name, channel); err != nil {
			return err
		}
	}
	return nil
}

func (s *Suite) postRocket(ctx context.Context, clientName string, msg smarti.RocketMessage) error {
	_, err := s.send(ctx, "PostRocketMessage", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.PostRocketMessage(ctx, s.admin, clientName, msg)
	})
	return err
}

// inspectChannel resolves the channel's conversation, publishes it and reads its results.
func (s *Suite) inspectChannel(ctx context.Context, clientName, channel string) error {
	resp, err := s.send(ctx, "GetRocketConversationID", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.GetRocketConversationID(ctx, s.admin, clientName, channel)
	})
	if err != nil {
		return err
	}
	convID := strings.Trim(strings.TrimSpace(resp.Text()), `"`)
	if convID == "" {
		return assertf("GetRocketConversationID", "no conversation for channel %s", channel)
	}
	if _, err := s.send(ctx, "PublishConversation", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.PublishConversation(ctx, s.admin, convID)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "GetAnalysis", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.GetAnalysis(ctx, s.admin, convID, nil)
	}); err != nil {
		return err
	}
	_, err = s.send(ctx, "GetLegacyTemplateResults", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.GetLegacyTemplateResults(ctx, s.admin, convID, templateIndex, fixtures.Creator)
	})
	return err
}
