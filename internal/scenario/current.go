package scenario

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/Checker-Finance/apitests/internal/auth"
	"github.com/Checker-Finance/apitests/internal/fixtures"
	"github.com/Checker-Finance/apitests/internal/httpclient"
	"github.com/Checker-Finance/apitests/internal/smarti"
)

const (
	templateIndex = "0"
	fullMessages  = 3
)

// ClientWebservice walks the client, config, token and client-user endpoints as admin.
func (s *Suite) ClientWebservice(ctx context.Context) error {
	name := fixtures.ClientName()
	s.logger.Info("scenario.client_name", zap.String("client", name))
	const login = "TestUser"
	user := fixtures.UserFixture(login)
	a := s.admin

	if _, err := s.listClients(ctx, a); err != nil {
		return err
	}
	clientID, err := s.createClient(ctx, name)
	if err != nil {
		return err
	}
	if _, err := s.send(ctx, "GetClient", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.GetClient(ctx, a, clientID)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "GetClientConfig", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.GetClientConfig(ctx, a, clientID)
	}); err != nil {
		return err
	}
	if err := s.configureClient(ctx, clientID); err != nil {
		return err
	}

	if _, err := s.send(ctx, "ListClientTokens", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.ListClientTokens(ctx, a, clientID)
	}); err != nil {
		return err
	}
	tokenResp, tok, err := s.createToken(ctx, clientID)
	if err != nil {
		return err
	}
	tokenObj := json.RawMessage(tokenResp.Body)
	if _, err := s.send(ctx, "UpdateClientToken", smarti.UpdateSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.UpdateClientToken(ctx, a, clientID, tok.ID, tokenObj)
	}); err != nil {
		return err
	}

	if _, err := s.listClientUsers(ctx, clientID); err != nil {
		return err
	}
	if _, err := s.send(ctx, "CreateClientUser", smarti.Created, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.CreateClientUser(ctx, a, clientID, user)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "AssignClientUser", smarti.UpdateSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.AssignClientUser(ctx, a, clientID, login)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "UnassignClientUser", smarti.NoContent, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.UnassignClientUser(ctx, a, clientID, login)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "DeleteClientToken", smarti.NoContent, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.DeleteClientToken(ctx, a, clientID, tok.ID)
	}); err != nil {
		return err
	}
	_, err = s.send(ctx, "DeleteClient", smarti.NoContent, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.DeleteClient(ctx, a, clientID)
	})
	return err
}

// ConversationWebservice walks every conversation endpoint with a client token.
func (s *Suite) ConversationWebservice(ctx context.Context) error {
	name := fixtures.ClientName()
	s.logger.Info("scenario.client_name", zap.String("client", name))

	clientID, err := s.createClient(ctx, name)
	if err != nil {
		return err
	}
	if err := s.configureClient(ctx, clientID); err != nil {
		return err
	}
	_, tok, err := s.createToken(ctx, clientID)
	if err != nil {
		return err
	}
	a := auth.FromToken(tok.Token)

	if _, err := s.send(ctx, "ListConversations", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.ListConversations(ctx, a, nil)
	}); err != nil {
		return err
	}
	convID, err := s.createConversation(ctx, a)
	if err != nil {
		return err
	}
	if _, err := s.send(ctx, "SearchConversations", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.SearchConversations(ctx, a, nil)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "GetConversation", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.GetConversation(ctx, a, convID, nil)
	}); err != nil {
		return err
	}

	analysisResp, err := s.send(ctx, "GetAnalysis", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.GetAnalysis(ctx, a, convID, nil)
	})
	if err != nil {
		return err
	}
	// the analysis is posted back as read
	analysis := json.RawMessage(analysisResp.Body)
	if _, err := s.send(ctx, "PostAnalysis", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.PostAnalysis(ctx, a, convID, analysis, nil)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "ListAnalysisTemplates", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.ListAnalysisTemplates(ctx, a, convID, nil)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "GetAnalysisTemplate", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.GetAnalysisTemplate(ctx, a, convID, templateIndex, nil)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "GetTemplateResult", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.GetTemplateResult(ctx, a, convID, templateIndex, fixtures.Creator, nil)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "PostTemplateResult", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.PostTemplateResult(ctx, a, convID, templateIndex, fixtures.Creator, analysis, nil)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "GetAnalysisTokens", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.GetAnalysisTokens(ctx, a, convID, nil)
	}); err != nil {
		return err
	}

	if _, err := s.send(ctx, "ListMessages", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.ListMessages(ctx, a, convID, nil)
	}); err != nil {
		return err
	}
	message := fixtures.RandomMessage()
	msgResp, err := s.send(ctx, "PostMessage", smarti.Created, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.PostMessage(ctx, a, convID, message, nil)
	})
	if err != nil {
		return err
	}
	messageID, err := smarti.DecodeID(msgResp)
	if err != nil {
		return err
	}
	s.logger.Info("scenario.message_created", zap.String("message_id", messageID))

	if _, err := s.send(ctx, "GetMessage", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.GetMessage(ctx, a, convID, messageID, nil)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "UpdateMessage", smarti.UpdateSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.UpdateMessage(ctx, a, convID, messageID, message, nil)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "UpdateMessageField", smarti.UpdateSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.UpdateMessageField(ctx, a, convID, messageID, "votes", 1, nil)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "UpdateConversationField", smarti.UpdateSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.UpdateConversationField(ctx, a, convID, "context.domain", map[string]any{"value": "test"}, nil)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "DeleteMessage", smarti.NoContent, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.DeleteMessage(ctx, a, convID, messageID, nil)
	}); err != nil {
		return err
	}
	_, err = s.send(ctx, "DeleteConversationField", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.DeleteConversationField(ctx, a, convID, "context.domain", nil)
	})
	return err
}

// AllUserRequests walks the auth and user endpoints.
func (s *Suite) AllUserRequests(ctx context.Context) error {
	const (
		login       = "TestUser"
		password    = "password"
		newPassword = "newPassword"
	)
	signup := smarti.SignupRequest{Login: login, Password: password, Email: login + "@example.com"}
	user := fixtures.UserWithEmail(login+"1", login+"1@example.com")
	a := s.admin

	if _, err := s.send(ctx, "GetAuth", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.GetAuth(ctx)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "CheckLogin", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.CheckLogin(ctx, a.Username())
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "RecoverPassword", smarti.Accepted, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.RecoverPassword(ctx, a.Username(), map[string]any{})
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "Signup", smarti.Created, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.Signup(ctx, signup)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "ListUsers", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.ListUsers(ctx, a, nil)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "CreateUser", smarti.Created, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.CreateUser(ctx, a, user)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "GetUser", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.GetUser(ctx, a, login)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "UpdateUser", smarti.UpdateSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.UpdateUser(ctx, a, login, user)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "SetUserPassword", smarti.UpdateSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.SetUserPassword(ctx, a, login, newPassword)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "SetUserRoles", smarti.UpdateSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.SetUserRoles(ctx, a, login, []string{})
	}); err != nil {
		return err
	}
	_, err := s.send(ctx, "DeleteUser", smarti.NoContent, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.DeleteUser(ctx, a, login)
	})
	return err
}

// Full runs the end-to-end flow: two conversations, one created with a
// client token and one by a user, then field and message edits.
func (s *Suite) Full(ctx context.Context) error {
	name := fixtures.ClientName()
	s.logger.Info("scenario.client_name", zap.String("client", name))
	login := s.userLogin()

	clientID, err := s.createClient(ctx, name)
	if err != nil {
		return err
	}
	if err := s.configureClient(ctx, clientID); err != nil {
		return err
	}
	_, tok, err := s.createToken(ctx, clientID)
	if err != nil {
		return err
	}
	tokenAuth := auth.FromToken(tok.Token)

	if _, err := s.send(ctx, "CreateUser", smarti.Created, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.CreateUser(ctx, s.admin, fixtures.UserFixture(login))
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "SetUserPassword", smarti.UpdateSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.SetUserPassword(ctx, s.admin, login, login)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "SetUserRoles", smarti.UpdateSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.SetUserRoles(ctx, s.admin, login, []string{"USER"})
	}); err != nil {
		return err
	}
	s.logger.Info("scenario.user_created", zap.String("login", login))
	userAuth := auth.FromCredentials(login, login)
	if _, err := s.send(ctx, "AssignClientUser", smarti.UpdateSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.AssignClientUser(ctx, s.admin, clientID, login)
	}); err != nil {
		return err
	}

	tokenConv, err := s.seedConversation(ctx, tokenAuth)
	if err != nil {
		return fmt.Errorf("token conversation: %w", err)
	}
	userConv, err := s.seedConversation(ctx, userAuth)
	if err != nil {
		return fmt.Errorf("user conversation: %w", err)
	}

	// completing the first conversation makes it a result candidate
	if err := s.updateField(ctx, tokenAuth, tokenConv, "meta.status", "Complete"); err != nil {
		return err
	}
	if err := s.readAnalysis(ctx, tokenAuth, tokenConv); err != nil {
		return err
	}

	updates := []struct {
		field string
		value any
	}{
		{"context.contextType", "application/json"},
		{"context.domain", "testdomain"},
		{"context.environment.*", "value"},
		{"meta.status", "Complete"},
		{"meta.*", "value"},
	}
	for _, u := range updates {
		if err := s.updateField(ctx, tokenAuth, userConv, u.field, u.value); err != nil {
			return err
		}
	}
	deletes := []struct {
		field    string
		expected int
	}{
		{"context.domain", smarti.OKSuccess},
		{"context.environment.*", smarti.OKSuccess},
		{"context.contextType", smarti.OKSuccess},
		{"meta.status", smarti.InvalidData},
		{"meta.*", smarti.OKSuccess},
	}
	for _, d := range deletes {
		field := d.field
		if _, err := s.send(ctx, "DeleteConversationField", d.expected, func(ctx context.Context) (*httpclient.Response, error) {
			return s.client.DeleteConversationField(ctx, userAuth, userConv, field, nil)
		}); err != nil {
			return err
		}
	}

	return s.editFirstMessage(ctx, userAuth, userConv)
}

// editFirstMessage modifies each field of the first message, restores it, and deletes it.
func (s *Suite) editFirstMessage(ctx context.Context, a auth.Auth, convID string) error {
	resp, err := s.send(ctx, "ListMessages", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.ListMessages(ctx, a, convID, nil)
	})
	if err != nil {
		return err
	}
	var messages []json.RawMessage
	if err := resp.JSON(&messages); err != nil {
		return err
	}
	if len(messages) != fullMessages {
		return assertf("ListMessages", "conversation %s has %d messages, want %d", convID, len(messages), fullMessages)
	}
	backup := messages[0]
	var first smarti.Message
	if err := json.Unmarshal(backup, &first); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if first.ID == "" {
		return assertf("ListMessages", "first message carries no id")
	}
	s.logger.Info("scenario.message_selected", zap.String("message_id", first.ID))

	fields := []struct {
		name  string
		value any
	}{
		{"time", 1516888011317},
		{"origin", "User"},
		{"content", "content"},
		{"private", "true"},
		{"votes", "2"},
		{"metadata.*", map[string]any{"key": "value"}},
	}
	for _, f := range fields {
		field, value := f.name, f.value
		if _, err := s.send(ctx, "UpdateMessageField", smarti.UpdateSuccess, func(ctx context.Context) (*httpclient.Response, error) {
			return s.client.UpdateMessageField(ctx, a, convID, first.ID, field, value, nil)
		}); err != nil {
			return err
		}
	}

	if _, err := s.send(ctx, "UpdateMessage", smarti.UpdateSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.UpdateMessage(ctx, a, convID, first.ID, backup, nil)
	}); err != nil {
		return err
	}
	if _, err := s.send(ctx, "DeleteMessage", smarti.NoContent, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.DeleteMessage(ctx, a, convID, first.ID, nil)
	}); err != nil {
		return err
	}
	resp, err = s.send(ctx, "ListMessages", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.ListMessages(ctx, a, convID, nil)
	})
	if err != nil {
		return err
	}
	messages = messages[:0]
	if err := resp.JSON(&messages); err != nil {
		return err
	}
	if len(messages) != fullMessages-1 {
		return assertf("DeleteMessage", "conversation %s has %d messages after delete, want %d", convID, len(messages), fullMessages-1)
	}
	return nil
}

// ─── conversation helpers ───

func (s *Suite) createConversation(ctx context.Context, a auth.Auth) (string, error) {
	resp, err := s.send(ctx, "CreateConversation", smarti.Created, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.CreateConversation(ctx, a, map[string]any{}, nil)
	})
	if err != nil {
		return "", err
	}
	id, err := smarti.DecodeID(resp)
	if err != nil {
		return "", err
	}
	s.logger.Info("scenario.conversation_created", zap.String("conversation_id", id))
	return id, nil
}

// seedConversation creates a conversation, posts random messages and reads its analysis.
func (s *Suite) seedConversation(ctx context.Context, a auth.Auth) (string, error) {
	convID, err := s.createConversation(ctx, a)
	if err != nil {
		return "", err
	}
	for range fullMessages {
		if _, err := s.send(ctx, "PostMessage", smarti.Created, func(ctx context.Context) (*httpclient.Response, error) {
			return s.client.PostMessage(ctx, a, convID, fixtures.RandomMessage(), nil)
		}); err != nil {
			return "", err
		}
	}
	return convID, s.readAnalysis(ctx, a, convID)
}

// readAnalysis fetches the analysis, its templates and the first template's results.
func (s *Suite) readAnalysis(ctx context.Context, a auth.Auth, convID string) error {
	if _, err := s.send(ctx, "GetAnalysis", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.GetAnalysis(ctx, a, convID, nil)
	}); err != nil {
		return err
	}
	return s.readTemplates(ctx, a, convID)
}

func (s *Suite) readTemplates(ctx context.Context, a auth.Auth, convID string) error {
	if _, err := s.send(ctx, "ListAnalysisTemplates", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.ListAnalysisTemplates(ctx, a, convID, nil)
	}); err != nil {
		return err
	}
	_, err := s.send(ctx, "GetTemplateResult", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.GetTemplateResult(ctx, a, convID, templateIndex, fixtures.Creator, nil)
	})
	return err
}

func (s *Suite) updateField(ctx context.Context, a auth.Auth, convID, field string, value any) error {
	_, err := s.send(ctx, "UpdateConversationField", smarti.UpdateSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.UpdateConversationField(ctx, a, convID, field, value, nil)
	})
	return err
}
