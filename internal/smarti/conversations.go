package smarti

import (
	"context"
	"net/url"

	"github.com/Checker-Finance/apitests/internal/auth"
	"github.com/Checker-Finance/apitests/internal/httpclient"
)

func conversationPath(id string) string { return "conversation/" + id }

func templatePath(id, idx string) string {
	return conversationPath(id) + "/analysis/template/" + idx
}

func messagePath(id, messageID string) string {
	return conversationPath(id) + "/message/" + messageID
}

// GET conversation
func (c *Client) ListConversations(ctx context.Context, a auth.Auth, query url.Values) (*httpclient.Response, error) {
	return c.get(ctx, a, "conversation", query)
}

// POST conversation
func (c *Client) CreateConversation(ctx context.Context, a auth.Auth, body any, query url.Values) (*httpclient.Response, error) {
	return c.post(ctx, a, "conversation", body, query)
}

// GET conversation/search
func (c *Client) SearchConversations(ctx context.Context, a auth.Auth, query url.Values) (*httpclient.Response, error) {
	return c.get(ctx, a, "conversation/search", query)
}

// GET conversation/{id}
func (c *Client) GetConversation(ctx context.Context, a auth.Auth, id string, query url.Values) (*httpclient.Response, error) {
	return c.get(ctx, a, conversationPath(id), query)
}

// DELETE conversation/{id}
func (c *Client) DeleteConversation(ctx context.Context, a auth.Auth, id string) (*httpclient.Response, error) {
	return c.del(ctx, a, conversationPath(id), nil)
}

// GET conversation/{id}/analysis
func (c *Client) GetAnalysis(ctx context.Context, a auth.Auth, id string, query url.Values) (*httpclient.Response, error) {
	return c.get(ctx, a, conversationPath(id)+"/analysis", query)
}

// PostAnalysis asks the server to re-run analysis on the given analysis document.
// POST conversation/{id}/analysis
func (c *Client) PostAnalysis(ctx context.Context, a auth.Auth, id string, analysis any, query url.Values) (*httpclient.Response, error) {
	return c.post(ctx, a, conversationPath(id)+"/analysis", analysis, query)
}

// GET conversation/{id}/analysis/template
func (c *Client) ListAnalysisTemplates(ctx context.Context, a auth.Auth, id string, query url.Values) (*httpclient.Response, error) {
	return c.get(ctx, a, conversationPath(id)+"/analysis/template", query)
}

// GET conversation/{id}/analysis/template/{idx}
func (c *Client) GetAnalysisTemplate(ctx context.Context, a auth.Auth, id, idx string, query url.Values) (*httpclient.Response, error) {
	return c.get(ctx, a, templatePath(id, idx), query)
}

// GET conversation/{id}/analysis/template/{idx}/result/{creator}
func (c *Client) GetTemplateResult(ctx context.Context, a auth.Auth, id, idx, creator string, query url.Values) (*httpclient.Response, error) {
	return c.get(ctx, a, templatePath(id, idx)+"/result/"+creator, query)
}

// POST conversation/{id}/analysis/template/{idx}/result/{creator}
func (c *Client) PostTemplateResult(ctx context.Context, a auth.Auth, id, idx, creator string, analysis any, query url.Values) (*httpclient.Response, error) {
	return c.post(ctx, a, templatePath(id, idx)+"/result/"+creator, analysis, query)
}

// GET conversation/{id}/analysis/token
func (c *Client) GetAnalysisTokens(ctx context.Context, a auth.Auth, id string, query url.Values) (*httpclient.Response, error) {
	return c.get(ctx, a, conversationPath(id)+"/analysis/token", query)
}

// GET conversation/{id}/message
func (c *Client) ListMessages(ctx context.Context, a auth.Auth, id string, query url.Values) (*httpclient.Response, error) {
	return c.get(ctx, a, conversationPath(id)+"/message", query)
}

// POST conversation/{id}/message
func (c *Client) PostMessage(ctx context.Context, a auth.Auth, id string, message any, query url.Values) (*httpclient.Response, error) {
	return c.post(ctx, a, conversationPath(id)+"/message", message, query)
}

// GET conversation/{id}/message/{mid}
func (c *Client) GetMessage(ctx context.Context, a auth.Auth, id, messageID string, query url.Values) (*httpclient.Response, error) {
	return c.get(ctx, a, messagePath(id, messageID), query)
}

// PUT conversation/{id}/message/{mid}
func (c *Client) UpdateMessage(ctx context.Context, a auth.Auth, id, messageID string, message any, query url.Values) (*httpclient.Response, error) {
	return c.put(ctx, a, messagePath(id, messageID), message, query)
}

// UpdateMessageField replaces a single field; field may be a path such as "metadata.*".
// PUT conversation/{id}/message/{mid}/{field}
func (c *Client) UpdateMessageField(ctx context.Context, a auth.Auth, id, messageID, field string, value any, query url.Values) (*httpclient.Response, error) {
	return c.put(ctx, a, messagePath(id, messageID)+"/"+field, value, query)
}

// DELETE conversation/{id}/message/{mid}
func (c *Client) DeleteMessage(ctx context.Context, a auth.Auth, id, messageID string, query url.Values) (*httpclient.Response, error) {
	return c.del(ctx, a, messagePath(id, messageID), query)
}

// UpdateConversationField replaces a context or meta field, e.g. "meta.status".
// PUT conversation/{id}/{field}
func (c *Client) UpdateConversationField(ctx context.Context, a auth.Auth, id, field string, value any, query url.Values) (*httpclient.Response, error) {
	return c.put(ctx, a, conversationPath(id)+"/"+field, value, query)
}

// DELETE conversation/{id}/{field}
func (c *Client) DeleteConversationField(ctx context.Context, a auth.Auth, id, field string, query url.Values) (*httpclient.Response, error) {
	return c.del(ctx, a, conversationPath(id)+"/"+field, query)
}

// ─── rocket.chat webhook (legacy surface) ───

// PostRocketMessage feeds one chat message into the client's conversation for the channel.
// POST rocket/{clientName}
func (c *Client) PostRocketMessage(ctx context.Context, a auth.Auth, clientName string, message any) (*httpclient.Response, error) {
	return c.post(ctx, a, "rocket/"+clientName, message, nil)
}

// GetRocketConversationID resolves a channel to its conversation. The body is the bare id.
// GET rocket/{clientName}/{channelID}/conversationid
func (c *Client) GetRocketConversationID(ctx context.Context, a auth.Auth, clientName, channelID string) (*httpclient.Response, error) {
	return c.get(ctx, a, "rocket/"+clientName+"/"+channelID+"/conversationid", nil)
}

// POST conversation/{id}/publish
func (c *Client) PublishConversation(ctx context.Context, a auth.Auth, id string) (*httpclient.Response, error) {
	return c.post(ctx, a, conversationPath(id)+"/publish", nil, nil)
}

// GET conversation/{id}/template/{idx}/{creator}
func (c *Client) GetLegacyTemplateResults(ctx context.Context, a auth.Auth, id, idx, creator string) (*httpclient.Response, error) {
	return c.get(ctx, a, conversationPath(id)+"/template/"+idx+"/"+creator, nil)
}
