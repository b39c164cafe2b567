package smartitest

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/gofiber/fiber/v2"

	"github.com/Checker-Finance/apitests/internal/fixtures"
	"github.com/Checker-Finance/apitests/internal/smarti"
)

// Conversation states accepted for meta.status.
var statuses = []string{"New", "Ongoing", "Complete"}

// messageFields may be replaced one at a time; metadata.* is handled separately.
var messageFields = []string{"content", "origin", "private", "votes", "time", "user"}

const defaultPageSize = 3

func newConversation(seq int, owner string) *conversation {
	return &conversation{
		seq:          seq,
		ID:           fixtures.RandomID24(),
		Owner:        owner,
		Meta:         map[string]any{"status": "New"},
		Context:      map[string]any{},
		Messages:     []map[string]any{},
		LastModified: now(),
	}
}

// visibleConversation resolves :id for the caller. When ok is false the error
// response has already been written.
func (s *Server) visibleConversation(c *fiber.Ctx) (*principal, *conversation, bool) {
	p, ok := s.authenticate(c)
	if !ok {
		_ = unauthorized(c)
		return nil, nil, false
	}
	conv, ok := s.conversations[c.Params("id")]
	if !ok {
		_ = notFound(c, "conversation")
		return nil, nil, false
	}
	if !p.sees(conv.Owner) {
		_ = forbidden(c)
		return nil, nil, false
	}
	return p, conv, true
}

func (s *Server) listConversations(c *fiber.Ctx) error {
	p, ok := s.authenticate(c)
	if !ok {
		return unauthorized(c)
	}
	filter := c.Query("client")
	out := []*conversation{}
	for _, conv := range sortedConversations(s.conversations) {
		if p.sees(conv.Owner) && (filter == "" || filter == conv.Owner) {
			out = append(out, conv)
		}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"content":          out,
		"numberOfElements": len(out),
		"totalElements":    len(out),
		"number":           0,
		"first":            true,
		"last":             true,
	})
}

func (s *Server) createConversation(c *fiber.Ctx) error {
	p, ok := s.authenticate(c)
	if !ok {
		return unauthorized(c)
	}
	owner := p.clientID
	if p.user != nil {
		owner = c.Query("client")
		if owner == "" && len(p.user.Clients) > 0 {
			owner = p.user.Clients[0]
		}
	}
	if _, ok := s.clients[owner]; !ok {
		return errorJSON(c, fiber.StatusBadRequest, "no client for conversation")
	}
	if !p.sees(owner) {
		return forbidden(c)
	}

	var req struct {
		Meta     map[string]any   `json:"meta"`
		Context  map[string]any   `json:"context"`
		Messages []map[string]any `json:"messages"`
	}
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, err.Error())
		}
	}
	conv := newConversation(s.next(), owner)
	for k, v := range req.Meta {
		conv.Meta[k] = v
	}
	for k, v := range req.Context {
		conv.Context[k] = v
	}
	for _, m := range req.Messages {
		conv.Messages = append(conv.Messages, normalizeMessage(m))
	}
	s.conversations[conv.ID] = conv
	return c.Status(fiber.StatusCreated).JSON(conv)
}

func (s *Server) searchConversations(c *fiber.Ctx) error {
	p, ok := s.authenticate(c)
	if !ok {
		return unauthorized(c)
	}
	text := strings.ToLower(c.Query("text"))
	docs := []fiber.Map{}
	for _, conv := range sortedConversations(s.conversations) {
		if !p.sees(conv.Owner) {
			continue
		}
		if text == "" || conversationContains(conv, text) {
			docs = append(docs, summary(conv))
		}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"numFound": len(docs), "start": 0, "docs": docs})
}

func (s *Server) getConversation(c *fiber.Ctx) error {
	_, conv, ok := s.visibleConversation(c)
	if !ok {
		return nil
	}
	return c.Status(fiber.StatusOK).JSON(conv)
}

func (s *Server) deleteConversation(c *fiber.Ctx) error {
	_, conv, ok := s.visibleConversation(c)
	if !ok {
		return nil
	}
	delete(s.conversations, conv.ID)
	for key, id := range s.channels {
		if id == conv.ID {
			delete(s.channels, key)
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) publish(c *fiber.Ctx) error {
	_, conv, ok := s.visibleConversation(c)
	if !ok {
		return nil
	}
	conv.Meta["status"] = "Complete"
	conv.LastModified = now()
	return c.Status(fiber.StatusOK).JSON(conv)
}

// ─── analysis ───

func analysisOf(conv *conversation) fiber.Map {
	return fiber.Map{
		"conversation": conv.ID,
		"date":         now(),
		"tokens":       tokensOf(conv),
		"templates":    templatesOf(conv),
	}
}

// tokensOf extracts capitalized words as entity tokens.
func tokensOf(conv *conversation) []fiber.Map {
	out := []fiber.Map{}
	for i, m := range conv.Messages {
		content, _ := m["content"].(string)
		words := strings.FieldsFunc(content, func(r rune) bool { return !unicode.IsLetter(r) })
		for _, w := range words {
			r := []rune(w)
			if len(r) > 2 && unicode.IsUpper(r[0]) {
				out = append(out, fiber.Map{"messageIdx": i, "value": w, "type": "Entity", "state": "Suggested"})
			}
		}
	}
	return out
}

func templatesOf(conv *conversation) []fiber.Map {
	return []fiber.Map{{
		"type":  "related.conversation",
		"state": "Confirmed",
		"slots": []fiber.Map{},
		"queries": []fiber.Map{{
			"creator": fixtures.Creator,
		}},
	}}
}

func (s *Server) getAnalysis(c *fiber.Ctx) error {
	_, conv, ok := s.visibleConversation(c)
	if !ok {
		return nil
	}
	return c.Status(fiber.StatusOK).JSON(analysisOf(conv))
}

func (s *Server) postAnalysis(c *fiber.Ctx) error {
	_, conv, ok := s.visibleConversation(c)
	if !ok {
		return nil
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "analysis must be a JSON object")
	}
	return c.Status(fiber.StatusOK).JSON(analysisOf(conv))
}

func (s *Server) listTemplates(c *fiber.Ctx) error {
	_, conv, ok := s.visibleConversation(c)
	if !ok {
		return nil
	}
	return c.Status(fiber.StatusOK).JSON(templatesOf(conv))
}

func (s *Server) analysisTokens(c *fiber.Ctx) error {
	_, conv, ok := s.visibleConversation(c)
	if !ok {
		return nil
	}
	return c.Status(fiber.StatusOK).JSON(tokensOf(conv))
}

func templateIndex(c *fiber.Ctx, conv *conversation) (int, bool) {
	idx, err := strconv.Atoi(c.Params("idx"))
	if err != nil || idx < 0 || idx >= len(templatesOf(conv)) {
		return 0, false
	}
	return idx, true
}

func (s *Server) getTemplate(c *fiber.Ctx) error {
	_, conv, ok := s.visibleConversation(c)
	if !ok {
		return nil
	}
	idx, ok := templateIndex(c, conv)
	if !ok {
		return notFound(c, "template")
	}
	return c.Status(fiber.StatusOK).JSON(templatesOf(conv)[idx])
}

type queryBuilder struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Enabled  bool   `json:"enabled"`
	PageSize int    `json:"pageSize"`
}

// builderFor finds the configured query builder named by creator
// ("queryBuilder:<name>:<type>").
func (s *Server) builderFor(owner, creator string) (queryBuilder, bool) {
	parts := strings.Split(creator, ":")
	if len(parts) != 3 || parts[0] != "queryBuilder" {
		return queryBuilder{}, false
	}
	cl, ok := s.clients[owner]
	if !ok {
		return queryBuilder{}, false
	}
	var cfg struct {
		QueryBuilder []queryBuilder `json:"queryBuilder"`
	}
	if err := json.Unmarshal(cl.config, &cfg); err != nil {
		return queryBuilder{}, false
	}
	for _, qb := range cfg.QueryBuilder {
		if qb.Name == parts[1] && qb.Type == parts[2] {
			return qb, true
		}
	}
	return queryBuilder{}, false
}

// getResult answers both the current and the legacy template result routes
// with completed conversations of the same client.
func (s *Server) getResult(c *fiber.Ctx) error {
	_, conv, ok := s.visibleConversation(c)
	if !ok {
		return nil
	}
	if _, ok := templateIndex(c, conv); !ok {
		return notFound(c, "template")
	}
	qb, ok := s.builderFor(conv.Owner, c.Params("creator"))
	if !ok {
		return notFound(c, "query builder")
	}
	pageSize := qb.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	docs := []fiber.Map{}
	for _, other := range sortedConversations(s.conversations) {
		if len(docs) == pageSize {
			break
		}
		if other.ID == conv.ID || other.Owner != conv.Owner || other.Meta["status"] != "Complete" {
			continue
		}
		docs = append(docs, summary(other))
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"numFound": len(docs),
		"start":    0,
		"pageSize": pageSize,
		"docs":     docs,
	})
}

func summary(conv *conversation) fiber.Map {
	content := ""
	if len(conv.Messages) > 0 {
		content, _ = conv.Messages[0]["content"].(string)
	}
	return fiber.Map{
		"conversationId": conv.ID,
		"owner":          conv.Owner,
		"status":         conv.Meta["status"],
		"content":        content,
		"messageCount":   len(conv.Messages),
	}
}

func conversationContains(conv *conversation, text string) bool {
	for _, m := range conv.Messages {
		if content, _ := m["content"].(string); strings.Contains(strings.ToLower(content), text) {
			return true
		}
	}
	return false
}

// ─── messages ───

func normalizeMessage(m map[string]any) map[string]any {
	if m == nil {
		m = map[string]any{}
	}
	if id, _ := m["id"].(string); id == "" {
		m["id"] = fixtures.RandomID24()
	}
	if _, ok := m["time"]; !ok {
		m["time"] = now()
	}
	return m
}

func messageIndex(conv *conversation, id string) int {
	return slices.IndexFunc(conv.Messages, func(m map[string]any) bool { return m["id"] == id })
}

func (s *Server) listMessages(c *fiber.Ctx) error {
	_, conv, ok := s.visibleConversation(c)
	if !ok {
		return nil
	}
	return c.Status(fiber.StatusOK).JSON(conv.Messages)
}

func (s *Server) postMessage(c *fiber.Ctx) error {
	_, conv, ok := s.visibleConversation(c)
	if !ok {
		return nil
	}
	var m map[string]any
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &m); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, err.Error())
		}
	}
	m = normalizeMessage(m)
	conv.Messages = append(conv.Messages, m)
	conv.LastModified = now()
	return c.Status(fiber.StatusCreated).JSON(m)
}

func (s *Server) getMessage(c *fiber.Ctx) error {
	_, conv, ok := s.visibleConversation(c)
	if !ok {
		return nil
	}
	i := messageIndex(conv, c.Params("mid"))
	if i < 0 {
		return notFound(c, "message")
	}
	return c.Status(fiber.StatusOK).JSON(conv.Messages[i])
}

func (s *Server) updateMessage(c *fiber.Ctx) error {
	_, conv, ok := s.visibleConversation(c)
	if !ok {
		return nil
	}
	mid := c.Params("mid")
	i := messageIndex(conv, mid)
	if i < 0 {
		return notFound(c, "message")
	}
	var m map[string]any
	if err := json.Unmarshal(c.Body(), &m); err != nil || m == nil {
		return errorJSON(c, fiber.StatusBadRequest, "message must be a JSON object")
	}
	m["id"] = mid
	conv.Messages[i] = normalizeMessage(m)
	conv.LastModified = now()
	return c.Status(fiber.StatusOK).JSON(conv.Messages[i])
}

func (s *Server) deleteMessage(c *fiber.Ctx) error {
	_, conv, ok := s.visibleConversation(c)
	if !ok {
		return nil
	}
	i := messageIndex(conv, c.Params("mid"))
	if i < 0 {
		return notFound(c, "message")
	}
	conv.Messages = slices.Delete(conv.Messages, i, i+1)
	conv.LastModified = now()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) updateMessageField(c *fiber.Ctx) error {
	_, conv, ok := s.visibleConversation(c)
	if !ok {
		return nil
	}
	i := messageIndex(conv, c.Params("mid"))
	if i < 0 {
		return notFound(c, "message")
	}
	field := c.Params("field")
	if !slices.Contains(messageFields, field) && !strings.HasPrefix(field, "metadata.") {
		return errorJSON(c, fiber.StatusBadRequest, "field "+field+" can not be modified")
	}
	var value any
	if err := json.Unmarshal(c.Body(), &value); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	setPath(conv.Messages[i], field, value)
	conv.LastModified = now()
	return c.Status(fiber.StatusOK).JSON(conv.Messages[i])
}

// ─── meta and context fields ───

// fieldTarget splits "meta.x" or "context.x" into the addressed map and the rest.
func fieldTarget(conv *conversation, field string) (map[string]any, string, bool) {
	prefix, rest, found := strings.Cut(field, ".")
	if !found || rest == "" {
		return nil, "", false
	}
	switch prefix {
	case "meta":
		return conv.Meta, rest, true
	case "context":
		return conv.Context, rest, true
	default:
		return nil, "", false
	}
}

func (s *Server) updateField(c *fiber.Ctx) error {
	_, conv, ok := s.visibleConversation(c)
	if !ok {
		return nil
	}
	field := c.Params("field")
	target, path, ok := fieldTarget(conv, field)
	if !ok {
		return errorJSON(c, fiber.StatusBadRequest, "unknown field "+field)
	}
	var value any
	if err := json.Unmarshal(c.Body(), &value); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	if field == "meta.status" {
		status, _ := value.(string)
		if !slices.Contains(statuses, status) {
			return errorJSON(c, fiber.StatusBadRequest, "invalid status")
		}
	}
	setPath(target, path, value)
	conv.LastModified = now()
	return c.Status(fiber.StatusOK).JSON(conv)
}

func (s *Server) deleteField(c *fiber.Ctx) error {
	_, conv, ok := s.visibleConversation(c)
	if !ok {
		return nil
	}
	field := c.Params("field")
	if field == "meta.status" {
		return errorJSON(c, fiber.StatusBadRequest, "meta.status can not be removed")
	}
	target, path, ok := fieldTarget(conv, field)
	if !ok {
		return errorJSON(c, fiber.StatusBadRequest, "unknown field "+field)
	}
	status := conv.Meta["status"]
	deletePath(target, path)
	conv.Meta["status"] = status
	conv.LastModified = now()
	return c.Status(fiber.StatusOK).JSON(conv)
}

// setPath stores value under a dotted path, creating intermediate maps.
// A trailing "*" merges an object value into the addressed map.
func setPath(m map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	for _, k := range parts[:len(parts)-1] {
		child, ok := m[k].(map[string]any)
		if !ok {
			child = map[string]any{}
			m[k] = child
		}
		m = child
	}
	last := parts[len(parts)-1]
	if obj, ok := value.(map[string]any); ok && last == "*" {
		for k, v := range obj {
			m[k] = v
		}
		return
	}
	m[last] = value
}

// deletePath removes a dotted path. A trailing "*" clears the addressed map.
func deletePath(m map[string]any, path string) {
	parts := strings.Split(path, ".")
	for _, k := range parts[:len(parts)-1] {
		child, ok := m[k].(map[string]any)
		if !ok {
			return
		}
		m = child
	}
	last := parts[len(parts)-1]
	if last == "*" {
		clear(m)
		return
	}
	delete(m, last)
}

// ─── rocket.chat webhook ───

func (s *Server) clientByName(name string) *client {
	for _, cl := range s.clients {
		if cl.Name == name {
			return cl
		}
	}
	return nil
}

func (s *Server) rocketMessage(c *fiber.Ctx) error {
	p, ok := s.authenticate(c)
	if !ok {
		return unauthorized(c)
	}
	cl := s.clientByName(c.Params("client"))
	if cl == nil {
		return notFound(c, "client")
	}
	if !p.sees(cl.ID) {
		return forbidden(c)
	}
	var msg smarti.RocketMessage
	if err := json.Unmarshal(c.Body(), &msg); err != nil || msg.ChannelID == "" {
		return errorJSON(c, fiber.StatusBadRequest, "channel_id is required")
	}

	key := cl.ID + "/" + msg.ChannelID
	conv, ok := s.conversations[s.channels[key]]
	if !ok {
		conv = newConversation(s.next(), cl.ID)
		conv.Context["contextType"] = "rocket.chat"
		conv.Context["domain"] = cl.Name
		conv.Context["environment"] = map[string]any{"channel_id": msg.ChannelID}
		s.conversations[conv.ID] = conv
		s.channels[key] = conv.ID
	}
	conv.Messages = append(conv.Messages, normalizeMessage(map[string]any{
		"id":      msg.MessageID,
		"content": msg.Text,
		"origin":  "User",
		"private": false,
	}))
	conv.LastModified = now()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{})
}

func (s *Server) rocketConversationID(c *fiber.Ctx) error {
	p, ok := s.authenticate(c)
	if !ok {
		return unauthorized(c)
	}
	cl := s.clientByName(c.Params("client"))
	if cl == nil {
		return notFound(c, "client")
	}
	if !p.sees(cl.ID) {
		return forbidden(c)
	}
	id, ok := s.channels[cl.ID+"/"+c.Params("channel")]
	if !ok {
		return notFound(c, "conversation")
	}
	return c.Status(fiber.StatusOK).SendString(id)
}
