package smartitest

import (
	"encoding/json"
	"regexp"
	"slices"

	"github.com/gofiber/fiber/v2"

	"github.com/Checker-Finance/apitests/internal/auth"
	"github.com/Checker-Finance/apitests/internal/fixtures"
	"github.com/Checker-Finance/apitests/internal/smarti"
)

var clientNameRe = regexp.MustCompile(`^[a-z0-9._-]+$`)

const emptyConfig = `{"queryBuilder":[]}`

func (s *Server) listClients(c *fiber.Ctx) error {
	p, ok := s.authenticate(c)
	if !ok {
		// an unknown token simply sees no clients
		if c.Get(auth.TokenHeader) != "" {
			return c.Status(fiber.StatusOK).JSON([]*client{})
		}
		return unauthorized(c)
	}
	out := []*client{}
	for _, cl := range sortedClients(s.clients) {
		if p.sees(cl.ID) {
			out = append(out, cl)
		}
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

func (s *Server) createClient(c *fiber.Ctx) error {
	p, ok := s.authenticate(c)
	if !ok {
		return unauthorized(c)
	}
	if !p.admin {
		return forbidden(c)
	}
	var req smarti.ClientRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	if !clientNameRe.MatchString(req.Name) {
		return errorJSON(c, fiber.StatusBadRequest, "invalid client name")
	}
	for _, cl := range s.clients {
		if cl.Name == req.Name {
			return errorJSON(c, fiber.StatusConflict, "client "+req.Name+" already exists")
		}
	}
	cl := &client{
		seq:           s.next(),
		ID:            fixtures.RandomID24(),
		Name:          req.Name,
		Description:   req.Description,
		DefaultClient: req.DefaultClient,
		LastUpdate:    now(),
		config:        json.RawMessage(emptyConfig),
	}
	s.clients[cl.ID] = cl
	return c.Status(fiber.StatusCreated).JSON(cl)
}

// visibleClient resolves :id for the caller. When ok is false the error
// response has already been written.
func (s *Server) visibleClient(c *fiber.Ctx) (*principal, *client, bool) {
	p, ok := s.authenticate(c)
	if !ok {
		_ = unauthorized(c)
		return nil, nil, false
	}
	cl, ok := s.clients[c.Params("id")]
	if !ok {
		_ = notFound(c, "client")
		return nil, nil, false
	}
	if !p.sees(cl.ID) {
		_ = forbidden(c)
		return nil, nil, false
	}
	return p, cl, true
}

// adminClient is visibleClient restricted to administrators.
func (s *Server) adminClient(c *fiber.Ctx) (*client, bool) {
	p, cl, ok := s.visibleClient(c)
	if !ok {
		return nil, false
	}
	if !p.admin {
		_ = forbidden(c)
		return nil, false
	}
	return cl, true
}

func (s *Server) getClient(c *fiber.Ctx) error {
	_, cl, ok := s.visibleClient(c)
	if !ok {
		return nil
	}
	return c.Status(fiber.StatusOK).JSON(cl)
}

func (s *Server) deleteClient(c *fiber.Ctx) error {
	cl, ok := s.adminClient(c)
	if !ok {
		return nil
	}
	delete(s.clients, cl.ID)
	for value, t := range s.tokens {
		if t.ClientID == cl.ID {
			delete(s.tokens, value)
		}
	}
	for _, u := range s.users {
		u.Clients = slices.DeleteFunc(u.Clients, func(id string) bool { return id == cl.ID })
	}
	for id, conv := range s.conversations {
		if conv.Owner == cl.ID {
			delete(s.conversations, id)
		}
	}
	for key, convID := range s.channels {
		if _, ok := s.conversations[convID]; !ok {
			delete(s.channels, key)
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) getConfig(c *fiber.Ctx) error {
	_, cl, ok := s.visibleClient(c)
	if !ok {
		return nil
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusOK).Send(cl.config)
}

func (s *Server) setConfig(c *fiber.Ctx) error {
	cl, ok := s.adminClient(c)
	if !ok {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(c.Body(), &fields); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "configuration must be a JSON object")
	}
	cl.config = slices.Clone(c.Body())
	cl.LastUpdate = now()
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusOK).Send(cl.config)
}

func (s *Server) clientTokens(clientID string) []*token {
	out := []*token{}
	for _, t := range s.tokens {
		if t.ClientID == clientID {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b *token) int { return a.seq - b.seq })
	return out
}

func (s *Server) tokenByID(clientID, id string) *token {
	for _, t := range s.tokens {
		if t.ClientID == clientID && t.ID == id {
			return t
		}
	}
	return nil
}

func (s *Server) listTokens(c *fiber.Ctx) error {
	cl, ok := s.adminClient(c)
	if !ok {
		return nil
	}
	return c.Status(fiber.StatusOK).JSON(s.clientTokens(cl.ID))
}

func (s *Server) createToken(c *fiber.Ctx) error {
	cl, ok := s.adminClient(c)
	if !ok {
		return nil
	}
	var req struct {
		Description string `json:"description"`
	}
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, err.Error())
		}
	}
	t := &token{
		seq:         s.next(),
		ID:          fixtures.RandomID24(),
		Token:       fixtures.RandomToken(),
		ClientID:    cl.ID,
		Description: req.Description,
		Created:     now(),
	}
	s.tokens[t.Token] = t
	return c.Status(fiber.StatusCreated).JSON(t)
}

func (s *Server) updateToken(c *fiber.Ctx) error {
	cl, ok := s.adminClient(c)
	if !ok {
		return nil
	}
	t := s.tokenByID(cl.ID, c.Params("tid"))
	if t == nil {
		return notFound(c, "token")
	}
	var req struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	t.Description = req.Description
	return c.Status(fiber.StatusOK).JSON(t)
}

func (s *Server) deleteToken(c *fiber.Ctx) error {
	cl, ok := s.adminClient(c)
	if !ok {
		return nil
	}
	t := s.tokenByID(cl.ID, c.Params("tid"))
	if t == nil {
		return notFound(c, "token")
	}
	delete(s.tokens, t.Token)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) listClientUsers(c *fiber.Ctx) error {
	cl, ok := s.adminClient(c)
	if !ok {
		return nil
	}
	out := []*user{}
	for _, u := range sortedUsers(s.users) {
		if slices.Contains(u.Clients, cl.ID) {
			out = append(out, u)
		}
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

func (s *Server) createClientUser(c *fiber.Ctx) error {
	cl, ok := s.adminClient(c)
	if !ok {
		return nil
	}
	u, status, msg := s.addUser(c.Body())
	if u == nil {
		return errorJSON(c, status, msg)
	}
	u.Clients = []string{cl.ID}
	return c.Status(fiber.StatusCreated).JSON(u)
}

func (s *Server) assignUser(c *fiber.Ctx) error {
	cl, ok := s.adminClient(c)
	if !ok {
		return nil
	}
	u, ok := s.users[c.Params("login")]
	if !ok {
		return notFound(c, "user")
	}
	if !slices.Contains(u.Clients, cl.ID) {
		u.Clients = append(u.Clients, cl.ID)
	}
	return c.Status(fiber.StatusOK).JSON(u)
}

func (s *Server) unassignUser(c *fiber.Ctx) error {
	cl, ok := s.adminClient(c)
	if !ok {
		return nil
	}
	u, ok := s.users[c.Params("login")]
	if !ok {
		return notFound(c, "user")
	}
	u.Clients = slices.DeleteFunc(u.Clients, func(id string) bool { return id == cl.ID })
	return c.SendStatus(fiber.StatusNoContent)
}
