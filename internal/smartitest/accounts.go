package smartitest

import (
	"encoding/json"
	"regexp"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Checker-Finance/apitests/internal/smarti"
)

// UserRole is granted on signup.
const UserRole = "USER"

var loginRe = regexp.MustCompile(`^[A-Za-z0-9._@-]+$`)

// addUser stores a new user from a UserRequest body. On failure u is nil and
// status/msg describe the rejection.
func (s *Server) addUser(body []byte) (u *user, status int, msg string) {
	var req smarti.UserRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fiber.StatusBadRequest, err.Error()
	}
	if !loginRe.MatchString(req.Login) {
		return nil, fiber.StatusBadRequest, "invalid login"
	}
	if _, exists := s.users[req.Login]; exists {
		return nil, fiber.StatusConflict, "user " + req.Login + " already exists"
	}
	u = &user{
		seq:     s.next(),
		Login:   req.Login,
		Roles:   nonNil(req.Roles),
		Clients: s.existingClients(req.Clients),
		Profile: req.Profile,
	}
	s.users[u.Login] = u
	return u, 0, ""
}

func (s *Server) existingClients(ids []string) []string {
	out := []string{}
	for _, id := range ids {
		if _, ok := s.clients[id]; ok && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// selfOrAdmin resolves :login for a caller that is that user or an admin.
// When ok is false the error response has already been written.
func (s *Server) selfOrAdmin(c *fiber.Ctx) (*principal, *user, bool) {
	p, ok := s.authenticate(c)
	if !ok || p.user == nil {
		_ = unauthorized(c)
		return nil, nil, false
	}
	u, ok := s.users[c.Params("login")]
	if !ok {
		_ = notFound(c, "user")
		return nil, nil, false
	}
	if !p.admin && p.user != u {
		_ = forbidden(c)
		return nil, nil, false
	}
	return p, u, true
}

// requireAdmin writes 401/403 unless the caller is an administrator.
func (s *Server) requireAdmin(c *fiber.Ctx) bool {
	p, ok := s.authenticate(c)
	if !ok {
		_ = unauthorized(c)
		return false
	}
	if !p.admin {
		_ = forbidden(c)
		return false
	}
	return true
}

func (s *Server) getAuth(c *fiber.Ctx) error {
	p, ok := s.authenticate(c)
	if !ok || p.user == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"authenticated": false, "login": nil, "roles": []string{}})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"authenticated": true, "login": p.user.Login, "roles": p.user.Roles})
}

func (s *Server) checkLogin(c *fiber.Ctx) error {
	login := c.Query("login")
	if login == "" {
		return errorJSON(c, fiber.StatusBadRequest, "missing login")
	}
	_, exists := s.users[login]
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"login": login, "available": !exists})
}

func (s *Server) recoverPassword(c *fiber.Ctx) error {
	if c.Query("user") == "" {
		return errorJSON(c, fiber.StatusBadRequest, "missing user")
	}
	// accepted whether or not the user exists
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) signup(c *fiber.Ctx) error {
	var req smarti.SignupRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	if !loginRe.MatchString(req.Login) || req.Password == "" || !strings.Contains(req.Email, "@") {
		return errorJSON(c, fiber.StatusBadRequest, "login, password and email are required")
	}
	if _, exists := s.users[req.Login]; exists {
		return errorJSON(c, fiber.StatusConflict, "user "+req.Login+" already exists")
	}
	u := &user{
		seq:      s.next(),
		password: req.Password,
		Login:    req.Login,
		Roles:    []string{UserRole},
		Clients:  []string{},
		Profile:  smarti.Profile{Name: req.Login, Email: req.Email},
	}
	s.users[u.Login] = u
	return c.Status(fiber.StatusCreated).JSON(u)
}

func (s *Server) listUsers(c *fiber.Ctx) error {
	if !s.requireAdmin(c) {
		return nil
	}
	q := c.Query("q")
	out := []*user{}
	for _, u := range sortedUsers(s.users) {
		if q == "" || strings.Contains(u.Login, q) {
			out = append(out, u)
		}
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

func (s *Server) createUser(c *fiber.Ctx) error {
	if !s.requireAdmin(c) {
		return nil
	}
	u, status, msg := s.addUser(c.Body())
	if u == nil {
		return errorJSON(c, status, msg)
	}
	return c.Status(fiber.StatusCreated).JSON(u)
}

func (s *Server) getUser(c *fiber.Ctx) error {
	_, u, ok := s.selfOrAdmin(c)
	if !ok {
		return nil
	}
	return c.Status(fiber.StatusOK).JSON(u)
}

func (s *Server) updateUser(c *fiber.Ctx) error {
	p, u, ok := s.selfOrAdmin(c)
	if !ok {
		return nil
	}
	var req smarti.UserRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	u.Profile = req.Profile
	if p.admin {
		if req.Roles != nil {
			u.Roles = req.Roles
		}
		if req.Clients != nil {
			u.Clients = s.existingClients(req.Clients)
		}
	}
	return c.Status(fiber.StatusOK).JSON(u)
}

func (s *Server) deleteUser(c *fiber.Ctx) error {
	if !s.requireAdmin(c) {
		return nil
	}
	login := c.Params("login")
	if _, ok := s.users[login]; !ok {
		return notFound(c, "user")
	}
	delete(s.users, login)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) setPassword(c *fiber.Ctx) error {
	_, u, ok := s.selfOrAdmin(c)
	if !ok {
		return nil
	}
	var req smarti.PasswordRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil || req.Password == "" {
		return errorJSON(c, fiber.StatusBadRequest, "missing password")
	}
	u.password = req.Password
	return c.Status(fiber.StatusOK).JSON(u)
}

func (s *Server) setRoles(c *fiber.Ctx) error {
	if !s.requireAdmin(c) {
		return nil
	}
	u, ok := s.users[c.Params("login")]
	if !ok {
		return notFound(c, "user")
	}
	var roles []string
	if err := json.Unmarshal(c.Body(), &roles); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "roles must be a JSON array")
	}
	u.Roles = nonNil(roles)
	return c.Status(fiber.StatusOK).JSON(u)
}
