package smarti

import (
	"fmt"

	"github.com/Checker-Finance/apitests/internal/httpclient"
)

// Status codes the Smarti API answers with.
const (
	OKSuccess     = 200
	Created       = 201
	Accepted      = 202
	NoContent     = 204
	UpdateSuccess = 200
	PermError     = 403
	NotFound      = 404
	AlreadyExists = 409
	InvalidData   = 400
)

// ClientRequest is the body of POST client.
type ClientRequest struct {
	DefaultClient bool   `json:"defaultClient"`
	Description   string `json:"description"`
	Name          string `json:"name"`
}

// Profile is the nested profile of a user.
type Profile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UserRequest is the body of POST user, PUT user/{login} and POST client/{id}/user.
type UserRequest struct {
	Login   string   `json:"login"`
	Roles   []string `json:"roles"`
	Clients []string `json:"clients"`
	Profile Profile  `json:"profile"`
}

// SignupRequest is the body of POST auth/signup.
type SignupRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// PasswordRequest is the body of PUT user/{login}/password.
type PasswordRequest struct {
	Password string `json:"password"`
}

// Message is a conversation message as posted by clients.
type Message struct {
	ID      string         `json:"id,omitempty"`
	Content string         `json:"content"`
	Origin  string         `json:"origin"`
	Private bool           `json:"private"`
	Votes   int            `json:"votes,omitempty"`
	Time    int64          `json:"time,omitempty"`
	User    map[string]any `json:"user,omitempty"`
}

// RocketMessage is the payload of the rocket/{client} webhook.
type RocketMessage struct {
	MessageID string `json:"message_id,omitempty"`
	ChannelID string `json:"channel_id"`
	Text      string `json:"text"`
}

// Entity picks the identifying fields out of any Smarti object.
// Unknown fields are ignored; remote entities stay opaque otherwise.
type Entity struct {
	ID    string `json:"id"`
	Token string `json:"token"`
	Login string `json:"login"`
}

// DecodeEntity reads a single object from resp.
func DecodeEntity(resp *httpclient.Response) (Entity, error) {
	var e Entity
	if err := resp.JSON(&e); err != nil {
		return Entity{}, err
	}
	return e, nil
}

// DecodeEntities reads a JSON array of objects from resp.
func DecodeEntities(resp *httpclient.Response) ([]Entity, error) {
	var list []Entity
	if err := resp.JSON(&list); err != nil {
		return nil, err
	}
	return list, nil
}

// DecodeID returns the "id" field of the object in resp.
func DecodeID(resp *httpclient.Response) (string, error) {
	e, err := DecodeEntity(resp)
	if err != nil {
		return "", err
	}
	if e.ID == "" {
		return "", fmt.Errorf("%s %s: response has no id", resp.Method, resp.URL)
	}
	return e.ID, nil
}

// IDs collects the ids of a list of entities in order.
func IDs(list []Entity) []string {
	ids := make([]string, 0, len(list))
	for _, e := range list {
		ids = append(ids, e.ID)
	}
	return ids
}

// Logins collects the logins of a list of users in order.
func Logins(list []Entity) []string {
	out := make([]string, 0, len(list))
	for _, e := range list {
		out = append(out, e.Login)
	}
	return out
}
