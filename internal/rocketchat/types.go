package rocketchat

import (
	"fmt"
	"net/http"

	"github.com/Checker-Finance/apitests/internal/auth"
	"github.com/Checker-Finance/apitests/internal/httpclient"
)

// UserIDHeader accompanies X-Auth-Token on every authenticated REST call.
const UserIDHeader = "X-User-Id"

// Session is the credential pair handed out by login.
type Session struct {
	UserID    string
	AuthToken string
}

// Apply attaches the session headers to req.
func (s Session) Apply(req *http.Request) {
	req.Header.Set(auth.TokenHeader, s.AuthToken)
	req.Header.Set(UserIDHeader, s.UserID)
}

// LoginRequest is the body of POST login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the envelope returned by POST login.
type LoginResponse struct {
	Status string `json:"status"`
	Data   struct {
		UserID    string `json:"userId"`
		AuthToken string `json:"authToken"`
	} `json:"data"`
}

// Email is one address of a Rocket.Chat user.
type Email struct {
	Address  string `json:"address"`
	Verified bool   `json:"verified"`
}

// User is the subset of users.info the generator needs.
type User struct {
	ID       string  `json:"_id"`
	Username string  `json:"username"`
	Name     string  `json:"name"`
	Emails   []Email `json:"emails"`
}

// UserInfoResponse is the envelope returned by users.info.
type UserInfoResponse struct {
	User    User `json:"user"`
	Success bool `json:"success"`
}

// Participant names a seeker or provider of a help discussion.
type Participant struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// HelpRequest is the body of assistify.helpDiscussion.
type HelpRequest struct {
	SupportArea string        `json:"support_area"`
	Seeker      Participant   `json:"seeker"`
	Providers   []Participant `json:"providers"`
}

// Room is the subset of a created room that later calls refer to.
type Room struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// HelpResponse is the envelope returned by assistify.helpDiscussion.
type HelpResponse struct {
	Room    Room `json:"room"`
	Success bool `json:"success"`
}

// ChatMessage is the body of chat.postMessage.
type ChatMessage struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

// DecodeSession reads the session out of a login response.
func DecodeSession(resp *httpclient.Response) (Session, error) {
	var lr LoginResponse
	if err := resp.JSON(&lr); err != nil {
		return Session{}, err
	}
	if lr.Data.UserID == "" || lr.Data.AuthToken == "" {
		return Session{}, fmt.Errorf("login response carries no session")
	}
	return Session{UserID: lr.Data.UserID, AuthToken: lr.Data.AuthToken}, nil
}

// Participant returns the user as seeker/provider of a help discussion.
func (u User) Participant() (Participant, error) {
	if len(u.Emails) == 0 {
		return Participant{}, fmt.Errorf("user %s has no email address", u.ID)
	}
	return Participant{ID: u.ID, Email: u.Emails[0].Address}, nil
}
