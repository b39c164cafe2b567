// Package auth describes how a request authenticates against the APIs under test.
package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Checker-Finance/apitests/pkg/utils"
)

// TokenHeader carries client tokens on Smarti and session tokens on Rocket.Chat.
const TokenHeader = "X-Auth-Token"

// ErrInvalidArgument is returned by Parse for any arity other than 1 or 2.
var ErrInvalidArgument = errors.New("invalid argument")

// Mode distinguishes the two ways a request can authenticate.
type Mode int

const (
	// Basic sends username and password as HTTP Basic credentials.
	Basic Mode = iota + 1
	// Token sends a bearer-style token in the X-Auth-Token header.
	Token
)

func (m Mode) String() string {
	switch m {
	case Basic:
		return "basic"
	case Token:
		return "token"
	default:
		return "unknown"
	}
}

// Auth is either a username/password pair or a token, never both.
// The zero value is not usable; build one with FromCredentials, FromToken or Parse.
type Auth struct {
	mode     Mode
	username string
	password string
	token    string
}

// FromCredentials builds a Basic-mode descriptor.
func FromCredentials(username, password string) Auth {
	return Auth{mode: Basic, username: username, password: password}
}

// FromToken builds a Token-mode descriptor.
func FromToken(token string) Auth {
	return Auth{mode: Token, token: token}
}

// Parse accepts one argument (token) or two (username, password).
func Parse(args ...string) (Auth, error) {
	switch len(args) {
	case 1:
		return FromToken(args[0]), nil
	case 2:
		return FromCredentials(args[0], args[1]), nil
	default:
		return Auth{}, fmt.Errorf("%w: %d arguments given, expected 1 (token) or 2 (username, password)",
			ErrInvalidArgument, len(args))
	}
}

func (a Auth) Mode() Mode { return a.mode }

// IsBasic reports whether requests carry HTTP Basic credentials.
func (a Auth) IsBasic() bool { return a.mode == Basic }

// IsToken reports whether requests carry the X-Auth-Token header.
func (a Auth) IsToken() bool { return a.mode == Token }

func (a Auth) Username() string { return a.username }
func (a Auth) Password() string { return a.password }
func (a Auth) Token() string    { return a.token }

// Apply attaches the credential to req.
func (a Auth) Apply(req *http.Request) {
	switch a.mode {
	case Basic:
		req.SetBasicAuth(a.username, a.password)
	case Token:
		req.Header.Set(TokenHeader, a.token)
	}
}

// String never prints a full secret.
func (a Auth) String() string {
	switch a.mode {
	case Basic:
		return fmt.Sprintf("basic(username=%s, password=%s)", a.username, utils.MaskSecret(a.password))
	case Token:
		return fmt.Sprintf("token(%s)", utils.MaskSecret(a.token))
	default:
		return "unauthenticated"
	}
}
