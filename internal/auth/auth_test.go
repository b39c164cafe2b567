package auth

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Arity(t *testing.T) {
	tok, err := Parse("0f3a9be1c2d4")
	require.NoError(t, err)
	assert.True(t, tok.IsToken())
	assert.Equal(t, "0f3a9be1c2d4", tok.Token())

	cred, err := Parse("admin", "secret")
	require.NoError(t, err)
	assert.True(t, cred.IsBasic())
	assert.Equal(t, "admin", cred.Username())
	assert.Equal(t, "secret", cred.Password())
}

func TestParse_InvalidArity(t *testing.T) {
	for _, args := range [][]string{nil, {"a", "b", "c"}} {
		_, err := Parse(args...)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidArgument)
		assert.Contains(t, err.Error(), "expected 1 (token) or 2 (username, password)")
	}
}

func TestExactlyOneMode(t *testing.T) {
	descriptors := []Auth{
		FromCredentials("admin", "admin"),
		FromCredentials("", ""),
		FromToken("abc"),
		FromToken(""),
	}
	for _, a := range descriptors {
		assert.NotEqual(t, a.IsBasic(), a.IsToken(), "descriptor %s", a)
	}
}

func TestApply(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://localhost/client", nil)
	FromCredentials("admin", "pw").Apply(req)
	user, pass, ok := req.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "admin", user)
	assert.Equal(t, "pw", pass)
	assert.Empty(t, req.Header.Get(TokenHeader))

	req, _ = http.NewRequest(http.MethodGet, "http://localhost/client", nil)
	FromToken("tok-1").Apply(req)
	_, _, ok = req.BasicAuth()
	assert.False(t, ok)
	assert.Equal(t, "tok-1", req.Header.Get(TokenHeader))
}

func TestString_MasksSecrets(t *testing.T) {
	s := FromCredentials("admin", "supersecret").String()
	assert.Contains(t, s, "admin")
	assert.NotContains(t, s, "supersecret")

	s = FromToken("0f3a9be1c2d4/1234abcd").String()
	assert.NotContains(t, s, "0f3a9be1c2d4/1234abcd")
	assert.Equal(t, "unauthenticated", Auth{}.String())
}
