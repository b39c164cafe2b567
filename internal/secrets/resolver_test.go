package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Checker-Finance/apitests/internal/auth"
	pkgsecrets "github.com/Checker-Finance/apitests/pkg/secrets"
)

type mockProvider struct {
	secrets map[string]map[string]string
	calls   int
}

func (m *mockProvider) GetSecret(_ context.Context, name string) (map[string]string, error) {
	m.calls++
	s, ok := m.secrets[name]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return s, nil
}

func newResolver(p pkgsecrets.Provider) *Resolver {
	return NewResolver(zap.NewNop(), p, pkgsecrets.NewCache[auth.Auth](time.Minute))
}

func TestResolve_BasicCredentials(t *testing.T) {
	p := &mockProvider{secrets: map[string]map[string]string{
		"dev/apitest/smarti": {"username": "admin", "password": "s3cret"},
	}}
	r := newResolver(p)

	a, err := r.Resolve(context.Background(), "dev/apitest/smarti")
	require.NoError(t, err)
	assert.True(t, a.IsBasic())
	assert.Equal(t, "admin", a.Username())
	assert.Equal(t, "s3cret", a.Password())

	// second lookup is served from the cache
	_, err = r.Resolve(context.Background(), "dev/apitest/smarti")
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)
}

func TestResolve_Token(t *testing.T) {
	p := &mockProvider{secrets: map[string]map[string]string{"tok": {"token": "abc/def"}}}
	a, err := newResolver(p).Resolve(context.Background(), "tok")
	require.NoError(t, err)
	assert.True(t, a.IsToken())
	assert.Equal(t, "abc/def", a.Token())
}

func TestResolve_MissingSecret(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := NewResolver(zap.New(core), &mockProvider{}, pkgsecrets.NewCache[auth.Auth](time.Minute))

	_, err := r.Resolve(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `resolve credentials "nope"`)
	assert.Equal(t, 1, logs.FilterMessage("secrets.fetch_failed").Len())
}

func TestResolve_IncompleteSecretNotCached(t *testing.T) {
	p := &mockProvider{secrets: map[string]map[string]string{"half": {"username": "admin"}}}
	r := newResolver(p)

	_, err := r.Resolve(context.Background(), "half")
	assert.ErrorIs(t, err, ErrIncompleteSecret)
	_, err = r.Resolve(context.Background(), "half")
	assert.ErrorIs(t, err, ErrIncompleteSecret)
	assert.Equal(t, 2, p.calls)
}

func TestParseCredentials_PrefersBasic(t *testing.T) {
	a, err := ParseCredentials(map[string]string{"username": "u", "password": "p", "token": "t"})
	require.NoError(t, err)
	assert.True(t, a.IsBasic())
}
