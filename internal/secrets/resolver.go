// Package secrets resolves API credentials stored in a secrets manager.
package secrets

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Checker-Finance/apitests/internal/auth"
	pkgsecrets "github.com/Checker-Finance/apitests/pkg/secrets"
)

// Secret keys understood by ParseCredentials.
const (
	KeyUsername = "username"
	KeyPassword = "password"
	KeyToken    = "token"
)

// ErrIncompleteSecret is returned for a secret holding neither a token nor a
// username/password pair.
var ErrIncompleteSecret = errors.New("secret holds neither token nor username and password")

// Resolver turns a secret name into an auth descriptor, caching results
// so repeated runs in one process hit the provider once.
type Resolver struct {
	logger   *zap.Logger
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[auth.Auth]
}

func NewResolver(logger *zap.Logger, provider pkgsecrets.Provider, cache *pkgsecrets.Cache[auth.Auth]) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger, provider: provider, cache: cache}
}

// Resolve returns the credentials stored under name.
func (r *Resolver) Resolve(ctx context.Context, name string) (auth.Auth, error) {
	if a, ok := r.cache.Get(name); ok {
		return a, nil
	}

	secretMap, err := r.provider.GetSecret(ctx, name)
	if err != nil {
		r.logger.Warn("secrets.fetch_failed",
			zap.String("key", name),
			zap.Error(err))
		return auth.Auth{}, fmt.Errorf("resolve credentials %q: %w", name, err)
	}

	a, err := ParseCredentials(secretMap)
	if err != nil {
		return auth.Auth{}, fmt.Errorf("parse secret %q: %w", name, err)
	}
	r.cache.Put(name, a)

	r.logger.Info("secrets.credentials_resolved",
		zap.String("key", name),
		zap.String("auth", a.String()))
	return a, nil
}

// ParseCredentials prefers username and password over a token.
func ParseCredentials(m map[string]string) (auth.Auth, error) {
	user, pass, token := m[KeyUsername], m[KeyPassword], m[KeyToken]
	switch {
	case user != "" && pass != "":
		return auth.Parse(user, pass)
	case token != "":
		return auth.Parse(token)
	default:
		return auth.Auth{}, ErrIncompleteSecret
	}
}
