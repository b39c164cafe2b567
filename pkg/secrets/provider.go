package secrets

import "context"

// Provider fetches secrets stored as flat JSON objects.
// AWS Secrets Manager is the production implementation; tests supply their own.
type Provider interface {
	// GetSecret returns the key-value map stored under name.
	GetSecret(ctx context.Context, name string) (map[string]string, error)
}
