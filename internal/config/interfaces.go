package config

import "context"

// SecretProvider resolves secret values by path. SSMProvider serves deployed
// environments; EnvVarProvider serves local development.
type SecretProvider interface {
	// GetParametersBatch returns path -> plaintext for every path it could resolve.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
