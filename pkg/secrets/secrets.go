// Package secrets resolves per-tenant integration credentials.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrSecretNotFound is returned when no secret exists for the scope and
// integration.
var ErrSecretNotFound = errors.New("secret not found")

// PlatformScope is the shared scope consulted when a tenant has no
// credential of its own.
const PlatformScope = "platform"

// SecretsManager resolves the credential map for one integration within a
// scope (a tenant id or PlatformScope).
type SecretsManager interface {
	Get(ctx context.Context, scope, integration string) (map[string]string, error)
}

// EnvSecretsManager resolves secrets from environment variables. It backs
// deployments without a secret store and the platform-level fallback.
//
// Lookup key: <PREFIX><INTEGRATION>_<FIELD>, e.g. OPENAI_API_KEY for
// integration "openai", field "api_key". Scope is ignored; the
// environment is process-global.
type EnvSecretsManager struct {
	prefix string
}

func NewEnvSecretsManager(prefix string) *EnvSecretsManager {
	return &EnvSecretsManager{prefix: prefix}
}

func (m *EnvSecretsManager) Get(_ context.Context, _, integration string) (map[string]string, error) {
	key := m.prefix + strings.ToUpper(integration) + "_API_KEY"
	val := os.Getenv(key)
	if val == "" {
		return nil, fmt.Errorf("%s: %w", key, ErrSecretNotFound)
	}
	return map[string]string{"api_key": val}, nil
}
