package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// VaultSecretsManager reads tenant credentials from a Vault KV v2 mount.
// Secrets live at <mount>/data/integrations/<scope>/<integration>.
type VaultSecretsManager struct {
	client *vault.Client
	mount  string
}

// VaultConfig holds Vault connection parameters.
type VaultConfig struct {
	Address string
	Token   string

	// Mount is the KV v2 mount name; defaults to "secret".
	Mount string
}

// LoadVaultConfigFromEnv reads VAULT_ADDR, VAULT_TOKEN and VAULT_MOUNT.
func LoadVaultConfigFromEnv() VaultConfig {
	mount := os.Getenv("VAULT_MOUNT")
	if mount == "" {
		mount = "secret"
	}
	return VaultConfig{
		Address: os.Getenv("VAULT_ADDR"),
		Token:   os.Getenv("VAULT_TOKEN"),
		Mount:   mount,
	}
}

// NewVaultSecretsManager connects to Vault with the given config.
func NewVaultSecretsManager(cfg VaultConfig) (*VaultSecretsManager, error) {
	vaultCfg := vault.DefaultConfig()
	if cfg.Address != "" {
		vaultCfg.Address = cfg.Address
	}

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}
	return &VaultSecretsManager{client: client, mount: mount}, nil
}

// Get reads the credential map for one integration within a scope.
func (m *VaultSecretsManager) Get(ctx context.Context, scope, integration string) (map[string]string, error) {
	path := fmt.Sprintf("integrations/%s/%s", scope, integration)

	secret, err := m.client.KVv2(m.mount).Get(ctx, path)
	if err != nil {
		if strings.Contains(err.Error(), "secret not found") {
			return nil, fmt.Errorf("%s: %w", path, ErrSecretNotFound)
		}
		return nil, fmt.Errorf("failed to read secret %s: %w", path, err)
	}
	if secret == nil || len(secret.Data) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrSecretNotFound)
	}

	out := make(map[string]string, len(secret.Data))
	for k, v := range secret.Data {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}
