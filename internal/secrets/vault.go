// Package secrets fetches the push service-account key from Vault when it is
// not supplied directly in the environment.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"
)

// VaultKeySource identifies one field of a KV v2 secret.
type VaultKeySource struct {
	Address string
	Token   string
	Mount   string
	Path    string
	Field   string
}

// FetchPrivateKey reads the service-account private key from Vault.
// The returned string is the raw secret value; PEM normalization happens in
// the fcm package, same as for env-supplied keys.
func FetchPrivateKey(ctx context.Context, src VaultKeySource) (string, error) {
	if strings.TrimSpace(src.Address) == "" {
		return "", errors.New("vault address is required")
	}
	if strings.TrimSpace(src.Token) == "" {
		return "", errors.New("vault token is required")
	}

	cfg := vaultapi.DefaultConfig()
	cfg.Address = src.Address
	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return "", fmt.Errorf("vault client: %w", err)
	}
	client.SetToken(src.Token)

	secret, err := client.KVv2(src.Mount).Get(ctx, src.Path)
	if err != nil {
		return "", fmt.Errorf("read %s/%s from vault: %w", src.Mount, src.Path, err)
	}

	raw, ok := secret.Data[src.Field]
	if !ok {
		return "", fmt.Errorf("secret %s/%s has no field %q", src.Mount, src.Path, src.Field)
	}
	value, ok := raw.(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("secret field %q is not a non-empty string", src.Field)
	}
	return value, nil
}
