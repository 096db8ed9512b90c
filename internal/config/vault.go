package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/vault/api"
)

// resolveVault reads a key from a KV v2 secret.
// Format: mount/path/to/secret#key, e.g. secret/climadw#db_password.
func resolveVault(ref string) (string, error) {
	location, key, ok := strings.Cut(ref, "#")
	if !ok || key == "" {
		return "", fmt.Errorf("invalid Vault reference %q: expected format mount/path#key", ref)
	}
	mount, path, ok := strings.Cut(strings.Trim(location, "/"), "/")
	if !ok || path == "" {
		return "", fmt.Errorf("invalid Vault reference %q: missing secret path after mount", ref)
	}

	if os.Getenv("VAULT_ADDR") == "" {
		return "", fmt.Errorf("VAULT_ADDR environment variable not set")
	}
	if os.Getenv("VAULT_TOKEN") == "" {
		return "", fmt.Errorf("VAULT_TOKEN environment variable not set")
	}

	// DefaultConfig and NewClient pick up VAULT_ADDR and VAULT_TOKEN.
	client, err := api.NewClient(api.DefaultConfig())
	if err != nil {
		return "", fmt.Errorf("creating Vault client: %w", err)
	}

	secret, err := client.KVv2(mount).Get(context.Background(), path)
	if err != nil {
		return "", fmt.Errorf("reading Vault secret %s/%s: %w", mount, path, err)
	}

	val, ok := secret.Data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in Vault secret %s/%s", key, mount, path)
	}
	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("Vault secret value for key %q is not a string", key)
	}
	return str, nil
}
