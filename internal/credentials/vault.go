package credentials

import (
	"context"
	"encoding/json"
	stderrors "errors"

	vault "github.com/hashicorp/vault/api"

	"metadata-enricher/internal/common/errors"
)

// VaultStore reads secrets from a Vault KV version 2 mount, using the
// reference as the path inside the mount.
type VaultStore struct {
	kv *vault.KVv2
}

// NewVaultStore wraps a configured Vault client.
func NewVaultStore(client *vault.Client, mount string) *VaultStore {
	if mount == "" {
		mount = "secret"
	}
	return &VaultStore{kv: client.KVv2(mount)}
}

// NewVaultStoreFromAddress creates a client for addr authenticated with token.
func NewVaultStoreFromAddress(addr, token, mount string) (*VaultStore, error) {
	cfg := vault.DefaultConfig()
	cfg.Address = addr
	// retries belong to the caller, credential lookups fail fast
	cfg.MaxRetries = 0

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, errors.ConfigError("failed to create vault client").WithContext("cause", err.Error())
	}
	if token != "" {
		client.SetToken(token)
	}
	return NewVaultStore(client, mount), nil
}

// Name identifies the store in logs.
func (s *VaultStore) Name() string { return "vault" }

// GetSecret returns the latest version's data re-encoded as JSON.
func (s *VaultStore) GetSecret(ctx context.Context, ref string) ([]byte, error) {
	secret, err := s.kv.Get(ctx, ref)
	if err != nil {
		if stderrors.Is(err, vault.ErrSecretNotFound) {
			return nil, errors.SecretNotFoundError(ref, err)
		}
		var respErr *vault.ResponseError
		if stderrors.As(err, &respErr) && respErr.StatusCode == 404 {
			return nil, errors.SecretNotFoundError(ref, err)
		}
		if ctx.Err() != nil {
			return nil, errors.CancelledError("secret lookup", ctx.Err())
		}
		return nil, errors.TransportError("vault request failed", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, errors.SecretNotFoundError(ref, nil)
	}

	data, err := json.Marshal(secret.Data)
	if err != nil {
		return nil, errors.SecretMalformedError("vault secret data is not JSON encodable")
	}
	return data, nil
}
