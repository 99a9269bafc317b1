// Package vaultsecrets stores and retrieves venue credentials. It is a
// thin wrapper around hashicorp/vault/api with an in-memory fallback when
// Vault is not configured, giving UserFeedRegistry a real credential
// source instead of inlined plaintext.
//
// Grounded on the reference codebase's internal/vault/client.go, cut down
// from its per-user multi-exchange key store to this host's single-venue
// credential set keyed by the 16-hex-char credential hash wireauth
// derives from an api key.
package vaultsecrets

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"tradehost/internal/wireauth"
)

// Config controls whether this adapter talks to a real Vault cluster or
// falls back to an in-memory cache (local development, tests).
type Config struct {
	Enabled    bool
	Address    string
	Token      string
	MountPath  string
	SecretPath string
	TLSEnabled bool
	CACert     string
}

// Credential is the (apiKey, secretKey) pair stored for one venue
// account.
type Credential struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
}

// Client is the credential store. With Config.Enabled false it behaves
// as a plain in-memory map, matching the reference client's
// local-development fallback.
type Client struct {
	client *api.Client
	config Config

	mu    sync.RWMutex
	cache map[string]Credential // credential hash -> Credential
}

// New creates a Client. When cfg.Enabled is false no network connection
// is attempted; every operation goes through the in-memory cache.
func New(cfg Config) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg, cache: make(map[string]Credential)}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		if err := vaultConfig.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("configure vault TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg, cache: make(map[string]Credential)}, nil
}

// Store saves cred under its derived credential hash, returning the hash.
func (c *Client) Store(ctx context.Context, cred Credential) (string, error) {
	hash := wireauth.CredentialHash(cred.APIKey)

	if !c.config.Enabled {
		c.mu.Lock()
		c.cache[hash] = cred
		c.mu.Unlock()
		return hash, nil
	}

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"api_key":    cred.APIKey,
			"secret_key": cred.SecretKey,
		},
	}
	if _, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(hash), secretData); err != nil {
		return "", fmt.Errorf("store credential in vault: %w", err)
	}

	c.mu.Lock()
	c.cache[hash] = cred
	c.mu.Unlock()
	return hash, nil
}

// Get resolves a credential hash back to its (apiKey, secretKey) pair.
func (c *Client) Get(ctx context.Context, hash string) (Credential, error) {
	c.mu.RLock()
	if cred, ok := c.cache[hash]; ok {
		c.mu.RUnlock()
		return cred, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return Credential{}, fmt.Errorf("credential %s not found", hash)
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath(hash))
	if err != nil {
		return Credential{}, fmt.Errorf("read credential from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return Credential{}, fmt.Errorf("credential %s not found", hash)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return Credential{}, fmt.Errorf("invalid secret format for credential %s", hash)
	}

	cred := Credential{
		APIKey:    getString(data, "api_key"),
		SecretKey: getString(data, "secret_key"),
	}

	c.mu.Lock()
	c.cache[hash] = cred
	c.mu.Unlock()
	return cred, nil
}

// Delete removes a credential from both the cache and Vault.
func (c *Client) Delete(ctx context.Context, hash string) error {
	c.mu.Lock()
	delete(c.cache, hash)
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	if _, err := c.client.Logical().DeleteWithContext(ctx, c.metadataPath(hash)); err != nil {
		return fmt.Errorf("delete credential from vault: %w", err)
	}
	return nil
}

// IsEnabled reports whether this Client talks to a real Vault cluster.
func (c *Client) IsEnabled() bool { return c.config.Enabled }

// Health checks the Vault connection. A no-op when Vault is disabled.
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	health, err := c.client.Sys().Health()
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

func (c *Client) secretPath(hash string) string {
	return fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, hash)
}

func (c *Client) metadataPath(hash string) string {
	return fmt.Sprintf("%s/metadata/%s/%s", c.config.MountPath, c.config.SecretPath, hash)
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
