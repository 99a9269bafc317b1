package userfeed

import (
	"context"
	"fmt"
	"sync"

	"tradehost/internal/eventbus"
	"tradehost/internal/logging"
	"tradehost/internal/vaultsecrets"
	"tradehost/internal/wireauth"
)

// CredentialStore is the subset of vaultsecrets.Client the registry needs,
// kept narrow so tests can supply a stub instead of a real Vault-backed
// client.
type CredentialStore interface {
	Store(ctx context.Context, cred vaultsecrets.Credential) (string, error)
	Delete(ctx context.Context, hash string) error
}

// Registry is the UserFeedRegistry external-interface collaborator named
// in §6: it owns one Stream per credential hash and is consulted by
// PluginSupervisor when a plugin's params carry an api_key.
type Registry struct {
	mu       sync.Mutex
	streams  map[string]*Stream
	restBase string
	wsBase   string
	bus      *eventbus.Bus
	logger   *logging.Logger
	ctx      context.Context
	vault    CredentialStore
}

// NewRegistry creates a Registry. ctx bounds the lifetime of every stream
// it starts; cancelling ctx stops all of them. vault may be nil, in which
// case credentials are held only in the running streams and never
// persisted.
func NewRegistry(ctx context.Context, restBase, wsBase string, bus *eventbus.Bus, vault CredentialStore, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		streams:  make(map[string]*Stream),
		restBase: restBase,
		wsBase:   wsBase,
		bus:      bus,
		logger:   logger.WithComponent("userfeed_registry"),
		ctx:      ctx,
		vault:    vault,
	}
}

// Connect starts (or reuses) a stream for creds, returning its credential
// hash. Connecting with credentials already registered is a no-op that
// returns the existing stream's hash. When a credential store is
// configured, the (apiKey, secretKey) pair is persisted there first so it
// survives a restart independent of the in-memory stream map.
func (r *Registry) Connect(creds Credentials) string {
	hash := wireauth.CredentialHash(creds.APIKey)

	if r.vault != nil {
		if _, err := r.vault.Store(r.ctx, vaultsecrets.Credential{APIKey: creds.APIKey, SecretKey: creds.SecretKey}); err != nil {
			r.logger.Warn("failed to persist credential", "credential_hash", hash, "error", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.streams[hash]; ok {
		return hash
	}

	s := newStream(creds, r.restBase, r.wsBase, r.bus, r.logger)
	s.start(r.ctx)
	r.streams[hash] = s
	r.logger.Info("user feed connected", "credential_hash", hash)
	return hash
}

// Disconnect stops the stream for hash, if one exists, and removes its
// credential from the backing store.
func (r *Registry) Disconnect(hash string) error {
	r.mu.Lock()
	s, ok := r.streams[hash]
	if ok {
		delete(r.streams, hash)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("no user feed registered for credential hash %s", hash)
	}
	s.stop()
	if r.vault != nil {
		if err := r.vault.Delete(r.ctx, hash); err != nil {
			r.logger.Warn("failed to remove stored credential", "credential_hash", hash, "error", err)
		}
	}
	r.logger.Info("user feed disconnected", "credential_hash", hash)
	return nil
}

// Lookup returns the stream for hash, for PluginSupervisor's bridge setup.
func (r *Registry) Lookup(hash string) (*Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[hash]
	return s, ok
}

// List returns the credential hashes of every currently connected stream.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.streams))
	for h := range r.streams {
		out = append(out, h)
	}
	return out
}
