// Package clients holds the registered MCP client applications for
// standalone deployments, backing the provider abstraction's LookupClient
// and CreateClient. Secrets are stored bcrypt-hashed only.
package clients

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"authgate/internal/broker/models"
	dErrors "authgate/pkg/domain-errors"
	"authgate/pkg/platform/sentinel"
)

type registration struct {
	info       models.ClientInfo
	secretHash string
}

// Registry is a mutex-guarded in-memory client registry.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]registration)}
}

// Create registers a client, assigning an ID and a one-time plaintext
// secret. At least one redirect URI is required.
func (r *Registry) Create(_ context.Context, info models.ClientInfo) (models.ClientInfo, string, error) {
	if len(info.RedirectURIs) == 0 {
		return models.ClientInfo{}, "", dErrors.New(dErrors.CodeInvalidRequest, "at least one redirect_uri is required")
	}

	secret, err := GenerateSecret()
	if err != nil {
		return models.ClientInfo{}, "", err
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return models.ClientInfo{}, "", err
	}

	info.ClientID = uuid.NewString()
	// Only the hash is retained; the plaintext leaves through the return
	// value exactly once.
	info.ClientSecret = ""

	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[info.ClientID] = registration{info: info, secretHash: hash}
	return info, secret, nil
}

// Lookup returns a registered client's metadata.
func (r *Registry) Lookup(_ context.Context, clientID string) (models.ClientInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.clients[clientID]
	if !ok {
		return models.ClientInfo{}, fmt.Errorf("client %q: %w", clientID, sentinel.ErrNotFound)
	}
	return reg.info, nil
}

// Authenticate verifies a client's secret.
func (r *Registry) Authenticate(_ context.Context, clientID, secret string) error {
	r.mu.RLock()
	reg, ok := r.clients[clientID]
	r.mu.RUnlock()
	if !ok {
		return dErrors.New(dErrors.CodeInvalidClient, "unknown client")
	}
	return VerifySecret(secret, reg.secretHash)
}
