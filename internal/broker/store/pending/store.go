// Package pending stores one record per in-flight authorization attempt.
// Records are single-use: Consume atomically removes the record, so a second
// callback racing on the same state token observes the deletion and fails.
// TTL expiry is the only cleanup mechanism; abandoned flows simply age out.
package pending

import (
	"context"
	"time"

	"authgate/internal/broker/models"
)

// keyPrefix namespaces pending records in shared stores.
const keyPrefix = "oauth:state:"

// Error Contract:
// All store methods follow this pattern:
// - Return sentinel.ErrNotFound (wrapped) when no live record exists for the token
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures
type Store interface {
	// Put saves the record under stateToken with the given TTL.
	Put(ctx context.Context, stateToken string, record models.PendingAuthorization, ttl time.Duration) error

	// Consume atomically fetches and deletes the record. A second Consume
	// for the same token must fail even under concurrency.
	Consume(ctx context.Context, stateToken string) (models.PendingAuthorization, error)
}
