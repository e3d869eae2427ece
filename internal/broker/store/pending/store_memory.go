package pending

import (
	"context"
	"fmt"
	"sync"
	"time"

	"authgate/internal/broker/models"
	"authgate/pkg/platform/sentinel"
)

type memoryRecord struct {
	record    models.PendingAuthorization
	expiresAt time.Time
}

// InMemoryStore keeps pending authorizations in a mutex-guarded map for
// single-instance deployments and tests. Expired entries are purged lazily;
// there is no background sweeper.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord

	// now is injected for TTL tests; defaults to time.Now.
	now func() time.Time
}

// NewInMemory constructs an empty in-memory pending store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]memoryRecord),
		now:     time.Now,
	}
}

func (s *InMemoryStore) Put(_ context.Context, stateToken string, record models.PendingAuthorization, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", sentinel.ErrInvalidState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpiredLocked()
	s.records[keyPrefix+stateToken] = memoryRecord{
		record:    record,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *InMemoryStore) Consume(_ context.Context, stateToken string) (models.PendingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyPrefix + stateToken
	entry, ok := s.records[key]
	if !ok {
		return models.PendingAuthorization{}, fmt.Errorf("pending authorization not found: %w", sentinel.ErrNotFound)
	}
	// Delete unconditionally: an expired record is as dead as an absent one.
	delete(s.records, key)

	if s.now().After(entry.expiresAt) {
		return models.PendingAuthorization{}, fmt.Errorf("pending authorization expired: %w", sentinel.ErrNotFound)
	}
	return entry.record, nil
}

func (s *InMemoryStore) purgeExpiredLocked() {
	now := s.now()
	for key, entry := range s.records {
		if now.After(entry.expiresAt) {
			delete(s.records, key)
		}
	}
}
