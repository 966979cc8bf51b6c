package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/yata-dev/yata-server/pkg/domain/types"
)

type dedupStore struct {
	mu   sync.Mutex
	seen map[types.EventID]time.Time
}

func newDedupStore() *dedupStore {
	return &dedupStore{
		seen: make(map[types.EventID]time.Time),
	}
}

func (s *dedupStore) Processed(ctx context.Context, id types.EventID) (bool, error) {
	if err := id.Validate(); err != nil {
		return false, goerr.Wrap(err, "invalid event ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.seen[id]
	return ok && time.Now().Before(expiresAt), nil
}

func (s *dedupStore) MarkProcessed(ctx context.Context, id types.EventID, ttl time.Duration) (bool, error) {
	if err := id.Validate(); err != nil {
		return false, goerr.Wrap(err, "invalid event ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if expiresAt, ok := s.seen[id]; ok && now.Before(expiresAt) {
		return false, nil
	}

	s.seen[id] = now.Add(ttl)
	return true, nil
}

func (s *dedupStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int
	for id, expiresAt := range s.seen {
		if expiresAt.Before(now) {
			delete(s.seen, id)
			purged++
		}
	}

	return purged, nil
}
