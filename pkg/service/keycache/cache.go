package keycache

import (
	"context"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/m-mizutani/goerr/v2"
	"github.com/yata-dev/yata-server/pkg/domain/interfaces"
	"golang.org/x/sync/singleflight"
)

const defaultTTL = time.Hour

// ErrKeyNotFound is returned when the provider does not recognize the key
// ID even after a refresh. This signals a revoked key or a forged token.
var ErrKeyNotFound = goerr.New("verification key not found")

// Cache holds the provider's public signature keys in memory with a TTL.
// Lookups for an unknown key ID trigger a single coalesced refresh from the
// key source; concurrent misses share one outbound call.
type Cache struct {
	source interfaces.KeySource
	ttl    time.Duration

	mu        sync.RWMutex
	keys      jwk.Set
	fetchedAt time.Time

	flight singleflight.Group
}

var _ interfaces.KeyProvider = &Cache{}

type Option func(*Cache)

// WithTTL overrides how long a fetched key set is served without refresh
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

func New(source interfaces.KeySource, opts ...Option) *Cache {
	c := &Cache{
		source: source,
		ttl:    defaultTTL,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get resolves a verification key by key ID, refreshing the cached set when
// it is stale or does not contain the key. Returns ErrKeyNotFound when the
// provider does not recognize the key ID after a refresh.
func (c *Cache) Get(ctx context.Context, keyID string) (jwk.Key, error) {
	if keyID == "" {
		return nil, goerr.New("key ID is required")
	}

	if key, ok := c.lookup(keyID); ok {
		return key, nil
	}

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	if key, ok := c.lookup(keyID); ok {
		return key, nil
	}

	return nil, goerr.Wrap(ErrKeyNotFound, "provider does not recognize key ID", goerr.V("keyID", keyID))
}

func (c *Cache) lookup(keyID string) (jwk.Key, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.keys == nil || time.Since(c.fetchedAt) > c.ttl {
		return nil, false
	}

	return c.keys.LookupKeyID(keyID)
}

func (c *Cache) refresh(ctx context.Context) error {
	// Coalesce concurrent refreshes into one outbound fetch so a cold start
	// or key rotation does not stampede the provider. The fetch runs detached
	// from the first caller's context so its disconnect cannot fail every
	// coalesced waiter.
	fetchCtx := context.WithoutCancel(ctx)
	_, err, _ := c.flight.Do("refresh", func() (interface{}, error) {
		set, err := c.source.FetchKeySet(fetchCtx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to refresh key set")
		}

		c.mu.Lock()
		c.keys = set
		c.fetchedAt = time.Now()
		c.mu.Unlock()

		return nil, nil
	})
	return err
}
