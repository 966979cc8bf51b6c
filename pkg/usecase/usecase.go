package usecase

import (
	"time"

	"github.com/yata-dev/yata-server/pkg/domain/interfaces"
)

// UseCases aggregates the engine's use cases
type UseCases struct {
	Session *SessionUseCase
	Sync    *SyncUseCase
}

type config struct {
	keys     interfaces.KeyProvider
	profiles interfaces.ProfileAPI
	skew     time.Duration
	dedupTTL time.Duration
}

type Option func(*config)

// WithKeyProvider sets the verification key resolver used by the session
// verifier
func WithKeyProvider(keys interfaces.KeyProvider) Option {
	return func(c *config) {
		c.keys = keys
	}
}

// WithProfileAPI sets the provider profile API used by JIT resolution
func WithProfileAPI(profiles interfaces.ProfileAPI) Option {
	return func(c *config) {
		c.profiles = profiles
	}
}

// WithClockSkew sets the acceptable clock skew for token time validation
func WithClockSkew(skew time.Duration) Option {
	return func(c *config) {
		c.skew = skew
	}
}

// WithDedupTTL sets how long processed webhook event IDs are remembered
func WithDedupTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.dedupTTL = ttl
	}
}

func New(repo interfaces.Repository, opts ...Option) *UseCases {
	cfg := &config{
		skew:     defaultClockSkew,
		dedupTTL: defaultDedupTTL,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &UseCases{
		Session: NewSessionUseCase(cfg.keys, cfg.skew),
		Sync:    NewSyncUseCase(repo, cfg.profiles, cfg.dedupTTL),
	}
}
