package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
)

// Policy is the optional tuning file for reconciliation behavior. Every
// field has a production default; the file only overrides.
type Policy struct {
	Webhook  WebhookPolicy  `toml:"webhook"`
	KeyCache KeyCachePolicy `toml:"key_cache"`
	Provider ProviderPolicy `toml:"provider"`
	Session  SessionPolicy  `toml:"session"`
}

// WebhookPolicy tunes webhook ingestion
type WebhookPolicy struct {
	Skew          duration `toml:"skew"`
	DedupTTL      duration `toml:"dedup_ttl"`
	SweepInterval duration `toml:"sweep_interval"`
}

// KeyCachePolicy tunes the verification key cache
type KeyCachePolicy struct {
	TTL duration `toml:"ttl"`
}

// ProviderPolicy tunes outbound provider calls
type ProviderPolicy struct {
	Timeout duration `toml:"timeout"`
}

// SessionPolicy tunes token verification
type SessionPolicy struct {
	ClockSkew duration `toml:"clock_skew"`
}

// duration parses TOML duration strings like "5m" or "1h30m"
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(data []byte) error {
	parsed, err := time.ParseDuration(string(data))
	if err != nil {
		return goerr.Wrap(err, "invalid duration", goerr.V("value", string(data)))
	}
	d.Duration = parsed
	return nil
}

// DefaultPolicy returns the production defaults
func DefaultPolicy() *Policy {
	return &Policy{
		Webhook: WebhookPolicy{
			Skew:          duration{5 * time.Minute},
			DedupTTL:      duration{15 * time.Minute},
			SweepInterval: duration{5 * time.Minute},
		},
		KeyCache: KeyCachePolicy{
			TTL: duration{time.Hour},
		},
		Provider: ProviderPolicy{
			Timeout: duration{10 * time.Second},
		},
		Session: SessionPolicy{
			ClockSkew: duration{10 * time.Second},
		},
	}
}

// Validate checks if the Policy is valid
func (p *Policy) Validate() error {
	if p.Webhook.Skew.Duration <= 0 {
		return goerr.Wrap(ErrInvalidPolicy, "webhook skew must be positive", goerr.V("skew", p.Webhook.Skew.String()))
	}
	if p.Webhook.DedupTTL.Duration <= 0 {
		return goerr.Wrap(ErrInvalidPolicy, "webhook dedup_ttl must be positive", goerr.V("dedup_ttl", p.Webhook.DedupTTL.String()))
	}
	if p.Webhook.SweepInterval.Duration <= 0 {
		return goerr.Wrap(ErrInvalidPolicy, "webhook sweep_interval must be positive", goerr.V("sweep_interval", p.Webhook.SweepInterval.String()))
	}
	if p.KeyCache.TTL.Duration <= 0 {
		return goerr.Wrap(ErrInvalidPolicy, "key_cache ttl must be positive", goerr.V("ttl", p.KeyCache.TTL.String()))
	}
	if p.Provider.Timeout.Duration <= 0 {
		return goerr.Wrap(ErrInvalidPolicy, "provider timeout must be positive", goerr.V("timeout", p.Provider.Timeout.String()))
	}
	if p.Session.ClockSkew.Duration < 0 {
		return goerr.Wrap(ErrInvalidPolicy, "session clock_skew must not be negative", goerr.V("clock_skew", p.Session.ClockSkew.String()))
	}
	return nil
}

func (p Policy) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("webhook.skew", p.Webhook.Skew.String()),
		slog.String("webhook.dedup_ttl", p.Webhook.DedupTTL.String()),
		slog.String("webhook.sweep_interval", p.Webhook.SweepInterval.String()),
		slog.String("key_cache.ttl", p.KeyCache.TTL.String()),
		slog.String("provider.timeout", p.Provider.Timeout.String()),
		slog.String("session.clock_skew", p.Session.ClockSkew.String()),
	)
}

// LoadPolicy loads the policy from a TOML file, layered over the defaults.
// An empty path returns the defaults unchanged.
func LoadPolicy(path string) (*Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(ErrPolicyNotFound, "failed to read policy file", goerr.V("path", path))
	}

	if err := toml.Unmarshal(data, policy); err != nil {
		return nil, goerr.Wrap(err, "failed to parse TOML policy", goerr.V("path", path))
	}

	if err := policy.Validate(); err != nil {
		return nil, goerr.Wrap(err, "policy validation failed", goerr.V("path", path))
	}

	return policy, nil
}
