package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"github.com/yata-dev/yata-server/pkg/service/idp"
)

// Provider holds CLI flags for the identity provider connection
type Provider struct {
	apiURL        string
	jwksURL       string
	secretKey     string
	signingSecret string
}

// Flags returns CLI flags for provider configuration
func (x *Provider) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "provider-api-url",
			Usage:       "Identity provider backend API base URL",
			Category:    "Provider",
			Sources:     cli.EnvVars("YATA_PROVIDER_API_URL"),
			Destination: &x.apiURL,
		},
		&cli.StringFlag{
			Name:        "provider-jwks-url",
			Usage:       "Identity provider JWKS endpoint URL",
			Category:    "Provider",
			Sources:     cli.EnvVars("YATA_PROVIDER_JWKS_URL"),
			Destination: &x.jwksURL,
		},
		&cli.StringFlag{
			Name:        "provider-secret-key",
			Usage:       "Identity provider backend API secret key",
			Category:    "Provider",
			Sources:     cli.EnvVars("YATA_PROVIDER_SECRET_KEY"),
			Destination: &x.secretKey,
		},
		&cli.StringFlag{
			Name:        "webhook-signing-secret",
			Usage:       "Shared secret for webhook delivery signatures",
			Category:    "Provider",
			Sources:     cli.EnvVars("YATA_WEBHOOK_SIGNING_SECRET"),
			Destination: &x.signingSecret,
		},
	}
}

func (x Provider) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("api-url", x.apiURL),
		slog.String("jwks-url", x.jwksURL),
		slog.Int("secret-key.len", len(x.secretKey)),
		slog.Int("webhook-signing-secret.len", len(x.signingSecret)),
	)
}

// IsConfigured checks if the provider connection is fully configured
func (x *Provider) IsConfigured() bool {
	return x.apiURL != "" && x.jwksURL != "" && x.secretKey != ""
}

// IsWebhookConfigured checks if webhook verification is configured
func (x *Provider) IsWebhookConfigured() bool {
	return x.signingSecret != ""
}

// SigningSecret returns the webhook signing secret
func (x *Provider) SigningSecret() string {
	return x.signingSecret
}

// Configure creates the provider API client
func (x *Provider) Configure(timeout time.Duration) (*idp.Client, error) {
	if !x.IsConfigured() {
		return nil, goerr.New("provider configuration is required: set --provider-api-url, --provider-jwks-url, and --provider-secret-key")
	}

	opts := []idp.Option{}
	if timeout > 0 {
		opts = append(opts, idp.WithTimeout(timeout))
	}

	client, err := idp.New(x.apiURL, x.jwksURL, x.secretKey, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize provider client")
	}
	return client, nil
}
