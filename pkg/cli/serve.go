package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/yata-dev/yata-server/pkg/cli/config"
	httpctrl "github.com/yata-dev/yata-server/pkg/controller/http"
	"github.com/yata-dev/yata-server/pkg/service/keycache"
	"github.com/yata-dev/yata-server/pkg/service/worker"
	"github.com/yata-dev/yata-server/pkg/usecase"
	"github.com/yata-dev/yata-server/pkg/utils/logging"
)

func cmdServe() *cli.Command {
	var addr string
	var policyPath string
	var providerCfg config.Provider
	var repoCfg config.Repository

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("YATA_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "policy",
			Usage:       "Path to the TOML policy file (optional, defaults applied)",
			Sources:     cli.EnvVars("YATA_POLICY"),
			Destination: &policyPath,
		},
	}

	// Add shared config flags
	flags = append(flags, providerCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			policy, err := config.LoadPolicy(policyPath)
			if err != nil {
				return goerr.Wrap(err, "failed to load policy")
			}
			logging.Default().Info("Policy loaded", "policy", policy)

			// Initialize repository based on backend type
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			// Provider client covers profile fetch and key retrieval
			provider, err := providerCfg.Configure(policy.Provider.Timeout.Duration)
			if err != nil {
				return goerr.Wrap(err, "failed to configure provider client")
			}
			logging.Default().Info("Provider client configured", "provider", providerCfg)

			keys := keycache.New(provider, keycache.WithTTL(policy.KeyCache.TTL.Duration))

			uc := usecase.New(repo,
				usecase.WithKeyProvider(keys),
				usecase.WithProfileAPI(provider),
				usecase.WithClockSkew(policy.Session.ClockSkew.Duration),
				usecase.WithDedupTTL(policy.Webhook.DedupTTL.Duration),
			)

			// Start the dedup sweeper so the webhook dedup collection does
			// not grow unbounded
			sweeper := worker.NewDedupSweeper(repo, policy.Webhook.SweepInterval.Duration)
			if err := sweeper.Start(ctx); err != nil {
				return goerr.Wrap(err, "failed to start dedup sweeper")
			}

			httpOpts := []httpctrl.Options{}
			if providerCfg.IsWebhookConfigured() {
				httpOpts = append(httpOpts,
					httpctrl.WithWebhook(providerCfg.SigningSecret(), policy.Webhook.Skew.Duration))
				logging.Default().Info("Webhook endpoint enabled")
			} else {
				logging.Default().Warn("Webhook signing secret not configured, webhook endpoint disabled")
			}

			httpHandler, err := httpctrl.New(uc, httpOpts...)
			if err != nil {
				return goerr.Wrap(err, "failed to create http server")
			}
			server := &http.Server{
				Addr:              addr,
				Handler:           httpHandler,
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				sweeper.Stop()
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				sweeper.Stop()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
