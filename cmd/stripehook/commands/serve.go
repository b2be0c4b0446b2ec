package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/otiai10/stripehook/internal/api"
	"github.com/otiai10/stripehook/internal/config"
	"github.com/otiai10/stripehook/internal/logging"
	"github.com/otiai10/stripehook/internal/tail"
	"github.com/otiai10/stripehook/internal/telemetry"
	"github.com/otiai10/stripehook/internal/version"
	"github.com/otiai10/stripehook/internal/webhook"
)

const shutdownTimeout = 10 * time.Second

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook receiver",
	Long: `Run the HTTP server receiving Stripe events.

The endpoint secret comes from STRIPE_WEBHOOK_SECRET or webhook.secret in
the config file. The server refuses to start without it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Load .env.localdev file if it exists (for local development)
		_ = godotenv.Load(".env.localdev")

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		logger, err := logging.New(cfg.Log, nil)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return run(ctx, cfg, logger)
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "YAML config file (environment only when empty)")
	rootCmd.AddCommand(serveCmd)
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// run serves until ctx is cancelled, then shuts down gracefully
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	secret, err := webhook.NewSecret(cfg.Webhook.Secret)
	if err != nil {
		return fmt.Errorf("webhook.secret: %w", err)
	}
	verifier := webhook.NewVerifier(secret, webhook.WithTolerance(cfg.Webhook.Tolerance))

	opts := []api.HandlerOption{api.WithMaxBodyBytes(cfg.Server.MaxBodyBytes)}
	routerCfg := api.RouterConfig{
		Logger:     logger,
		EventsPath: cfg.Server.Path,
		RateLimit:  cfg.RateLimit.RequestsPerMinute,
		TrustProxy: cfg.Server.TrustProxy,
	}

	if cfg.Metrics.Enabled {
		m := telemetry.New(prometheus.NewRegistry())
		opts = append(opts, api.WithObserver(m))
		routerCfg.Metrics = m
		routerCfg.MetricsPath = cfg.Metrics.Path
	}

	var hub *tail.Hub
	if cfg.Tail.Enabled {
		logger.Warn().Msg("tail feed enabled without authentication")
		hub = tail.NewHub(logger)
		opts = append(opts, api.WithPublisher(hub))
		routerCfg.Tail = hub
	}

	routerCfg.Handler = api.NewStripeEventsHandler(verifier, logger, opts...)
	server := api.NewServer(cfg.Server.Addr, api.NewRouter(routerCfg))

	logger.Info().
		Str("addr", server.Addr()).
		Str("path", cfg.Server.Path).
		Dur("tolerance", cfg.Webhook.Tolerance).
		Bool("metrics", cfg.Metrics.Enabled).
		Bool("tail", cfg.Tail.Enabled).
		Int("rate_limit_rpm", cfg.RateLimit.RequestsPerMinute).
		Bool("trust_proxy", cfg.Server.TrustProxy).
		Str("version", version.CommitHash).
		Msg("starting stripehook")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if hub != nil {
			hub.Close()
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
