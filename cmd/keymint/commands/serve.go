package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/keymint/keymint/internal/api"
	"github.com/keymint/keymint/internal/api/auth"
	"github.com/keymint/keymint/internal/api/handlers"
	"github.com/keymint/keymint/internal/logger"
	"github.com/keymint/keymint/internal/telemetry"
	"github.com/keymint/keymint/pkg/config"
	"github.com/keymint/keymint/pkg/materialize"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the keymint management API server",
	Long: `Start the keymint management API server.

The server exposes health probes, Prometheus metrics, and a JWT-protected
REST API for principal management, run history, and on-demand
materialization runs.

The JWT signing secret comes from the configuration file or the
KEYMINT_API_SECRET environment variable (the environment takes precedence).
Admin credentials are set up by 'keymint init'.

Examples:
  # Start with default config
  keymint serve

  # Start with custom config file
  keymint serve --config /etc/keymint/config.yaml

  # Start with environment variable overrides
  KEYMINT_LOGGING_LEVEL=DEBUG keymint serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry (if enabled)
	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "keymint",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", logger.KeyError, err.Error())
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "keymint",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.KeyError, err.Error())
		}
	}()

	if !cfg.API.HasJWTSecret() {
		return fmt.Errorf("no JWT secret configured\n\n"+
			"Run 'keymint init' to generate one, or set it via:\n"+
			"  export %s=$(openssl rand -hex 32)", config.EnvAPISecret)
	}
	if cfg.Admin.PasswordHash == "" {
		return errors.New("no admin password configured; run 'keymint init' first")
	}

	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret:               cfg.API.GetJWTSecret(),
		AccessTokenDuration:  cfg.API.JWT.AccessTokenDuration,
		RefreshTokenDuration: cfg.API.JWT.RefreshTokenDuration,
	})
	if err != nil {
		return fmt.Errorf("failed to configure API authentication: %w", err)
	}

	store, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	jnl, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = jnl.Close() }()

	// Metrics live on a private registry so /metrics serves exactly what
	// keymint registered.
	promRegistry := prometheus.NewRegistry()

	engineCfg, err := engineConfig(cfg, store, materialize.NewMetrics(promRegistry))
	if err != nil {
		return err
	}

	runner, err := materialize.NewRunner(materialize.RunnerConfig{
		Engine:   engineCfg,
		Recorder: jnl,
	})
	if err != nil {
		return err
	}

	admin := handlers.AdminAccount{
		Username:     cfg.Admin.Username,
		Email:        cfg.Admin.Email,
		PasswordHash: cfg.Admin.PasswordHash,
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      api.NewRouter(jwtService, admin, store, jnl, runner, promRegistry),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Management API listening",
			"addr", server.Addr,
			logger.KeyDataDir, cfg.Engine.DataDir,
			logger.KeyDatabase, string(cfg.Database.Type),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down", "timeout", cfg.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown incomplete: %w", err)
	}
	return nil
}
