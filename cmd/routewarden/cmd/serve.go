package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	httpadapter "github.com/routewarden/routewarden/internal/adapter/inbound/http"
	auditstore "github.com/routewarden/routewarden/internal/adapter/outbound/audit"
	"github.com/routewarden/routewarden/internal/adapter/outbound/memory"
	"github.com/routewarden/routewarden/internal/config"
	"github.com/routewarden/routewarden/internal/domain/audit"
	"github.com/routewarden/routewarden/internal/domain/auth"
	"github.com/routewarden/routewarden/internal/domain/intent"
	"github.com/routewarden/routewarden/internal/domain/role"
	"github.com/routewarden/routewarden/internal/service"
	"github.com/routewarden/routewarden/internal/telemetry"
)

var serveDev bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the decision API server",
	Long: `Start the routewarden HTTP server.

The server exposes the decision API (POST /v1/decide), the policy table
(GET /v1/policies), reload (POST /v1/reload), recent audit records
(GET /v1/decisions), /health, and /metrics.

The policy table reloads without restart: send SIGHUP or POST /v1/reload.
A table that fails to compile is rejected and the previous table stays
active.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "enable development mode (debug logging, seeded roles)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return err
	}
	if serveDev {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logger := newLogger(cfg)
	if used := config.ConfigFileUsed(); used != "" {
		logger.Info("loaded configuration", "file", used)
	} else {
		logger.Info("no config file found, using environment and defaults")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing.Enabled, Version)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	auditor, err := openAuditStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := auditor.Close(); err != nil {
			logger.Warn("audit store close failed", "error", err)
		}
	}()

	store := memory.NewPolicyStore(cfg.GuardPolicies())
	resolver := role.NewResolver(cfg.RoleGrants())
	tracker := intent.NewTracker(cfg.Guard.SignInPath, cfg.Guard.ReturnToParam, cfg.Guard.HomePath)

	svc, err := service.NewGuardService(ctx, store, resolver, tracker,
		service.Settings{
			DefaultFallback: cfg.Guard.DefaultFallback,
			AuthOnlyPaths:   cfg.Guard.AuthOnlyPaths,
		},
		logger,
		service.WithCacheSize(cfg.Guard.CacheSize),
		service.WithAuditStore(auditor),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize guard service: %w", err)
	}

	keys := make([]auth.APIKey, len(cfg.Auth.APIKeys))
	for i, k := range cfg.Auth.APIKeys {
		keys[i] = auth.APIKey{Name: k.Name, Hash: k.KeyHash}
	}
	keyring, err := auth.NewKeyring(keys)
	if err != nil {
		return fmt.Errorf("failed to build keyring: %w", err)
	}
	if keyring.Empty() {
		logger.Warn("no API keys configured, decision API is open")
	}

	// SIGHUP re-reads the config so policy edits (inline or in the
	// standalone policies file) land in the store before the table swap.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				logger.Info("SIGHUP received, reloading policies")
				if err := reloadPolicies(ctx, store, svc); err != nil {
					logger.Error("policy reload failed, previous table stays active", "error", err)
				}
			}
		}
	}()

	server := httpadapter.NewServer(svc,
		httpadapter.WithAddr(cfg.Server.HTTPAddr),
		httpadapter.WithLogger(logger),
		httpadapter.WithKeyring(keyring),
		httpadapter.WithAuditStore(auditor),
		httpadapter.WithVersion(Version),
	)
	return server.Start(ctx)
}

// reloadPolicies re-reads the configuration and swaps the policy table.
func reloadPolicies(ctx context.Context, store *memory.PolicyStore, svc *service.GuardService) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if err := store.ReplacePolicies(ctx, cfg.GuardPolicies()); err != nil {
		return err
	}
	return svc.Reload(ctx)
}

// newLogger builds the slog logger from the server config.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Server.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openAuditStore builds the audit store named by audit.output.
func openAuditStore(cfg *config.Config, logger *slog.Logger) (audit.Store, error) {
	output := cfg.Audit.Output
	switch {
	case output == "stdout":
		return auditstore.NewWriterStore(os.Stdout), nil
	case strings.HasPrefix(output, "file://"):
		dir := strings.TrimPrefix(output, "file://")
		return auditstore.NewFileStore(auditstore.FileConfig{
			Dir:           dir,
			RetentionDays: cfg.Audit.RetentionDays,
		}, logger)
	case strings.HasPrefix(output, "sqlite://"):
		return auditstore.NewSQLiteStore(strings.TrimPrefix(output, "sqlite://"))
	default:
		return nil, fmt.Errorf("unsupported audit output %q", output)
	}
}
