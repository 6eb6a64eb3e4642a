package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/routewarden/routewarden/internal/adapter/outbound/memory"
	"github.com/routewarden/routewarden/internal/config"
	"github.com/routewarden/routewarden/internal/domain/intent"
	"github.com/routewarden/routewarden/internal/domain/role"
	"github.com/routewarden/routewarden/internal/service"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and policy table",
	Long: `Validate the config file without starting a server.

Beyond schema validation, the policy table is fully compiled: patterns are
parsed, required roles resolved, and CEL conditions type-checked, so any
error a reload would hit shows up here first.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := service.NewGuardService(cmd.Context(),
		memory.NewPolicyStore(cfg.GuardPolicies()),
		role.NewResolver(cfg.RoleGrants()),
		intent.NewTracker(cfg.Guard.SignInPath, cfg.Guard.ReturnToParam, cfg.Guard.HomePath),
		service.Settings{
			DefaultFallback: cfg.Guard.DefaultFallback,
			AuthOnlyPaths:   cfg.Guard.AuthOnlyPaths,
		},
		logger,
	)
	if err != nil {
		return fmt.Errorf("policy table rejected: %w", err)
	}

	file := config.ConfigFileUsed()
	if file == "" {
		file = "(environment only)"
	}
	fmt.Printf("OK: %s\n", file)
	fmt.Printf("  roles:    %d\n", len(cfg.Guard.Roles))
	fmt.Printf("  policies: %d\n", svc.PolicyCount())
	return nil
}
