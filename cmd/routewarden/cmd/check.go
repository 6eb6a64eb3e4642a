package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/routewarden/routewarden/internal/adapter/outbound/memory"
	"github.com/routewarden/routewarden/internal/config"
	"github.com/routewarden/routewarden/internal/domain/guard"
	"github.com/routewarden/routewarden/internal/domain/intent"
	"github.com/routewarden/routewarden/internal/domain/role"
	"github.com/routewarden/routewarden/internal/service"
)

var (
	checkSubject       string
	checkRoles         []string
	checkAuthenticated bool
)

var checkCmd = &cobra.Command{
	Use:   "check <path>",
	Short: "Evaluate one identity/path pair against the config",
	Long: `Evaluate a single decision without starting a server.

The policy table is loaded from the config file, the decision is printed
as JSON, and the exit code reports the outcome: 0 for allow, 1 for deny.

Examples:
  routewarden check /admin/users --roles admin --authenticated
  routewarden check "/signin?return_to=%2Fbilling" --roles user --authenticated`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkSubject, "subject", "", "subject ID of the identity")
	checkCmd.Flags().StringSliceVar(&checkRoles, "roles", nil, "roles held by the identity")
	checkCmd.Flags().BoolVar(&checkAuthenticated, "authenticated", false, "identity has a verified session")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
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
		return fmt.Errorf("failed to initialize guard service: %w", err)
	}

	identity := guard.Identity{
		SubjectID:     checkSubject,
		Authenticated: checkAuthenticated,
		Roles:         make([]guard.Role, len(checkRoles)),
	}
	for i, r := range checkRoles {
		identity.Roles[i] = guard.Role(r)
	}

	decision, err := svc.Decide(context.Background(), identity, args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{
		"allowed":     decision.Allowed,
		"redirect_to": decision.RedirectTo,
		"reason":      string(decision.Reason),
		"pattern":     decision.Pattern,
	}); err != nil {
		return err
	}

	if !decision.Allowed {
		os.Exit(1)
	}
	return nil
}
