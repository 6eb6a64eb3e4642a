// Package cmd provides the CLI commands for routewarden.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/routewarden/routewarden/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "routewarden",
	Short: "Routewarden - route authorization decision service",
	Long: `Routewarden answers one question: may this identity visit this route?

It evaluates a declarative policy table (exact paths and prefix wildcards,
required roles, optional CEL conditions) and returns allow or a redirect
target, preserving the originally requested path through sign-in redirects.

Quick start:
  1. Create a config file: routewarden.yaml
  2. Run: routewarden serve

Configuration:
  Config is loaded from routewarden.yaml in the current directory,
  $HOME/.routewarden/, or /etc/routewarden/.

  Environment variables can override config values with the ROUTEWARDEN_ prefix.
  Example: ROUTEWARDEN_SERVER_HTTP_ADDR=:8484

Commands:
  serve       Start the decision API server
  check       Evaluate one identity/path pair against the config
  validate    Validate the configuration and policy table
  hash-key    Generate a hash for an API key
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./routewarden.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
