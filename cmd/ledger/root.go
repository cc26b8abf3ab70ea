package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/ledger/pkg/cli"
	"mercator-hq/ledger/pkg/config"
	"mercator-hq/ledger/pkg/providerfactory"
	"mercator-hq/ledger/pkg/security/secrets"
	"mercator-hq/ledger/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Ledger - audit trail recording and storage",
	Long: `Ledger records an audit event for every scoped operation and writes it to
one or more storage backends.

It provides:
  - Scopes with configurable creation policies
  - SQLite, PostgreSQL, ClickHouse, memory and hash-chained file backends
  - Fallback, multiplex, round-robin and hedged backend combinations
  - Retention pruning with optional archiving
  - Prometheus metrics, OpenTelemetry tracing and health endpoints`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and LEDGER_* variables when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// loadConfig loads the configuration named by --config, sets up logging
// from it, resolves secret references and installs it as the global
// configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError(configName(), err.Error())
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if _, err := logging.Setup(logging.FromConfig(cfg.Telemetry.Logging)); err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	if err := resolveSecrets(context.Background(), cfg); err != nil {
		return nil, err
	}
	config.SetConfig(cfg)
	return cfg, nil
}

// openStack builds the storage stack without telemetry, for short-lived
// commands.
func openStack(cfg *config.Config) (*providerfactory.Stack, error) {
	stack, err := providerfactory.NewStack(cfg, providerfactory.Options{})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return stack, nil
}

func configName() string {
	if cfgFile == "" {
		return "defaults"
	}
	return cfgFile
}

// resolveSecrets expands ${secret:name} references in cfg with a resolver
// built from cfg itself.
func resolveSecrets(ctx context.Context, cfg *config.Config) error {
	resolver, err := secrets.NewResolver(&cfg.Secrets)
	if err != nil {
		return cli.NewConfigError("secrets.dir", err.Error())
	}
	if err := resolver.ResolveConfig(ctx, cfg); err != nil {
		return cli.NewConfigError("secrets", err.Error())
	}
	return nil
}
