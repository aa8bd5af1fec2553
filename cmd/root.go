// Package cmd implements the recipe-harvester CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/recipe-harvester/internal/app"
)

// version is stamped at build time with -ldflags "-X .../cmd.version=...".
var version = "dev"

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

type rootOptions struct {
	configPath string
	dryRun     bool
}

// newApp is the application factory; tests replace it.
var newApp = func(ctx context.Context, opts app.Options) (*app.App, error) {
	return app.Build(ctx, opts)
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "recipe-harvester",
		Short: "Harvests recipes from configured sites into a relational store.",
		Long: `recipe-harvester fetches registered recipe pages and API documents in
concurrent batches, extracts a normalized record from each one and persists
the records transactionally, resolving every source address to a stable id.`,
		SilenceUsage: true,
		Version:      version,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["skip_app"] == "true" {
				return nil
			}
			instance, err := newApp(cmd.Context(), app.Options{
				ConfigPath: opts.configPath,
				DryRun:     opts.dryRun,
				Version:    version,
			})
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, instance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if instance, ok := cmd.Context().Value(appKey).(*app.App); ok && instance != nil {
				_ = instance.Close(context.Background())
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().BoolVar(&opts.dryRun, "dry-run", false, "keep registrations, recipes and events in memory")

	cmd.AddCommand(newHarvestCmd())
	cmd.AddCommand(newRegisterCmd())
	cmd.AddCommand(newReferenceCmd())
	cmd.AddCommand(newMigrateCmd(opts))
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	instance, ok := ctx.Value(appKey).(*app.App)
	if !ok || instance == nil {
		return nil, errors.New("application services not initialized")
	}
	return instance, nil
}

// Execute runs the CLI until completion or SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
