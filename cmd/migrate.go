package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/recipe-harvester/internal/config"
	pgstore "github.com/JakeFAU/recipe-harvester/internal/storage/postgres"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:         "migrate",
		Short:       "Apply (or revert with --down) the database schema",
		Annotations: map[string]string{"skip_app": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.DB.DSN == "" {
				return errors.New("db.dsn is required")
			}
			if down {
				if err := pgstore.MigrateDown(cfg.DB.DSN); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "schema reverted")
				return err
			}
			version, dirty, err := pgstore.Migrate(cfg.DB.DSN)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d (dirty=%t)\n", version, dirty)
			return err
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "revert every migration")
	return cmd
}
