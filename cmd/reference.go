package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/recipe-harvester/internal/reference"
)

func newReferenceCmd() *cobra.Command {
	var printJSON bool
	cmd := &cobra.Command{
		Use:   "reference",
		Short: "Load the ingredient nutrition reference table from the paginated API",
		Long: `Requests every page of the configured reference API, parses each
ingredient entry and stores it in the ingredient reference table. Entries
already stored for the reference source are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			loader := instance.References()
			if loader == nil {
				return errors.New("reference.url_template is not configured")
			}
			report, err := loader.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("reference load: %w", err)
			}
			if err := printReferenceReport(cmd, report, printJSON); err != nil {
				return err
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("reference load incomplete: %d pages failed", len(report.Failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&printJSON, "json", false, "print the load report as JSON")
	return cmd
}

func printReferenceReport(cmd *cobra.Command, report reference.Report, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		return nil
	}
	_, err := fmt.Fprintf(out, "%s: %d pages, %d fetched, %d entries, %d new, %d failed\n",
		report.Source, report.Pages, report.Fetched, report.Items, report.Inserted, len(report.Failed))
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
