package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

type harvestOptions struct {
	all       bool
	file      string
	kind      string
	serveOps  bool
	printJSON bool
}

func newHarvestCmd() *cobra.Command {
	opts := &harvestOptions{}
	cmd := &cobra.Command{
		Use:   "harvest [source...]",
		Short: "Fetch, extract and persist recipes for one or more sources",
		Long: `Runs the harvest pipeline for each named source (or every configured
source with --all). Registered addresses are fetched in concurrent batches;
records are persisted in chunks and each run is summarized in a report.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarvest(cmd, args, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.all, "all", false, "harvest every configured source")
	cmd.Flags().StringVar(&opts.file, "file", "", "register addresses from this file before harvesting (single source only)")
	cmd.Flags().StringVar(&opts.kind, "kind", string(recipe.KindURL), "address kind for --file: url or post_id")
	cmd.Flags().BoolVar(&opts.serveOps, "serve-ops", true, "serve /healthz, /readyz and /metrics on metrics.addr while harvesting")
	cmd.Flags().BoolVar(&opts.printJSON, "json", false, "print run reports as JSON")
	return cmd
}

func runHarvest(cmd *cobra.Command, args []string, opts *harvestOptions) error {
	instance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := instance.Config()
	logger := instance.Logger()

	sources := args
	if opts.all {
		sources = cfg.SourceNames()
	}
	if len(sources) == 0 {
		return errors.New("name at least one source or pass --all")
	}

	if opts.file != "" {
		if len(sources) != 1 {
			return errors.New("--file needs exactly one source")
		}
		if err := registerFromFile(cmd.Context(), instance.Registry(), sources[0], opts.file, recipe.AddressKind(opts.kind), cmd.OutOrStdout()); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if opts.serveOps && cfg.Metrics.Addr != "" {
		go func() {
			if err := instance.Ops().ListenAndServe(ctx, cfg.Metrics.Addr); err != nil {
				logger.Warn("ops server stopped", zap.Error(err))
			}
		}()
	}

	var failed []string
	for _, source := range sources {
		report, err := instance.Harvester().Run(ctx, source)
		if err != nil {
			logger.Error("harvest failed", zap.String("source", source), zap.Error(err))
			failed = append(failed, source)
			continue
		}
		if err := printReport(cmd, report, opts.printJSON); err != nil {
			return err
		}
		if report.FailedChunks > 0 {
			failed = append(failed, source)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("harvest incomplete for %v", failed)
	}
	return nil
}

func printReport(cmd *cobra.Command, report recipe.RunReport, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		return nil
	}
	_, err := fmt.Fprintf(out,
		"%s run %s: %d addresses, %d fetched, %d extracted, %d persisted, %d skipped, %d failed chunks\n",
		report.Source, report.RunID, report.Addresses, report.Fetched, report.Extracted,
		report.Persisted, len(report.Skipped), report.FailedChunks,
	)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
