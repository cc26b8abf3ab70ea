package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/audit/retention"
	"mercator-hq/ledger/pkg/cli"
)

var pruneFlags struct {
	days    int
	archive string
	dryRun  bool
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete events past the retention period",
	Long: `Delete events from the primary backend whose start date is older than the
retention period (storage.retention.days). When an archive directory is set
the events are exported there first.

Examples:
  # Apply the configured retention
  ledger prune

  # Show what a 30 day retention would delete
  ledger prune --days 30 --dry-run`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().IntVar(&pruneFlags.days, "days", 0, "override storage.retention.days")
	pruneCmd.Flags().StringVar(&pruneFlags.archive, "archive", "", "override storage.retention.archive_path")
	pruneCmd.Flags().BoolVar(&pruneFlags.dryRun, "dry-run", false, "count matching events without deleting")
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rc := retention.FromConfig(cfg.Storage.Retention)
	if pruneFlags.days > 0 {
		rc.Days = pruneFlags.days
	}
	if pruneFlags.archive != "" {
		rc.ArchivePath = pruneFlags.archive
	}

	out := cmd.OutOrStdout()
	if rc.Days <= 0 {
		fmt.Fprintln(out, "Retention disabled, nothing to prune")
		return nil
	}

	stack, err := openStack(cfg)
	if err != nil {
		return err
	}
	defer stack.Close()

	pruner, err := retention.NewPruner(stack.Primary(), rc)
	if err != nil {
		return cli.NewCommandError("prune", err)
	}

	cutoff := pruner.Cutoff()
	if pruneFlags.dryRun {
		n, err := countBefore(cmd.Context(), stack.Primary(), cutoff)
		if err != nil {
			return cli.NewCommandError("prune", err)
		}
		fmt.Fprintf(out, "%d events started before %s would be deleted\n", n, cutoff.Format(time.RFC3339))
		return nil
	}

	deleted, err := pruner.Prune(cmd.Context())
	if err != nil {
		return cli.NewCommandError("prune", err)
	}
	fmt.Fprintf(out, "✓ Deleted %d events started before %s\n", deleted, cutoff.Format(time.RFC3339))
	return nil
}

// countBefore counts the events a prune at cutoff would delete.
func countBefore(ctx context.Context, p audit.DataProvider, cutoff time.Time) (int, error) {
	queryer, ok := audit.As[audit.Queryer](p)
	if !ok {
		return 0, fmt.Errorf("%s does not support queries", audit.ProviderName(p))
	}
	end := cutoff.Add(-time.Nanosecond)
	records, err := queryer.QueryEvents(ctx, &audit.Query{EndTime: &end})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}
