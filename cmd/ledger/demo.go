package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/cli"
	"mercator-hq/ledger/pkg/providerfactory"
)

var demoFlags struct {
	count     int
	eventType string
	policy    string
	failEvery int
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Write sample audit events",
	Long: `Run a number of audited order updates through the configured storage
stack and actions. Useful to check a deployment end to end.

Examples:
  # Ten events with the configured creation policy
  ledger demo

  # Insert on start and replace on end, failing every fifth operation
  ledger demo --count 50 --policy insert_on_start_replace_on_end --fail-every 5`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().IntVarP(&demoFlags.count, "count", "n", 10, "number of scopes to run")
	demoCmd.Flags().StringVarP(&demoFlags.eventType, "type", "t", "Order:Update", "event type")
	demoCmd.Flags().StringVar(&demoFlags.policy, "policy", "", "creation policy (audit.creation_policy when empty)")
	demoCmd.Flags().IntVar(&demoFlags.failEvery, "fail-every", 0, "make every Nth operation fail (0 never)")
}

// demoOrder is the target of the sample scopes.
type demoOrder struct {
	ID     int     `json:"id"`
	Status string  `json:"status"`
	Total  float64 `json:"total"`
}

var errDemoFailure = errors.New("simulated failure")

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if demoFlags.count <= 0 {
		return cli.NewConfigError("--count", "must be positive")
	}

	var policy audit.CreationPolicy
	if demoFlags.policy != "" {
		policy, err = audit.ParseCreationPolicy(demoFlags.policy)
		if err != nil {
			return cli.NewConfigError("--policy", err.Error())
		}
	}

	stack, err := openStack(cfg)
	if err != nil {
		return err
	}
	defer stack.Close()

	conf := providerfactory.NewConfiguration(cfg, stack.Provider, providerfactory.Options{})

	out := cmd.OutOrStdout()
	progress := cli.NewProgressReporter(out)
	progress.Start(int64(demoFlags.count))

	var ids []any
	failures := 0
	for i := 1; i <= demoFlags.count; i++ {
		id, err := runDemoScope(cmd.Context(), conf, policy, i)
		switch {
		case errors.Is(err, errDemoFailure):
			failures++
		case err != nil:
			progress.Error(err)
			return cli.NewCommandError("demo", err)
		}
		if id != nil {
			ids = append(ids, id)
		}
		progress.Update(int64(i))
	}
	progress.Finish()

	fmt.Fprintf(out, "✓ Ran %d scopes (%d failed operations) on %s\n", demoFlags.count, failures, audit.ProviderName(stack.Provider))
	if len(ids) > 0 {
		fmt.Fprintf(out, "  Last event id: %v\n", ids[len(ids)-1])
	}
	return nil
}

// runDemoScope audits one order update and returns the event id.
func runDemoScope(ctx context.Context, conf *audit.Configuration, policy audit.CreationPolicy, n int) (any, error) {
	order := &demoOrder{ID: n, Status: "pending", Total: float64(n) * 9.5}

	var scope *audit.Scope
	err := audit.Run(ctx, conf, &audit.ScopeOptions{
		EventType:      demoFlags.eventType,
		CreationPolicy: policy,
		TargetGetter:   func() any { return order },
		CustomFields:   map[string]any{"order_id": n},
	}, func(ctx context.Context, s *audit.Scope) error {
		scope = s
		s.Comment("status %s -> %s", order.Status, "shipped")
		if demoFlags.failEvery > 0 && n%demoFlags.failEvery == 0 {
			return errDemoFailure
		}
		order.Status = "shipped"
		s.SetCustomField("carrier", "demo-post")
		return nil
	})
	if scope == nil {
		return nil, err
	}
	return scope.EventID(), err
}
