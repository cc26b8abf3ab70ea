package main

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/cli"
	"mercator-hq/ledger/pkg/providerfactory"
)

var benchFlags struct {
	count       int
	concurrency int
	policy      string
	format      string
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure scope throughput against the storage stack",
	Long: `Run audit scopes concurrently through the configured storage stack and
report throughput and latency percentiles. Each scope covers its whole
lifecycle, including every insert and replace its creation policy causes.

Examples:
  # 1000 scopes, 8 at a time
  ledger bench --count 1000 --concurrency 8

  # Compare creation policies
  ledger bench --policy insert_on_start_replace_on_end --format json`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)

	benchCmd.Flags().IntVarP(&benchFlags.count, "count", "n", 1000, "number of scopes")
	benchCmd.Flags().IntVar(&benchFlags.concurrency, "concurrency", 4, "scopes in flight")
	benchCmd.Flags().StringVar(&benchFlags.policy, "policy", "", "creation policy (audit.creation_policy when empty)")
	benchCmd.Flags().StringVarP(&benchFlags.format, "format", "f", "text", "output format (text, json)")
}

// benchResults summarizes a bench run.
type benchResults struct {
	Provider   string        `json:"provider"`
	Policy     string        `json:"policy"`
	Scopes     int           `json:"scopes"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration_ns"`
	Throughput float64       `json:"scopes_per_second"`
	Latency    latencyStats  `json:"latency"`
}

type latencyStats struct {
	Min    time.Duration `json:"min_ns"`
	Mean   time.Duration `json:"mean_ns"`
	Median time.Duration `json:"median_ns"`
	P95    time.Duration `json:"p95_ns"`
	P99    time.Duration `json:"p99_ns"`
	Max    time.Duration `json:"max_ns"`
}

func (r *benchResults) String() string {
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

	var b strings.Builder
	fmt.Fprintln(&b, "Results:")
	fmt.Fprintln(&b, "--------")
	fmt.Fprintf(&b, "Provider:        %s (%s)\n", r.Provider, r.Policy)
	fmt.Fprintf(&b, "Scopes:          %d total, %d failed\n", r.Scopes, r.Failed)
	fmt.Fprintf(&b, "Duration:        %.1fs\n", r.Duration.Seconds())
	fmt.Fprintf(&b, "Throughput:      %.2f scopes/s\n", r.Throughput)
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Latency:")
	fmt.Fprintf(&b, "  Min:     %.1fms\n", ms(r.Latency.Min))
	fmt.Fprintf(&b, "  Mean:    %.1fms\n", ms(r.Latency.Mean))
	fmt.Fprintf(&b, "  Median:  %.1fms\n", ms(r.Latency.Median))
	fmt.Fprintf(&b, "  p95:     %.1fms\n", ms(r.Latency.P95))
	fmt.Fprintf(&b, "  p99:     %.1fms\n", ms(r.Latency.P99))
	fmt.Fprintf(&b, "  Max:     %.1fms", ms(r.Latency.Max))
	return b.String()
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if benchFlags.count <= 0 || benchFlags.concurrency <= 0 {
		return cli.NewConfigError("--count", "count and concurrency must be positive")
	}

	policy, err := audit.ParseCreationPolicy(cfg.Audit.CreationPolicy)
	if err != nil {
		return cli.NewConfigError("audit.creation_policy", err.Error())
	}
	if benchFlags.policy != "" {
		if policy, err = audit.ParseCreationPolicy(benchFlags.policy); err != nil {
			return cli.NewConfigError("--policy", err.Error())
		}
	}

	stack, err := openStack(cfg)
	if err != nil {
		return err
	}
	defer stack.Close()

	conf := providerfactory.NewConfiguration(cfg, stack.Provider, providerfactory.Options{})

	var progress cli.ProgressReporter = noProgress{}
	if benchFlags.format == string(cli.FormatText) {
		progress = cli.NewProgressReporter(cmd.ErrOrStderr())
	}

	results := runScopes(cmd.Context(), conf, policy, progress)
	results.Provider = audit.ProviderName(stack.Provider)
	results.Policy = policy.String()

	return cli.NewFormatter(cli.OutputFormat(benchFlags.format)).FormatTo(cmd.OutOrStdout(), results)
}

// runScopes runs benchFlags.count scopes, benchFlags.concurrency at a time.
func runScopes(ctx context.Context, conf *audit.Configuration, policy audit.CreationPolicy, progress cli.ProgressReporter) *benchResults {
	results := &benchResults{Scopes: benchFlags.count}
	latencies := make([]time.Duration, 0, benchFlags.count)

	var (
		mu   sync.Mutex
		done int64
	)

	progress.Start(int64(benchFlags.count))
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(benchFlags.concurrency)
	for i := range benchFlags.count {
		g.Go(func() error {
			scopeStart := time.Now()
			err := audit.Run(gctx, conf, &audit.ScopeOptions{
				EventType:      "Bench:Scope",
				CreationPolicy: policy,
				CustomFields:   map[string]any{"n": i},
			}, func(ctx context.Context, s *audit.Scope) error {
				if policy == audit.Manual {
					return s.Save(ctx)
				}
				return nil
			})
			latency := time.Since(scopeStart)

			mu.Lock()
			latencies = append(latencies, latency)
			if err != nil {
				results.Failed++
			}
			done++
			progress.Update(done)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	progress.Finish()

	results.Duration = time.Since(start)
	if secs := results.Duration.Seconds(); secs > 0 {
		results.Throughput = float64(results.Scopes-results.Failed) / secs
	}
	results.Latency = calculatePercentiles(latencies)
	return results
}

func calculatePercentiles(latencies []time.Duration) latencyStats {
	if len(latencies) == 0 {
		return latencyStats{}
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	var sum time.Duration
	for _, lat := range sorted {
		sum += lat
	}

	n := len(sorted)
	return latencyStats{
		Min:    sorted[0],
		Mean:   sum / time.Duration(n),
		Median: sorted[n/2],
		P95:    sorted[min(n-1, int(float64(n)*0.95))],
		P99:    sorted[min(n-1, int(float64(n)*0.99))],
		Max:    sorted[n-1],
	}
}

// noProgress keeps JSON output free of progress lines.
type noProgress struct{}

func (noProgress) Start(int64)  {}
func (noProgress) Update(int64) {}
func (noProgress) Finish()      {}
func (noProgress) Error(error)  {}
