package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/ledger/pkg/audit/providers/file"
	"mercator-hq/ledger/pkg/cli"
	"mercator-hq/ledger/pkg/config"
	ledgertls "mercator-hq/ledger/pkg/security/tls"
)

var validateFlags struct {
	chain  bool
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Load the configuration with environment overrides, validate it and print
a summary of the resulting storage stack.

With --chain the hash chain of the file backend's log is verified as well.

Examples:
  # Validate a configuration file
  ledger validate --config config.yaml

  # Also verify the hash-chained log
  ledger validate --config config.yaml --chain

  # Machine-readable summary
  ledger validate --format json`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateFlags.chain, "chain", false, "verify the file backend hash chain")
	validateCmd.Flags().StringVarP(&validateFlags.format, "format", "f", "text", "output format (text, json)")
}

// configSummary describes a validated configuration.
type configSummary struct {
	Source         string                     `json:"source"`
	AuditEnabled   bool                       `json:"audit_enabled"`
	CreationPolicy string                     `json:"creation_policy"`
	Serializer     string                     `json:"serializer"`
	Backends       []string                   `json:"backends"`
	Mode           string                     `json:"mode"`
	RetentionDays  int                        `json:"retention_days"`
	PruneSchedule  string                     `json:"prune_schedule,omitempty"`
	ListenAddress  string                     `json:"listen_address"`
	APIKeys        int                        `json:"api_keys"`
	TLS            *ledgertls.CertificateInfo `json:"tls,omitempty"`
	Chain          *file.VerifyResult         `json:"chain,omitempty"`
}

func (s configSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Configuration valid (%s)\n", s.Source)
	fmt.Fprintf(&b, "  Audit enabled:   %t\n", s.AuditEnabled)
	fmt.Fprintf(&b, "  Creation policy: %s\n", s.CreationPolicy)
	fmt.Fprintf(&b, "  Serializer:      %s\n", s.Serializer)
	fmt.Fprintf(&b, "  Backends:        %s (%s)\n", strings.Join(s.Backends, ", "), s.Mode)
	if s.RetentionDays > 0 {
		fmt.Fprintf(&b, "  Retention:       %d days, schedule %q\n", s.RetentionDays, s.PruneSchedule)
	} else {
		fmt.Fprintf(&b, "  Retention:       keep forever\n")
	}
	fmt.Fprintf(&b, "  Listen address:  %s", s.ListenAddress)
	if s.APIKeys > 0 {
		fmt.Fprintf(&b, "\n  API keys:        %d", s.APIKeys)
	}
	if s.TLS != nil {
		now := time.Now()
		fmt.Fprintf(&b, "\n  TLS certificate: %s, expires %s", s.TLS.Subject, s.TLS.NotAfter.Format("2006-01-02"))
		if s.TLS.ExpiringSoon(now) {
			fmt.Fprintf(&b, "\n⚠ Certificate expires in %d days", int(s.TLS.ExpiresIn(now).Hours()/24))
		}
	}
	if s.Chain != nil {
		if s.Chain.Valid {
			fmt.Fprintf(&b, "\n✓ Hash chain intact (%d lines)", s.Chain.Lines)
		} else {
			fmt.Fprintf(&b, "\n✗ Hash chain broken at line %d: %s", s.Chain.ErrorLine, s.Chain.Error)
		}
	}
	return b.String()
}

// errChainBroken is returned when --chain finds a broken hash chain.
var errChainBroken = errors.New("hash chain verification failed")

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	summary := summarize(cfg)

	if cfg.Server.TLS.Enabled {
		info, err := ledgertls.Inspect(cfg.Server.TLS.CertFile)
		if err != nil {
			return cli.NewConfigError("server.tls.cert_file", err.Error())
		}
		summary.TLS = info
	}

	if validateFlags.chain {
		result, err := verifyChain(cfg)
		if err != nil {
			return cli.NewCommandError("validate", err)
		}
		summary.Chain = result
	}

	formatter := cli.NewFormatter(cli.OutputFormat(validateFlags.format))
	if err := formatter.FormatTo(cmd.OutOrStdout(), summary); err != nil {
		return err
	}

	if summary.Chain != nil && !summary.Chain.Valid {
		return cli.NewCommandError("validate", errChainBroken)
	}
	return nil
}

func summarize(cfg *config.Config) configSummary {
	return configSummary{
		Source:         configName(),
		AuditEnabled:   cfg.Audit.Enabled,
		CreationPolicy: cfg.Audit.CreationPolicy,
		Serializer:     cfg.Audit.Serializer,
		Backends:       append([]string{cfg.Storage.Backend}, cfg.Storage.Fallback...),
		Mode:           cfg.Storage.Mode,
		RetentionDays:  cfg.Storage.Retention.Days,
		PruneSchedule:  cfg.Storage.Retention.PruneSchedule,
		ListenAddress:  cfg.Server.ListenAddress,
		APIKeys:        len(cfg.Server.APIKeys),
	}
}

// verifyChain checks the file backend's log. A log that has not been
// written yet is reported as an intact, empty chain.
func verifyChain(cfg *config.Config) (*file.VerifyResult, error) {
	backends := append([]string{cfg.Storage.Backend}, cfg.Storage.Fallback...)
	if !slices.Contains(backends, "file") {
		return nil, fmt.Errorf("--chain requires the file backend, configured backends are %v", backends)
	}

	path := cfg.Storage.File.Path
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return &file.VerifyResult{Valid: true}, nil
	}

	result := file.Verify(path)
	return &result, nil
}
