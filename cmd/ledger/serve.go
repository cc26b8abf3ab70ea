package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/audit/retention"
	"mercator-hq/ledger/pkg/cli"
	"mercator-hq/ledger/pkg/config"
	"mercator-hq/ledger/pkg/providerfactory"
	"mercator-hq/ledger/pkg/security/auth"
	"mercator-hq/ledger/pkg/security/secrets"
	"mercator-hq/ledger/pkg/server"
	"mercator-hq/ledger/pkg/telemetry/health"
	"mercator-hq/ledger/pkg/telemetry/metrics"
	"mercator-hq/ledger/pkg/telemetry/tracing"
)

var serveFlags struct {
	listenAddress string
	noWatch       bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ledger service",
	Long: `Build the storage stack and serve health, metrics and a read-only events
API until interrupted.

The service also runs the retention scheduler and, when a config file is
given, reloads the storage stack whenever the file changes.

Endpoints:
  GET /events          - list events (type, since, start, end, limit, offset)
  GET /events/{id}     - one event
                         (both require an API key when server.api_keys is set)
  GET /health, /ready  - liveness and readiness (paths configurable)
  GET /metrics         - Prometheus metrics (path configurable)
  GET /version         - build information

Examples:
  # Serve with a config file
  ledger serve --config /etc/ledger/config.yaml

  # Override the listen address
  ledger serve --listen 0.0.0.0:9090`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override server.listen_address")
	serveCmd.Flags().BoolVar(&serveFlags.noWatch, "no-watch", false, "do not reload the config file on change")
}

// service holds the long-lived components of "ledger serve".
type service struct {
	collector *metrics.Collector
	tracer    *tracing.Tracer
	manager   *providerfactory.Manager
	checker   *health.Checker
	keys      *auth.Validator
	secrets   *secrets.Resolver
	logger    *slog.Logger

	mu     sync.Mutex
	cfg    *config.Config
	pruner *retention.Pruner
	cancel context.CancelFunc
}

func newService(cfg *config.Config) (*service, error) {
	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.tracing", err.Error())
	}

	resolver, err := secrets.NewResolver(&cfg.Secrets)
	if err != nil {
		_ = tracer.Shutdown(context.Background())
		return nil, cli.NewConfigError("secrets.dir", err.Error())
	}

	manager, err := providerfactory.NewManager(cfg, providerfactory.Options{Metrics: collector, Tracer: tracer})
	if err != nil {
		_ = tracer.Shutdown(context.Background())
		return nil, fmt.Errorf("open storage: %w", err)
	}

	s := &service{
		collector: collector,
		tracer:    tracer,
		manager:   manager,
		checker:   health.New(cfg.Telemetry.Health.CheckTimeout),
		keys:      auth.NewValidator(cfg.Server.APIKeys),
		secrets:   resolver,
		logger:    slog.Default().With("component", "ledger.serve"),
		cfg:       cfg,
	}
	s.checker.Register("config", health.ConfigCheck())
	s.registerStorageChecks(manager.Stack())

	audit.SetDefault(manager.Configuration())
	return s, nil
}

// registerStorageChecks replaces the per-backend readiness checks.
func (s *service) registerStorageChecks(stack *providerfactory.Stack) {
	for _, name := range s.checker.Names() {
		if strings.HasPrefix(name, "storage.") {
			s.checker.Unregister(name)
		}
	}
	for i, backend := range stack.Backends {
		s.checker.Register("storage."+stack.Names[i], health.ProviderCheck(backend, s.collector.UpdateProviderUp))
	}
}

// startRetention (re)starts the retention scheduler on the current primary
// backend. A backend that cannot prune leaves retention off.
func (s *service) startRetention(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pruner != nil {
		s.cancel()
		s.pruner.Stop()
		s.pruner = nil
	}

	primary := s.manager.Stack().Primary()
	pruner, err := retention.NewPruner(primary, retention.FromConfig(s.cfg.Storage.Retention))
	if err != nil {
		s.logger.Warn("retention disabled", "error", err)
		return
	}
	pruner.OnRun(s.collector.RecordPrune)

	pctx, cancel := context.WithCancel(ctx)
	if err := pruner.Start(pctx); err != nil {
		cancel()
		s.logger.Error("failed to start retention scheduler", "error", err)
		return
	}
	if next := pruner.NextPruning(); next != nil {
		s.logger.Debug("retention scheduler started", "next_pruning", next)
	}
	s.pruner = pruner
	s.cancel = cancel
}

// reload applies a changed configuration. Logging, the listener and the
// secret sources keep their startup settings.
func (s *service) reload(ctx context.Context, cfg *config.Config) {
	if err := s.secrets.ResolveConfig(ctx, cfg); err != nil {
		s.logger.Error("secret resolution failed, keeping current configuration", "error", err)
		return
	}
	if err := s.manager.Reload(cfg); err != nil {
		s.logger.Error("storage reload failed, keeping current stack", "error", err)
		return
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.keys.Replace(cfg.Server.APIKeys)
	s.registerStorageChecks(s.manager.Stack())
	s.startRetention(ctx)
}

func (s *service) close(ctx context.Context) error {
	s.mu.Lock()
	if s.pruner != nil {
		s.cancel()
		s.pruner.Stop()
	}
	s.mu.Unlock()

	return errors.Join(s.manager.Close(), s.tracer.Shutdown(ctx))
}

// handler returns the HTTP handler for the service.
func (s *service) handler() http.Handler {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	mux := http.NewServeMux()
	if cfg.Telemetry.Metrics.Enabled {
		mux.Handle(cfg.Telemetry.Metrics.Path, s.collector.Handler())
	}
	if cfg.Telemetry.Health.Enabled {
		health.Register(mux, s.checker, &cfg.Telemetry.Health, Version, GitCommit, BuildDate)
	}

	events := server.NewEventsHandler(s.primary, s.queryConfig)
	events.Register(mux, auth.NewMiddleware(s.keys, auth.DefaultSources).Handle)

	return server.Chain(s.tracer.HTTPMiddleware(mux))
}

// primary resolves the current primary backend so reloads reach the API.
func (s *service) primary() audit.DataProvider {
	return s.manager.Stack().Primary()
}

func (s *service) queryConfig() config.QueryConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Storage.Query
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	svc, err := newService(cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := svc.close(closeCtx); err != nil {
			svc.logger.Error("shutdown failed", "error", err)
		}
	}()

	svc.startRetention(ctx)

	if cfgFile != "" && !serveFlags.noWatch {
		watcher, err := config.NewWatcher(cfgFile, 0, func(newCfg *config.Config) {
			svc.reload(ctx, newCfg)
		})
		if err != nil {
			svc.logger.Warn("config watching disabled", "error", err)
		} else {
			go func() {
				if err := watcher.Run(ctx); err != nil {
					svc.logger.Error("config watcher stopped", "error", err)
				}
			}()
		}
	}

	go func() {
		err := svc.secrets.Watch(ctx, func() {
			newCfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
			if err != nil {
				svc.logger.Error("configuration reload after secret change failed", "error", err)
				return
			}
			svc.reload(ctx, newCfg)
		})
		if err != nil {
			svc.logger.Warn("secret watching disabled", "error", err)
		}
	}()

	srv := server.NewServer(&cfg.Server, svc.handler())
	if err := srv.Listen(); err != nil {
		return cli.NewCommandError("serve", err)
	}

	out := cmd.OutOrStdout()
	stack := svc.manager.Stack()
	fmt.Fprintf(out, "Ledger v%s\n", Version)
	fmt.Fprintf(out, "✓ Storage: %s (%s)\n", strings.Join(stack.Names, ", "), cfg.Storage.Mode)
	scheme := "http"
	if srv.TLS() {
		scheme = "https"
	}
	fmt.Fprintf(out, "✓ Listening on %s://%s\n", scheme, srv.Addr())
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	svc.logger.Info("ledger service started",
		"address", srv.Addr(),
		"backends", stack.Names,
		"mode", cfg.Storage.Mode,
	)

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}

	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}
