package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/fsnotify/fsnotify"

	"mercator-hq/ledger/pkg/config"
)

var refPattern = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Resolver expands secret references from its sources.
type Resolver struct {
	sources []Source
	dir     *DirSource
	cache   *cache
	logger  *slog.Logger
}

// NewResolver builds the sources named by cfg.
func NewResolver(cfg *config.SecretsConfig) (*Resolver, error) {
	r := &Resolver{
		sources: []Source{NewEnvSource(cfg.EnvPrefix)},
		cache:   newCache(cfg.CacheTTL),
		logger:  slog.Default().With("component", "security.secrets"),
	}
	if cfg.Dir != "" {
		dir, err := NewDirSource(cfg.Dir)
		if err != nil {
			return nil, err
		}
		r.dir = dir
		r.sources = append(r.sources, dir)
	}
	return r, nil
}

// Get returns the first value any source holds for name.
func (r *Resolver) Get(ctx context.Context, name string) (string, error) {
	if v, ok := r.cache.get(name); ok {
		return v, nil
	}
	for _, src := range r.sources {
		v, err := src.Lookup(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("secret %q from %s: %w", name, src.Name(), err)
		}
		r.logger.Debug("secret resolved", "source", src.Name(), "name", redact(name))
		r.cache.set(name, v)
		return v, nil
	}
	return "", fmt.Errorf("secret %q: %w", name, ErrNotFound)
}

// Expand replaces every ${secret:name} in s. All failures are reported
// together and the returned string keeps the unresolved references.
func (r *Resolver) Expand(ctx context.Context, s string) (string, error) {
	var errs []error
	out := refPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := refPattern.FindStringSubmatch(ref)[1]
		v, err := r.Get(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return ref
		}
		return v
	})
	return out, errors.Join(errs...)
}

// ResolveConfig expands references in the storage DSNs and API keys of cfg
// in place. Resolved API keys must still meet config.MinAPIKeyLength.
func (r *Resolver) ResolveConfig(ctx context.Context, cfg *config.Config) error {
	var errs []error
	expand := func(field string, dst *string) {
		v, err := r.Expand(ctx, *dst)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		*dst = v
	}

	expand("storage.postgres.dsn", &cfg.Storage.Postgres.DSN)
	expand("storage.clickhouse.dsn", &cfg.Storage.ClickHouse.DSN)
	for i := range cfg.Server.APIKeys {
		key := &cfg.Server.APIKeys[i]
		field := fmt.Sprintf("server.api_keys[%d].key", i)
		wasRef := config.IsSecretRef(key.Key)
		expand(field, &key.Key)
		if wasRef && !config.IsSecretRef(key.Key) && len(key.Key) < config.MinAPIKeyLength {
			errs = append(errs, fmt.Errorf("%s: resolved key must be at least %d characters", field, config.MinAPIKeyLength))
		}
	}
	return errors.Join(errs...)
}

// Invalidate drops cached values.
func (r *Resolver) Invalidate() {
	r.cache.clear()
}

// Watch clears the cache whenever the secrets directory changes, until ctx
// is done. onChange runs once a burst of changes settles. Watch returns at
// once when no directory is configured.
func (r *Resolver) Watch(ctx context.Context, onChange func()) error {
	if r.dir == nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.dir.Dir()); err != nil {
		return fmt.Errorf("watch %s: %w", r.dir.Dir(), err)
	}

	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			r.logger.Debug("secrets directory changed", "op", event.Op.String())
			r.Invalidate()
			if onChange != nil {
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(config.DefaultDebounceInterval, onChange)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("secrets watcher error", "error", err)
		}
	}
}

// redact shortens a secret name for logs.
func redact(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
