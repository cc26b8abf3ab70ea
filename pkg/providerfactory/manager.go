package providerfactory

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/config"
)

// Manager owns the live provider stack and the audit configuration built
// around it, and swaps both when the configuration is reloaded.
//
// Manager is safe for concurrent use.
type Manager struct {
	opts   Options
	conf   *audit.Configuration
	logger *slog.Logger

	mu    sync.RWMutex
	stack *Stack

	// closeDelay lets scopes opened on a replaced stack finish saving
	// before it is closed.
	closeDelay time.Duration
}

// NewManager builds the stack and configuration for cfg.
func NewManager(cfg *config.Config, opts Options) (*Manager, error) {
	stack, err := NewStack(cfg, opts)
	if err != nil {
		return nil, err
	}

	return &Manager{
		opts:       opts,
		conf:       NewConfiguration(cfg, stack.Provider, opts),
		logger:     slog.Default().With("component", "providerfactory.manager"),
		stack:      stack,
		closeDelay: cfg.Server.ShutdownTimeout,
	}, nil
}

// Configuration returns the audit configuration. The pointer is stable
// across reloads.
func (m *Manager) Configuration() *audit.Configuration {
	return m.conf
}

// Stack returns the current stack.
func (m *Manager) Stack() *Stack {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stack
}

// Reload builds a new stack for cfg and publishes it. Scopes already open
// keep the provider they resolved at creation; the old stack is closed
// after the shutdown timeout. On error the current stack stays in place.
func (m *Manager) Reload(cfg *config.Config) error {
	stack, err := NewStack(cfg, m.opts)
	if err != nil {
		return fmt.Errorf("reload storage stack: %w", err)
	}

	m.mu.Lock()
	old := m.stack
	m.stack = stack
	m.closeDelay = cfg.Server.ShutdownTimeout
	delay := m.closeDelay
	m.conf.Update(Settings(cfg, stack.Provider, m.opts)...)
	m.mu.Unlock()

	m.logger.Info("storage stack reloaded", "backends", stack.Names, "mode", cfg.Storage.Mode)

	time.AfterFunc(delay, func() {
		if err := old.Close(); err != nil {
			m.logger.Error("closing replaced storage stack failed", "error", err)
		}
	})
	return nil
}

// Close closes the current stack.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.stack.Close(); err != nil {
		return err
	}
	m.logger.Info("storage stack closed")
	return nil
}
