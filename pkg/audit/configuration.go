package audit

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"mercator-hq/ledger/pkg/audit/serialization"
)

// Settings is an immutable snapshot of a Configuration. Scopes resolve
// everything they need from one snapshot at creation, so later changes to
// the configuration never affect scopes that are already open.
type Settings struct {
	// DataProvider is the default provider for new scopes.
	DataProvider DataProvider

	// CreationPolicy is the default policy for new scopes.
	CreationPolicy CreationPolicy

	// Serializer clones target snapshots for providers that do not carry
	// their own format.
	Serializer serialization.Serializer

	// Disabled turns every scope into a no-op: no actions, no persistence.
	Disabled bool

	// IncludeCaller records the calling function in Environment.
	IncludeCaller bool

	// Logger receives scope lifecycle logs.
	Logger *slog.Logger

	actions map[ActionType][]Action
}

// Actions returns the actions registered for a lifecycle point, in
// registration order.
func (s *Settings) Actions(actionType ActionType) []Action {
	return s.actions[actionType]
}

// clone returns a shallow copy with its own action map. Action slices are
// never appended to in place, so sharing their backing arrays is safe.
func (s *Settings) clone() *Settings {
	c := *s
	c.actions = make(map[ActionType][]Action, len(s.actions))
	for k, v := range s.actions {
		c.actions[k] = v
	}
	return &c
}

// Option configures a new Configuration.
type Option func(*Settings)

// WithDataProvider sets the default data provider.
func WithDataProvider(p DataProvider) Option {
	return func(s *Settings) { s.DataProvider = p }
}

// WithCreationPolicy sets the default creation policy.
func WithCreationPolicy(p CreationPolicy) Option {
	return func(s *Settings) { s.CreationPolicy = p }
}

// WithSerializer sets the serialization adapter.
func WithSerializer(ser serialization.Serializer) Option {
	return func(s *Settings) { s.Serializer = ser }
}

// WithAction registers an action for a lifecycle point.
func WithAction(actionType ActionType, action Action) Option {
	return func(s *Settings) {
		s.actions[actionType] = append(slices.Clip(s.actions[actionType]), action)
	}
}

// WithoutActions drops the actions registered so far. Options after it
// register from scratch.
func WithoutActions() Option {
	return func(s *Settings) {
		s.actions = make(map[ActionType][]Action)
	}
}

// WithDisabled disables auditing.
func WithDisabled(disabled bool) Option {
	return func(s *Settings) { s.Disabled = disabled }
}

// WithIncludeCaller enables calling-function capture.
func WithIncludeCaller(include bool) Option {
	return func(s *Settings) { s.IncludeCaller = include }
}

// WithLogger sets the lifecycle logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Settings) { s.Logger = logger }
}

// Configuration holds the audit defaults and extension actions. Reads are
// lock-free: Snapshot loads an atomic pointer. Writes are expected at startup
// and take an exclusive lock, copy the current snapshot, and publish the new
// one.
type Configuration struct {
	mu      sync.Mutex
	current atomic.Pointer[Settings]
}

// NewConfiguration creates a configuration with InsertOnEnd, JSON
// serialization and caller capture enabled, then applies opts.
func NewConfiguration(opts ...Option) *Configuration {
	s := defaultSettings()
	for _, opt := range opts {
		opt(s)
	}

	c := &Configuration{}
	c.current.Store(s)
	return c
}

func defaultSettings() *Settings {
	return &Settings{
		CreationPolicy: InsertOnEnd,
		Serializer:     serialization.JSON{},
		IncludeCaller:  true,
		Logger:         slog.Default().With("component", "audit.scope"),
		actions:        make(map[ActionType][]Action),
	}
}

// Snapshot returns the current immutable settings.
func (c *Configuration) Snapshot() *Settings {
	return c.current.Load()
}

// Update applies opts atomically.
func (c *Configuration) Update(opts ...Option) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.current.Load().clone()
	for _, opt := range opts {
		opt(next)
	}
	c.current.Store(next)
}

// SetDataProvider swaps the default data provider.
func (c *Configuration) SetDataProvider(p DataProvider) {
	c.Update(WithDataProvider(p))
}

// SetCreationPolicy changes the default creation policy.
func (c *Configuration) SetCreationPolicy(p CreationPolicy) {
	c.Update(WithCreationPolicy(p))
}

// SetSerializer changes the serialization adapter.
func (c *Configuration) SetSerializer(s serialization.Serializer) {
	c.Update(WithSerializer(s))
}

// SetDisabled enables or disables auditing.
func (c *Configuration) SetDisabled(disabled bool) {
	c.Update(WithDisabled(disabled))
}

// AddAction appends an action for a lifecycle point.
func (c *Configuration) AddAction(actionType ActionType, action Action) {
	c.Update(WithAction(actionType, action))
}

// ResetActions removes every registered action.
func (c *Configuration) ResetActions() {
	c.Update(WithoutActions())
}

// Reset restores the defaults, dropping the provider and all actions.
func (c *Configuration) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.Store(defaultSettings())
}

var (
	// globalConfiguration is the process-wide default configuration.
	globalConfiguration = NewConfiguration()

	// configurationMutex protects access to globalConfiguration.
	configurationMutex sync.RWMutex
)

// Default returns the process-wide configuration used when a nil
// configuration is passed to NewScope.
func Default() *Configuration {
	configurationMutex.RLock()
	defer configurationMutex.RUnlock()
	return globalConfiguration
}

// SetDefault replaces the process-wide configuration. Intended for startup.
func SetDefault(c *Configuration) {
	configurationMutex.Lock()
	defer configurationMutex.Unlock()
	globalConfiguration = c
}

// ResetDefault installs a fresh default configuration. Intended for test
// isolation.
func ResetDefault() {
	SetDefault(NewConfiguration())
}
