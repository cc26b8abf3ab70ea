package wrappers

import (
	"context"
	"io"

	"mercator-hq/ledger/pkg/audit"
)

// Conditional picks the provider for each event with a setting evaluated
// against that event. Reads resolve the setting with a nil event.
//
//	p := wrappers.NewConditional(audit.Computed(func(ev *audit.Event) audit.DataProvider {
//	    if ev != nil && strings.HasPrefix(ev.EventType, "security:") {
//	        return securityLog
//	    }
//	    return defaultStore
//	}))
type Conditional struct {
	selector audit.Setting[audit.DataProvider]
	closers  []audit.DataProvider
}

// NewConditional creates a conditional provider. closeWith lists the
// providers Close should close, since a computed selector cannot enumerate
// them.
func NewConditional(selector audit.Setting[audit.DataProvider], closeWith ...audit.DataProvider) *Conditional {
	return &Conditional{selector: selector, closers: closeWith}
}

// Name implements audit.Named.
func (c *Conditional) Name() string {
	return "conditional"
}

func (c *Conditional) resolve(ev *audit.Event, operation string) (audit.DataProvider, error) {
	p := c.selector.Resolve(ev)
	if p == nil {
		return nil, audit.NewStorageError(c.Name(), operation, &audit.ConfigurationError{Message: "selector returned no provider"})
	}
	return p, nil
}

// InsertEvent implements audit.DataProvider.
func (c *Conditional) InsertEvent(ctx context.Context, event audit.Auditable) (any, error) {
	p, err := c.resolve(event.AuditEvent(), "insert")
	if err != nil {
		return nil, err
	}
	return p.InsertEvent(ctx, event)
}

// ReplaceEvent implements audit.DataProvider. The event must still select
// the provider that inserted it.
func (c *Conditional) ReplaceEvent(ctx context.Context, eventID any, event audit.Auditable) error {
	p, err := c.resolve(event.AuditEvent(), "replace")
	if err != nil {
		return err
	}
	return p.ReplaceEvent(ctx, eventID, event)
}

// GetEvent implements audit.DataProvider.
func (c *Conditional) GetEvent(ctx context.Context, eventID any, dest audit.Auditable) error {
	p, err := c.resolve(nil, "get")
	if err != nil {
		return err
	}
	return p.GetEvent(ctx, eventID, dest)
}

// CloneValue implements audit.DataProvider.
func (c *Conditional) CloneValue(value any) (any, error) {
	if c.selector.IsComputed() {
		return audit.BaseProvider{}.CloneValue(value)
	}
	if p := c.selector.Resolve(nil); p != nil {
		return p.CloneValue(value)
	}
	return audit.BaseProvider{}.CloneValue(value)
}

// Close closes the providers passed to NewConditional, or the constant
// selection.
func (c *Conditional) Close() error {
	if len(c.closers) > 0 {
		return closeAll(c.closers)
	}
	if !c.selector.IsComputed() {
		if closer, ok := c.selector.Resolve(nil).(io.Closer); ok {
			return closer.Close()
		}
	}
	return nil
}
