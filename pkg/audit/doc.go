// Package audit provides the audit-scope lifecycle engine. A scope captures a
// description of an in-progress operation (an audit event), persists it
// through a pluggable data provider at the points chosen by a creation policy,
// and optionally replaces the stored record when the operation completes.
//
// # Architecture
//
// The engine consists of four parts:
//
//  1. Event model - Event, Environment and Target, extended by embedding
//  2. Storage contract - DataProvider, implemented by every backend
//  3. Scope - the per-operation state machine driven by a CreationPolicy
//  4. Configuration - provider, policy, serializer and extension actions
//
// # Creation Policies
//
//	InsertOnEnd                 start: -          end: Insert
//	InsertOnStartReplaceOnEnd   start: Insert     end: Replace(id)
//	InsertOnStartInsertOnEnd    start: Insert     end: Insert
//	Manual                      start: -          end: -
//
// Manual scopes persist only on Save, which keeps the scope open: the first
// Save inserts and later ones replace.
//
// When a start-time Insert fails under InsertOnStartReplaceOnEnd, no id is
// recorded and the end-time transition inserts instead of replacing. Run
// discards such a scope without calling its function.
//
// # Basic Usage
//
//	conf := audit.NewConfiguration(
//	    audit.WithDataProvider(memory.New(nil)),
//	    audit.WithCreationPolicy(audit.InsertOnStartReplaceOnEnd),
//	)
//
//	err := audit.Run(ctx, conf, &audit.ScopeOptions{
//	    EventType:    "order:update",
//	    TargetGetter: func() any { return order },
//	}, func(ctx context.Context, s *audit.Scope) error {
//	    s.SetCustomField("reason", "price change")
//	    order.Total = 42
//	    return nil
//	})
//
// # Extension Actions
//
// Actions run synchronously on the calling goroutine, in registration order.
// OnScopeCreated runs before any start-time persistence, OnEventSaving before
// every end-time persistence, and OnEventSaved after it succeeds. The first
// failing action aborts the rest and the pending storage call.
//
//	conf.AddAction(audit.OnEventSaving, func(ctx context.Context, s *audit.Scope) error {
//	    s.SetCustomField("host", hostname)
//	    return nil
//	})
//
// # Configuration
//
// A Configuration publishes immutable Settings snapshots. Readers never lock;
// writers copy the current snapshot under a mutex. A scope resolves everything
// from the snapshot it saw at creation, so swapping the default provider
// never redirects a scope that is already open.
//
// Default returns the process-wide configuration used when NewScope is given
// nil. ResetDefault restores it for test isolation.
//
// # Thread Safety
//
// Configuration and DataProvider implementations are safe for concurrent use.
// A Scope is owned by one goroutine at a time.
package audit
