package audit

import (
	"context"
	"fmt"
)

// ActionType identifies a lifecycle point at which extension actions run.
type ActionType int

const (
	// OnScopeCreated runs once, after the event is built and before any
	// start-time persistence.
	OnScopeCreated ActionType = iota

	// OnEventSaving runs before every end-time (or explicit) persistence.
	OnEventSaving

	// OnEventSaved runs after a persistence call succeeded.
	OnEventSaved
)

// String returns the action type name.
func (t ActionType) String() string {
	switch t {
	case OnScopeCreated:
		return "on_scope_created"
	case OnEventSaving:
		return "on_event_saving"
	case OnEventSaved:
		return "on_event_saved"
	default:
		return fmt.Sprintf("ActionType(%d)", int(t))
	}
}

// Action is an extension callback. It receives the live scope and may mutate
// its event. Returning an error aborts the remaining actions and the pending
// storage call.
type Action func(ctx context.Context, scope *Scope) error

// runActions runs actions in order on the calling goroutine and stops at the
// first failure.
func runActions(ctx context.Context, actionType ActionType, actions []Action, scope *Scope) error {
	for i, action := range actions {
		if err := action(ctx, scope); err != nil {
			return &ExtensionActionError{
				Action: actionType,
				Index:  i,
				Cause:  err,
			}
		}
	}
	return nil
}
