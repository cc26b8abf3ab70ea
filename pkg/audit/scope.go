package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"mercator-hq/ledger/pkg/audit/serialization"
)

// State is the lifecycle state of a scope.
type State int

const (
	// StateCreated is the initial state.
	StateCreated State = iota

	// StateInserted means an insert succeeded and an id is held while the
	// scope is still open.
	StateInserted

	// StateEnded is terminal: the end-time transition ran.
	StateEnded

	// StateDiscarded is terminal: the scope was abandoned.
	StateDiscarded
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInserted:
		return "inserted"
	case StateEnded:
		return "ended"
	case StateDiscarded:
		return "discarded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ScopeOptions configures a new scope. Zero values defer to the
// configuration snapshot.
type ScopeOptions struct {
	// EventType names the audited operation.
	EventType string

	// CreationPolicy overrides the configuration default.
	CreationPolicy CreationPolicy

	// DataProvider overrides the configuration default.
	DataProvider DataProvider

	// Event supplies a custom event, typically a struct embedding Event.
	// EventType, StartDate, Environment and CustomFields are applied on top.
	Event Auditable

	// TargetGetter returns the audited object. It is snapshotted into
	// Target.Old at creation and Target.New at the end.
	TargetGetter func() any

	// CustomFields seeds the event's custom fields.
	CustomFields map[string]any
}

// Scope tracks one in-flight audited operation. A scope is owned by the
// goroutine that created it and must not be used concurrently.
type Scope struct {
	event        Auditable
	settings     *Settings
	provider     DataProvider
	providerName string
	policy       CreationPolicy
	targetGetter func() any
	eventID      any
	state        State
	started      time.Time
	logger       *slog.Logger
}

// NewScope opens a scope. A nil conf selects Default().
//
// Provider, policy, actions and serializer are resolved once from the
// configuration snapshot. OnScopeCreated actions run before any start-time
// insert. If that start transition fails, NewScope returns both the scope and
// the error: no event id is recorded, and the caller may still Close the
// scope, which then inserts instead of replacing.
func NewScope(ctx context.Context, conf *Configuration, opts *ScopeOptions) (*Scope, error) {
	if conf == nil {
		conf = Default()
	}
	if opts == nil {
		opts = &ScopeOptions{}
	}

	settings := conf.Snapshot()

	provider := opts.DataProvider
	if provider == nil {
		provider = settings.DataProvider
	}
	if provider == nil && !settings.Disabled {
		return nil, &ConfigurationError{Message: "no data provider configured"}
	}

	policy := opts.CreationPolicy
	if policy == PolicyUnset {
		policy = settings.CreationPolicy
	}
	if policy == PolicyUnset {
		policy = InsertOnEnd
	}

	event := opts.Event
	if event == nil {
		event = &Event{}
	}
	ev := event.AuditEvent()
	if opts.EventType != "" {
		ev.EventType = opts.EventType
	}

	started := time.Now()
	ev.StartDate = started.UTC()
	if ev.Environment == nil {
		ev.Environment = captureEnvironment(settings.IncludeCaller)
	}
	for name, value := range opts.CustomFields {
		ev.SetCustomField(name, value)
	}

	logger := settings.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scope{
		event:        event,
		settings:     settings,
		provider:     provider,
		providerName: ProviderName(provider),
		policy:       policy,
		state:        StateCreated,
		started:      started,
		logger:       logger.With("event_type", ev.EventType, "policy", policy.String()),
	}

	if settings.Disabled {
		return s, nil
	}

	if opts.TargetGetter != nil {
		if err := s.SetTargetGetter(opts.TargetGetter); err != nil {
			return nil, err
		}
	}

	if err := runActions(ctx, OnScopeCreated, settings.Actions(OnScopeCreated), s); err != nil {
		s.logger.Error("scope created action failed", "error", err)
		return s, err
	}

	// An OnScopeCreated action may discard the scope.
	if s.state == StateDiscarded {
		return s, nil
	}

	if policy.InsertsOnStart() {
		if err := s.insert(ctx); err != nil {
			s.logger.Error("start-time insert failed", "provider", s.providerName, "error", err)
			return s, err
		}
		s.state = StateInserted
	}

	s.logger.Debug("audit scope created", "provider", s.providerName, "event_id", s.eventID)

	return s, nil
}

// Create opens a scope on the default configuration.
func Create(ctx context.Context, eventType string, target func() any, customFields map[string]any) (*Scope, error) {
	return NewScope(ctx, nil, &ScopeOptions{
		EventType:    eventType,
		TargetGetter: target,
		CustomFields: customFields,
	})
}

// CreateAndSave opens a scope on the default configuration and immediately
// saves it. Useful for point-in-time events with no duration.
func CreateAndSave(ctx context.Context, eventType string, customFields map[string]any) error {
	s, err := NewScope(ctx, nil, &ScopeOptions{
		EventType:      eventType,
		CreationPolicy: InsertOnEnd,
		CustomFields:   customFields,
	})
	if s == nil {
		return err
	}
	if err != nil {
		s.Discard()
		return err
	}
	return s.Save(ctx)
}

// Run opens a scope, calls fn, and closes the scope on every exit path,
// including panics. An error returned by fn is recorded in
// Environment.Exception before the scope closes, and is returned joined with
// any close error.
//
// If the scope fails to start, fn is not called and the scope is discarded,
// so no record is written for an operation that never ran.
func Run(ctx context.Context, conf *Configuration, opts *ScopeOptions, fn func(ctx context.Context, s *Scope) error) (err error) {
	s, err := NewScope(ctx, conf, opts)
	if s == nil {
		return err
	}
	if err != nil {
		s.Discard()
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			s.setException(fmt.Sprint(r))
			if closeErr := s.Close(ctx); closeErr != nil {
				s.logger.Error("close after panic failed", "error", closeErr)
			}
			panic(r)
		}
	}()

	fnErr := fn(ctx, s)
	if fnErr != nil {
		s.setException(fnErr.Error())
	}
	return errors.Join(fnErr, s.Close(ctx))
}

// Event returns the base event. Callers may mutate it while the scope is
// open.
func (s *Scope) Event() *Event {
	return s.event.AuditEvent()
}

// Auditable returns the event as supplied, including any embedding type.
func (s *Scope) Auditable() Auditable {
	return s.event
}

// EventID returns the identifier returned by the last successful insert, or
// nil.
func (s *Scope) EventID() any {
	return s.eventID
}

// State returns the current lifecycle state.
func (s *Scope) State() State {
	return s.state
}

// CreationPolicy returns the policy resolved at creation.
func (s *Scope) CreationPolicy() CreationPolicy {
	return s.policy
}

// DataProvider returns the provider resolved at creation.
func (s *Scope) DataProvider() DataProvider {
	return s.provider
}

// SetCustomField sets a custom field on the event.
func (s *Scope) SetCustomField(name string, value any) {
	s.Event().SetCustomField(name, value)
}

// Comment appends a formatted comment to the event.
func (s *Scope) Comment(format string, args ...any) {
	ev := s.Event()
	ev.Comments = append(ev.Comments, fmt.Sprintf(format, args...))
}

// SetTargetGetter sets the audited object and snapshots its current state
// into Target.Old.
func (s *Scope) SetTargetGetter(getter func() any) error {
	s.targetGetter = getter
	if getter == nil || s.provider == nil {
		return nil
	}

	value := getter()
	old, err := s.clone(value)
	if err != nil {
		return wrapStorage(s.providerName, "clone", nil, err)
	}

	s.Event().Target = &Target{
		Type: typeName(value),
		Old:  old,
	}
	return nil
}

// Discard abandons the scope. Nothing further is persisted.
func (s *Scope) Discard() {
	s.state = StateDiscarded
	s.logger.Debug("audit scope discarded")
}

// Save persists the event. On automatic policies it is the terminal
// transition. On Manual scopes it is the only way to persist and leaves the
// scope open: the first Save inserts, later ones replace the held id, and
// Close or Discard ends the scope.
// Returns ErrScopeEnded if the scope already ended or was discarded.
func (s *Scope) Save(ctx context.Context) error {
	if s.state == StateEnded || s.state == StateDiscarded {
		return ErrScopeEnded
	}
	if s.policy == Manual {
		return s.saveManual(ctx)
	}
	return s.terminate(ctx)
}

// saveManual stamps the end on first use and refreshes the target snapshot
// on every call. A failed save leaves the scope open for another attempt.
func (s *Scope) saveManual(ctx context.Context) error {
	if s.settings.Disabled {
		return nil
	}
	if err := s.end(); err != nil {
		return err
	}
	if err := s.save(ctx, false); err != nil {
		return err
	}
	if s.eventID != nil && s.state == StateCreated {
		s.state = StateInserted
	}
	return nil
}

// SaveAsync runs Save on a new goroutine. The returned channel receives
// exactly one error (nil on success) and is then closed. The caller must not
// touch the scope until the result arrives.
func (s *Scope) SaveAsync(ctx context.Context) <-chan error {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		ch <- s.Save(ctx)
	}()
	return ch
}

// Close disposes the scope. For automatic policies it performs the terminal
// transition; for Manual scopes it only ends the scope. Closing an ended or
// discarded scope is a no-op, so Close is safe to defer after Save.
func (s *Scope) Close(ctx context.Context) error {
	if s.state == StateEnded || s.state == StateDiscarded {
		return nil
	}
	return s.terminate(ctx)
}

// terminate stamps the end of the event and persists it. The scope is
// marked ended before persisting: a failed save is reported, never retried
// by a later Close. Manual scopes are only ended here.
func (s *Scope) terminate(ctx context.Context) error {
	if s.settings.Disabled {
		s.state = StateEnded
		return nil
	}

	err := s.end()
	s.state = StateEnded
	if err != nil {
		return err
	}

	switch s.policy {
	case InsertOnEnd, InsertOnStartReplaceOnEnd:
		return s.save(ctx, false)
	case InsertOnStartInsertOnEnd:
		return s.save(ctx, true)
	case Manual:
		return nil
	default:
		return &ConfigurationError{Message: fmt.Sprintf("unknown creation policy %s", s.policy)}
	}
}

// end takes the final target snapshot and sets EndDate and Duration. The
// dates are set once; Manual scopes refresh the snapshot on every Save.
func (s *Scope) end() error {
	ev := s.Event()
	if ev.EndDate != nil && s.policy != Manual {
		return nil
	}

	if s.targetGetter != nil {
		value := s.targetGetter()
		newValue, err := s.clone(value)
		if err != nil {
			return wrapStorage(s.providerName, "clone", s.eventID, err)
		}
		if ev.Target == nil {
			ev.Target = &Target{Type: typeName(value)}
		}
		ev.Target.New = newValue
	}

	if ev.EndDate == nil {
		ended := s.started.Add(time.Since(s.started)).UTC()
		ev.EndDate = &ended
		ev.Duration = ended.Sub(ev.StartDate)
	}
	return nil
}

// clone snapshots a target value through the provider's own serializer, or
// through the configured one when the provider carries none.
func (s *Scope) clone(value any) (any, error) {
	if s.settings.Serializer != nil && !ownsFormat(s.provider) {
		return serialization.Clone(s.settings.Serializer, value)
	}
	return s.provider.CloneValue(value)
}

// save runs OnEventSaving, persists, then runs OnEventSaved. With an id held
// and forceInsert unset it replaces; otherwise it inserts and records the
// new id.
func (s *Scope) save(ctx context.Context, forceInsert bool) error {
	if err := runActions(ctx, OnEventSaving, s.settings.Actions(OnEventSaving), s); err != nil {
		s.logger.Error("event saving action failed", "error", err)
		return err
	}

	// An OnEventSaving action may discard the scope.
	if s.state == StateDiscarded {
		return nil
	}

	if s.eventID != nil && !forceInsert {
		if err := s.replace(ctx); err != nil {
			s.logger.Error("end-time replace failed", "provider", s.providerName, "event_id", s.eventID, "error", err)
			return err
		}
	} else {
		if s.policy == InsertOnStartReplaceOnEnd {
			s.logger.Warn("no event id from start-time insert, inserting instead of replacing", "provider", s.providerName)
		}
		if err := s.insert(ctx); err != nil {
			s.logger.Error("end-time insert failed", "provider", s.providerName, "error", err)
			return err
		}
	}

	s.logger.Debug("audit event saved", "provider", s.providerName, "event_id", s.eventID)

	return runActions(ctx, OnEventSaved, s.settings.Actions(OnEventSaved), s)
}

// insert records the id only after the provider call succeeded.
func (s *Scope) insert(ctx context.Context) error {
	id, err := s.provider.InsertEvent(ctx, s.event)
	if err != nil {
		return wrapStorage(s.providerName, "insert", nil, err)
	}
	s.eventID = id
	return nil
}

func (s *Scope) replace(ctx context.Context) error {
	err := s.provider.ReplaceEvent(ctx, s.eventID, s.event)
	return wrapStorage(s.providerName, "replace", s.eventID, err)
}

func (s *Scope) setException(msg string) {
	ev := s.Event()
	if ev.Environment == nil {
		ev.Environment = &Environment{}
	}
	ev.Environment.Exception = msg
}

func typeName(v any) string {
	if v == nil {
		return ""
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
