package audit

import (
	"time"
)

// Auditable is implemented by every event the engine can persist. Callers
// extend the base event with typed fields by embedding Event in their own
// struct; the embedded AuditEvent method then satisfies this interface.
// encoding/json flattens the embedded fields next to the extra ones; yaml.v3
// only does so when the embedded field is tagged inline.
//
//	type OrderEvent struct {
//	    audit.Event `yaml:",inline"`
//	    OrderID     string `json:"orderId" yaml:"orderId"`
//	}
type Auditable interface {
	AuditEvent() *Event
}

// Event describes a single audited operation.
type Event struct {
	// EventType names the operation ("Order:Update", "Login").
	EventType string `json:"eventType" yaml:"eventType"`

	// Environment describes where the operation ran.
	Environment *Environment `json:"environment,omitempty" yaml:"environment,omitempty"`

	// StartDate is set when the scope is created and never changes.
	StartDate time.Time `json:"startDate" yaml:"startDate"`

	// EndDate and Duration are set once, at the terminal transition.
	EndDate  *time.Time    `json:"endDate,omitempty" yaml:"endDate,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Target holds before/after snapshots of the audited object.
	Target *Target `json:"target,omitempty" yaml:"target,omitempty"`

	// Comments are free-form notes added while the scope is open.
	Comments []string `json:"comments,omitempty" yaml:"comments,omitempty"`

	// CustomFields holds caller-defined values. Keys are unique; the last
	// write wins.
	CustomFields map[string]any `json:"customFields,omitempty" yaml:"customFields,omitempty"`
}

// Environment captures the runtime context of an audited operation.
type Environment struct {
	UserName          string `json:"userName,omitempty" yaml:"userName,omitempty"`
	MachineName       string `json:"machineName,omitempty" yaml:"machineName,omitempty"`
	DomainName        string `json:"domainName,omitempty" yaml:"domainName,omitempty"`
	CallingMethodName string `json:"callingMethodName,omitempty" yaml:"callingMethodName,omitempty"`
	ModuleName        string `json:"moduleName,omitempty" yaml:"moduleName,omitempty"`
	Exception         string `json:"exception,omitempty" yaml:"exception,omitempty"`
	Culture           string `json:"culture,omitempty" yaml:"culture,omitempty"`
}

// Target holds the state of the audited object before and after the
// operation. Either side may be nil.
type Target struct {
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
	Old  any    `json:"old,omitempty" yaml:"old,omitempty"`
	New  any    `json:"new,omitempty" yaml:"new,omitempty"`
}

// AuditEvent implements Auditable.
func (e *Event) AuditEvent() *Event {
	return e
}

// SetCustomField sets a custom field, replacing any previous value.
func (e *Event) SetCustomField(name string, value any) {
	if e.CustomFields == nil {
		e.CustomFields = make(map[string]any)
	}
	e.CustomFields[name] = value
}

// CustomField returns a custom field value.
func (e *Event) CustomField(name string) (any, bool) {
	v, ok := e.CustomFields[name]
	return v, ok
}

// Ended reports whether the terminal transition has stamped the event.
func (e *Event) Ended() bool {
	return e.EndDate != nil
}
