package audit

import (
	"fmt"
	"strings"
)

// CreationPolicy decides when a scope persists its event.
type CreationPolicy int

const (
	// PolicyUnset defers to the configuration default.
	PolicyUnset CreationPolicy = iota

	// InsertOnEnd inserts the event once, when the scope ends.
	InsertOnEnd

	// InsertOnStartReplaceOnEnd inserts on creation and replaces the same
	// record when the scope ends.
	InsertOnStartReplaceOnEnd

	// InsertOnStartInsertOnEnd inserts on creation and inserts a second,
	// independent record when the scope ends.
	InsertOnStartInsertOnEnd

	// Manual never persists automatically; the caller must call Save.
	Manual
)

// String returns the snake_case policy name used in configuration files.
func (p CreationPolicy) String() string {
	switch p {
	case PolicyUnset:
		return "unset"
	case InsertOnEnd:
		return "insert_on_end"
	case InsertOnStartReplaceOnEnd:
		return "insert_on_start_replace_on_end"
	case InsertOnStartInsertOnEnd:
		return "insert_on_start_insert_on_end"
	case Manual:
		return "manual"
	default:
		return fmt.Sprintf("CreationPolicy(%d)", int(p))
	}
}

// InsertsOnStart reports whether the policy persists at scope creation.
func (p CreationPolicy) InsertsOnStart() bool {
	return p == InsertOnStartReplaceOnEnd || p == InsertOnStartInsertOnEnd
}

// ParseCreationPolicy parses a policy name. Both snake_case
// ("insert_on_end") and PascalCase ("InsertOnEnd") spellings are accepted.
func ParseCreationPolicy(s string) (CreationPolicy, error) {
	normalized := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(s))

	switch normalized {
	case "":
		return PolicyUnset, nil
	case "insertonend":
		return InsertOnEnd, nil
	case "insertonstartreplaceonend":
		return InsertOnStartReplaceOnEnd, nil
	case "insertonstartinsertonend":
		return InsertOnStartInsertOnEnd, nil
	case "manual":
		return Manual, nil
	default:
		return PolicyUnset, fmt.Errorf("unknown creation policy: %q", s)
	}
}
