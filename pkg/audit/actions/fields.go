// Package actions provides reusable extension actions for audit scopes.
//
//	conf.AddAction(audit.OnScopeCreated, actions.StaticFields(map[string]any{"service": "billing"}))
//	conf.AddAction(audit.OnEventSaving, actions.RedactFields(logging.NewRedactor(nil)))
//	conf.AddAction(audit.OnEventSaving, actions.HashTarget())
package actions

import (
	"context"
	"maps"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/telemetry/logging"
)

// StaticFields returns an action that sets the same custom fields on every
// event. Fields already set on the event are kept.
func StaticFields(fields map[string]any) audit.Action {
	fields = maps.Clone(fields)
	return func(ctx context.Context, s *audit.Scope) error {
		ev := s.Event()
		for name, value := range fields {
			if _, exists := ev.CustomField(name); !exists {
				ev.SetCustomField(name, value)
			}
		}
		return nil
	}
}

// RedactFields returns an action that removes PII from string custom fields
// and comments. With no names, every string field is redacted.
func RedactFields(r *logging.Redactor, names ...string) audit.Action {
	return rewriteStrings(r.RedactString, names)
}

// TruncateFields returns an action that truncates string custom fields and
// comments to maxLen bytes. With no names, every string field is truncated.
func TruncateFields(maxLen int, names ...string) audit.Action {
	return rewriteStrings(func(s string) string {
		return TruncateString(s, maxLen)
	}, names)
}

func rewriteStrings(rewrite func(string) string, names []string) audit.Action {
	return func(ctx context.Context, s *audit.Scope) error {
		ev := s.Event()

		if len(names) == 0 {
			for name, value := range ev.CustomFields {
				if str, ok := value.(string); ok {
					ev.CustomFields[name] = rewrite(str)
				}
			}
		} else {
			for _, name := range names {
				if str, ok := ev.CustomFields[name].(string); ok {
					ev.CustomFields[name] = rewrite(str)
				}
			}
		}

		for i, comment := range ev.Comments {
			ev.Comments[i] = rewrite(comment)
		}
		return nil
	}
}

// TruncateString truncates s to maxLen bytes, ending in "..." when there is
// room for it.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
