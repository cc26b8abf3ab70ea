package actions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"mercator-hq/ledger/pkg/audit"
)

const (
	// MaxHashSize is the maximum number of bytes hashed from a serialized
	// target.
	MaxHashSize = 1024 * 1024 // 1MB

	// FieldTargetOldHash and FieldTargetNewHash are the custom fields set by
	// HashTarget.
	FieldTargetOldHash = "targetOldHash"
	FieldTargetNewHash = "targetNewHash"
)

// HashContent computes the hex-encoded SHA-256 of content. Content larger
// than MaxHashSize is hashed up to MaxHashSize bytes.
//
// Returns an empty string if content is empty.
func HashContent(content []byte) string {
	if len(content) == 0 {
		return ""
	}

	contentToHash := content
	if len(content) > MaxHashSize {
		contentToHash = content[:MaxHashSize]
	}

	hash := sha256.Sum256(contentToHash)
	return hex.EncodeToString(hash[:])
}

// HashString hashes a string with HashContent.
func HashString(content string) string {
	return HashContent([]byte(content))
}

// HashTarget returns an action that records the SHA-256 of the target's old
// and new snapshots as custom fields, so a reviewer can tell whether the
// audited object changed without comparing the snapshots. Register it for
// audit.OnEventSaving.
func HashTarget() audit.Action {
	return func(ctx context.Context, s *audit.Scope) error {
		ev := s.Event()
		if ev.Target == nil {
			return nil
		}

		for field, value := range map[string]any{
			FieldTargetOldHash: ev.Target.Old,
			FieldTargetNewHash: ev.Target.New,
		} {
			if value == nil {
				continue
			}
			data, err := json.Marshal(value)
			if err != nil {
				return err
			}
			ev.SetCustomField(field, HashContent(data))
		}
		return nil
	}
}
