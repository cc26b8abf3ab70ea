package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"slices"
	"sync"

	"mercator-hq/ledger/pkg/config"
)

type entry struct {
	digest [sha256.Size]byte
	key    *Key
}

// Validator validates API keys against the configured set. It is safe for
// concurrent use and can be replaced on configuration reload.
type Validator struct {
	mu      sync.RWMutex
	entries []entry
}

// NewValidator creates a validator for keys.
func NewValidator(keys []config.APIKeyConfig) *Validator {
	v := &Validator{}
	v.Replace(keys)
	return v
}

// Replace swaps the accepted keys.
func (v *Validator) Replace(keys []config.APIKeyConfig) {
	entries := make([]entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, entry{
			digest: sha256.Sum256([]byte(k.Key)),
			key:    &Key{Name: k.Name, Enabled: !k.Disabled},
		})
	}

	v.mu.Lock()
	v.entries = entries
	v.mu.Unlock()
}

// Empty reports whether no keys are configured.
func (v *Validator) Empty() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries) == 0
}

// Validate returns the key matching secret. Every entry is compared so the
// time taken does not depend on which key matched.
func (v *Validator) Validate(secret string) (*Key, error) {
	digest := sha256.Sum256([]byte(secret))

	v.mu.RLock()
	defer v.mu.RUnlock()

	var found *Key
	for _, e := range v.entries {
		if subtle.ConstantTimeCompare(digest[:], e.digest[:]) == 1 && found == nil {
			found = e.key
		}
	}

	switch {
	case found == nil:
		return nil, ErrInvalidKey
	case !found.Enabled:
		return nil, ErrDisabledKey
	}
	return found, nil
}

// Names returns the configured key names, sorted.
func (v *Validator) Names() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	names := make([]string, 0, len(v.entries))
	for _, e := range v.entries {
		names = append(names, e.key.Name)
	}
	slices.Sort(names)
	return names
}
