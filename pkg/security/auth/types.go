package auth

import "errors"

var (
	// ErrMissingKey is returned when a request carries no API key.
	ErrMissingKey = errors.New("no API key found")

	// ErrInvalidKey is returned for unknown keys.
	ErrInvalidKey = errors.New("invalid API key")

	// ErrDisabledKey is returned for configured but disabled keys.
	ErrDisabledKey = errors.New("API key disabled")
)

// Key is an accepted API key. The secret itself is not retained.
type Key struct {
	Name    string
	Enabled bool
}

// Store validates API keys.
type Store interface {
	Validate(key string) (*Key, error)
	Names() []string
}
