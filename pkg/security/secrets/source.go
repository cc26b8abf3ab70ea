package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by a Source that does not hold the secret.
var ErrNotFound = errors.New("secret not found")

// Source looks up secret values.
type Source interface {
	Name() string
	Lookup(ctx context.Context, name string) (string, error)
}

// EnvSource reads secrets from environment variables.
type EnvSource struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvSource reads variables named prefix + the upper-cased secret name,
// with '-' and '.' mapped to '_'.
func NewEnvSource(prefix string) *EnvSource {
	return &EnvSource{prefix: prefix, lookup: os.LookupEnv}
}

// Name implements Source.
func (s *EnvSource) Name() string { return "env" }

// Variable returns the environment variable holding name.
func (s *EnvSource) Variable(name string) string {
	r := strings.NewReplacer("-", "_", ".", "_")
	return s.prefix + strings.ToUpper(r.Replace(name))
}

// Lookup implements Source.
func (s *EnvSource) Lookup(_ context.Context, name string) (string, error) {
	v, ok := s.lookup(s.Variable(name))
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// DirSource reads one file per secret from a directory.
type DirSource struct {
	dir string
}

// NewDirSource checks that dir is a directory.
func NewDirSource(dir string) (*DirSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("secrets directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets directory %s is not a directory", dir)
	}
	return &DirSource{dir: dir}, nil
}

// Name implements Source.
func (s *DirSource) Name() string { return "dir" }

// Dir returns the watched directory.
func (s *DirSource) Dir() string { return s.dir }

// Lookup implements Source. Files readable by other users are rejected.
func (s *DirSource) Lookup(_ context.Context, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid secret name %q", name)
	}
	path := filepath.Join(s.dir, name)

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret %q is not a regular file", name)
	}
	if perm := info.Mode().Perm(); perm&0o007 != 0 {
		return "", fmt.Errorf("insecure permissions %o on secret %q", perm, name)
	}

	// #nosec G304 - name is a single path element inside dir
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
