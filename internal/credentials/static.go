package credentials

import (
	"context"
	"os"
	"strings"
	"unicode"

	"metadata-enricher/internal/common/errors"
)

// EnvStore reads secrets from environment variables. The reference is
// upper-cased and every character outside [A-Z0-9] becomes "_", so
// "medialake/external-metadata/acme" is read from
// MEDIALAKE_EXTERNAL_METADATA_ACME.
type EnvStore struct {
	lookup func(string) (string, bool)
}

// NewEnvStore reads from the process environment.
func NewEnvStore() *EnvStore {
	return &EnvStore{lookup: os.LookupEnv}
}

// Name identifies the store in logs.
func (s *EnvStore) Name() string { return "env" }

// EnvVarName returns the variable a reference is read from.
func EnvVarName(ref string) string {
	return strings.Map(func(r rune) rune {
		r = unicode.ToUpper(r)
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, ref)
}

// GetSecret returns the variable's value.
func (s *EnvStore) GetSecret(ctx context.Context, ref string) ([]byte, error) {
	value, ok := s.lookup(EnvVarName(ref))
	if !ok || value == "" {
		return nil, errors.SecretNotFoundError(ref, nil)
	}
	return []byte(value), nil
}

// StaticStore serves secrets from memory.
type StaticStore map[string]string

// Name identifies the store in logs.
func (s StaticStore) Name() string { return "static" }

// GetSecret returns the stored document.
func (s StaticStore) GetSecret(ctx context.Context, ref string) ([]byte, error) {
	value, ok := s[ref]
	if !ok {
		return nil, errors.SecretNotFoundError(ref, nil)
	}
	return []byte(value), nil
}
