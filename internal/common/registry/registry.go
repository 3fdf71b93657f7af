// Package registry provides a generic, thread-safe name to value registry.
//
// It backs the strategy, adapter and normalizer registries: variants are
// added by registering a constructor under a name, never by editing the
// code that consults the registry.
//
//	strategies := registry.New[auth.Factory]("auth strategy")
//	strategies.Register("basic", auth.NewBasicAuth)
//	factory, err := strategies.Get(cfg.AuthType)
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"

	"metadata-enricher/internal/common/errors"
)

// Registry maps names (and aliases) to values of type T.
type Registry[T any] struct {
	kind    string
	entries map[string]T
	aliases map[string]string
	mu      sync.RWMutex
}

// New creates an empty registry. kind names the registered things in errors.
func New[T any](kind string) *Registry[T] {
	return &Registry[T]{
		kind:    kind,
		entries: make(map[string]T),
		aliases: make(map[string]string),
	}
}

// Register adds value under name, replacing any previous registration.
// Aliases resolve to name on lookup.
func (r *Registry[T]) Register(name string, value T, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = value
	for _, alias := range aliases {
		r.aliases[alias] = name
	}
}

// Get looks name up, following aliases. Unknown names are config errors.
func (r *Registry[T]) Get(name string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	value, exists := r.entries[name]
	if !exists {
		var zero T
		return zero, errors.ConfigError(fmt.Sprintf("unknown %s %q (available: %s)",
			r.kind, name, strings.Join(r.namesLocked(), ", ")))
	}
	return value, nil
}

// Canonical returns the registered name an alias points to, or name itself.
func (r *Registry[T]) Canonical(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if canonical, ok := r.aliases[name]; ok {
		return canonical
	}
	return name
}

// IsRegistered reports whether name or an alias of it is known.
func (r *Registry[T]) IsRegistered(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// Names returns the registered names in sorted order, aliases excluded.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry[T]) namesLocked() []string {
	names := lo.Keys(r.entries)
	sort.Strings(names)
	return names
}
