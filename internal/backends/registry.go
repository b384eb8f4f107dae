package backends

import (
	"fmt"
	"sort"
)

// Registry is the closed set of backends available to the process, built once at startup.
type Registry struct {
	backends map[Name]Backend
	fallback Name
}

// NewRegistry validates that names are unique and the fallback is registered.
func NewRegistry(fallback Name, list ...Backend) (*Registry, error) {
	r := &Registry{backends: make(map[Name]Backend, len(list)), fallback: fallback}
	for _, b := range list {
		if b == nil {
			continue
		}
		if _, dup := r.backends[b.Name()]; dup {
			return nil, fmt.Errorf("backend %q registered twice", b.Name())
		}
		r.backends[b.Name()] = b
	}
	if _, ok := r.backends[fallback]; !ok {
		return nil, fmt.Errorf("%w: default %q", ErrUnknownBackend, fallback)
	}
	return r, nil
}

// Get returns the named backend or ErrUnknownBackend.
func (r *Registry) Get(name Name) (Backend, error) {
	if b, ok := r.backends[name]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}

// Resolve returns the named backend, falling back to the default when the
// name is empty or no longer registered. The bool reports whether it fell back.
func (r *Registry) Resolve(name Name) (Backend, bool) {
	if b, ok := r.backends[name]; ok {
		return b, false
	}
	return r.backends[r.fallback], true
}

func (r *Registry) Default() Backend {
	return r.backends[r.fallback]
}

func (r *Registry) Names() []Name {
	names := make([]Name, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
