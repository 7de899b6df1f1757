package workflow

import (
	"sync"

	"github.com/flowline-dev/flowline"
)

// Registry is an explicitly constructed catalog of named workflow
// definitions. Multiple versions of the same name can coexist; the
// highest version is used when no version is requested. It is safe for
// concurrent use.
//
// The engine never reaches into ambient global state: a Registry is
// built by the caller and passed in.
type Registry struct {
	mu       sync.RWMutex
	versions map[string][]*Definition
}

// NewRegistry creates an empty definition registry.
func NewRegistry() *Registry {
	return &Registry{versions: make(map[string][]*Definition)}
}

// Register adds a definition. A definition with Version <= 0 is treated
// as version 1. Re-registering the same name and version replaces the
// earlier entry.
func (r *Registry) Register(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	d := *def
	if d.Version <= 0 {
		d.Version = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.versions[d.Name]
	for i, v := range existing {
		if v.Version == d.Version {
			existing[i] = &d
			return nil
		}
	}
	r.versions[d.Name] = append(existing, &d)
	return nil
}

// Get returns the highest-version definition for the given name.
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.versions[name]
	if len(versions) == 0 {
		return nil, flowline.ErrDefinitionNotFound
	}

	best := versions[0]
	for _, v := range versions[1:] {
		if v.Version > best.Version {
			best = v
		}
	}
	return best, nil
}

// GetVersion returns a specific version of a definition. A version <= 0
// behaves like Get.
func (r *Registry) GetVersion(name string, version int) (*Definition, error) {
	if version <= 0 {
		return r.Get(name)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, v := range r.versions[name] {
		if v.Version == version {
			return v, nil
		}
	}
	return nil, flowline.ErrDefinitionNotFound
}

// Names returns all registered definition names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.versions))
	for name := range r.versions {
		names = append(names, name)
	}
	return names
}
