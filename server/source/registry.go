package source

import "sort"

// Registry is an immutable name -> Source mapping built once at startup.
// Lookups after construction involve no locking and no mutable state.
type Registry struct {
	sources map[string]Source
}

func NewRegistry(sources ...Source) *Registry {
	m := make(map[string]Source, len(sources))
	for _, s := range sources {
		m[s.Name()] = s
	}
	return &Registry{sources: m}
}

// Lookup finds the adapter registered under name.
func (r *Registry) Lookup(name string) (Source, bool) {
	s, ok := r.sources[name]
	return s, ok
}

// Names returns the registered source names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
