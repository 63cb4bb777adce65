package metadata

import (
	"reflect"
	"sort"
	"sync"
)

// Registry caches inspected entity schemas by type.
type Registry struct {
	mu      sync.RWMutex
	schemas map[reflect.Type]*Schema
}

func NewRegistry() *Registry {
	return &Registry{
		schemas: make(map[reflect.Type]*Schema),
	}
}

var defaultRegistry = NewRegistry()

// SchemaOf returns the cached schema of t from the process-wide registry.
func SchemaOf(t reflect.Type) (*Schema, error) {
	return defaultRegistry.Register(t)
}

// Register inspects t if needed and returns its schema.
func (r *Registry) Register(t reflect.Type) (*Schema, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	r.mu.RLock()
	s, ok := r.schemas[t]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	s, err := InspectSchema(t)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.schemas[t]; ok {
		return existing, nil
	}
	r.schemas[t] = s
	return s, nil
}

func (r *Registry) Get(t reflect.Type) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[t]
	return s, ok
}

// List returns all cached schemas ordered by type name.
func (r *Registry) List() []*Schema {
	r.mu.RLock()
	list := make([]*Schema, 0, len(r.schemas))
	for _, s := range r.schemas {
		list = append(list, s)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Type.String() < list[j].Type.String() })
	return list
}
