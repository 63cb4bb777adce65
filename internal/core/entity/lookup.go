package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// LookupState tells how much of a relationship the server delivered.
type LookupState int

const (
	// NotExpanded: the column was not part of the response.
	NotExpanded LookupState = iota
	// Deferred: the server returned a deferred placeholder instead of the value.
	Deferred
	// Loaded: the referenced entities are present (possibly as partials).
	Loaded
)

func (s LookupState) String() string {
	switch s {
	case NotExpanded:
		return "not-expanded"
	case Deferred:
		return "deferred"
	case Loaded:
		return "loaded"
	}
	return fmt.Sprintf("LookupState(%d)", int(s))
}

// LookupField is the untyped view of a Lookup used by the metadata and
// list packages.
type LookupField interface {
	LookupState() LookupState
	IsMulti() bool
	SetMulti(multi bool)
	// RefCount returns the number of referenced entities.
	RefCount() int
	// Ref returns the i-th referenced entity.
	Ref(i int) Item
	// SetRef replaces the i-th referenced entity; item must be convertible to
	// the lookup's element type.
	SetRef(i int, item Item) error
	// Reset empties the lookup. Multi lookups become a loaded empty
	// collection, single lookups become NotExpanded.
	Reset()
	// ElemType returns the element pointer type (the nested entity type).
	ElemType() reflect.Type
}

// Lookup is a reference to one or many entities of another list.
// Its zero value is NotExpanded.
type Lookup[T Item] struct {
	state LookupState
	multi bool
	items []T
}

var _ LookupField = (*Lookup[*ItemBase])(nil)

// One returns a loaded single-value lookup.
func One[T Item](v T) Lookup[T] {
	return Lookup[T]{state: Loaded, items: []T{v}}
}

// Many returns a loaded multi-value lookup.
func Many[T Item](vs ...T) Lookup[T] {
	return Lookup[T]{state: Loaded, multi: true, items: append([]T(nil), vs...)}
}

// State returns the lookup state.
func (l *Lookup[T]) State() LookupState { return l.state }

// LookupState implements LookupField.
func (l *Lookup[T]) LookupState() LookupState { return l.state }

// IsMulti implements LookupField.
func (l *Lookup[T]) IsMulti() bool { return l.multi }

// SetMulti implements LookupField.
func (l *Lookup[T]) SetMulti(multi bool) { l.multi = multi }

// Get returns the (first) referenced entity.
func (l *Lookup[T]) Get() (T, bool) {
	var zero T
	if l.state != Loaded || len(l.items) == 0 {
		return zero, false
	}
	return l.items[0], true
}

// All returns a copy of the referenced entities.
func (l *Lookup[T]) All() []T {
	return append([]T(nil), l.items...)
}

// Set makes the lookup reference exactly v.
func (l *Lookup[T]) Set(v T) {
	l.state = Loaded
	l.items = []T{v}
}

// SetAll makes the lookup reference vs and marks it multi-valued.
func (l *Lookup[T]) SetAll(vs []T) {
	l.state = Loaded
	l.multi = true
	l.items = append([]T(nil), vs...)
}

// Append adds v to a multi-valued lookup.
func (l *Lookup[T]) Append(v T) {
	l.state = Loaded
	l.multi = true
	l.items = append(l.items, v)
}

// Remove drops the referenced entity with the given id.
func (l *Lookup[T]) Remove(id int) bool {
	for i, it := range l.items {
		if it.Base().ID == id {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether an entity with id is referenced.
func (l *Lookup[T]) Contains(id int) bool {
	return l.IndexOf(id) >= 0
}

// IndexOf returns the position of the entity with id, or -1.
func (l *Lookup[T]) IndexOf(id int) int {
	for i, it := range l.items {
		if it.Base().ID == id {
			return i
		}
	}
	return -1
}

// RefCount implements LookupField.
func (l *Lookup[T]) RefCount() int { return len(l.items) }

// Ref implements LookupField.
func (l *Lookup[T]) Ref(i int) Item { return l.items[i] }

// SetRef implements LookupField.
func (l *Lookup[T]) SetRef(i int, item Item) error {
	v, ok := As[T](item)
	if !ok {
		return fmt.Errorf("entity: %T cannot be used as %s", item, l.ElemType())
	}
	l.items[i] = v
	return nil
}

// Reset implements LookupField.
func (l *Lookup[T]) Reset() {
	l.items = nil
	if l.multi {
		l.state = Loaded
	} else {
		l.state = NotExpanded
	}
}

// ElemType implements LookupField.
func (l *Lookup[T]) ElemType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// UnmarshalJSON accepts a single object, an array, a {"results": [...]}
// wrapper or a {"__deferred": ...} placeholder.
func (l *Lookup[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		l.state, l.items = NotExpanded, nil
		return nil
	case len(data) > 0 && data[0] == '[':
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		l.state, l.multi, l.items = Loaded, true, items
		return nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if _, ok := probe["__deferred"]; ok {
		l.state, l.items = Deferred, nil
		return nil
	}
	if results, ok := probe["results"]; ok && len(probe) == 1 {
		return l.UnmarshalJSON(results)
	}

	var item T
	if err := json.Unmarshal(data, &item); err != nil {
		return err
	}
	l.state, l.multi, l.items = Loaded, false, []T{item}
	return nil
}

// MarshalJSON writes null unless loaded, an array for multi lookups and the
// single object otherwise.
func (l Lookup[T]) MarshalJSON() ([]byte, error) {
	switch {
	case l.state != Loaded:
		return []byte("null"), nil
	case l.multi:
		items := l.items
		if items == nil {
			items = []T{}
		}
		return json.Marshal(items)
	case len(l.items) == 0:
		return []byte("null"), nil
	}
	return json.Marshal(l.items[0])
}

// IsDeferredValue reports whether a wire value is a deferred placeholder.
func IsDeferredValue(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, ok = m["__deferred"]
	return ok
}
