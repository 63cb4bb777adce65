package entity

import (
	"fmt"
	"reflect"
)

var itemType = reflect.TypeOf((*Item)(nil)).Elem()

// ItemType returns the struct type behind an entity prototype such as
// (*Task)(nil), &Task{} or reflect.TypeOf(Task{}).
func ItemType(prototype any) (reflect.Type, error) {
	var t reflect.Type
	switch p := prototype.(type) {
	case reflect.Type:
		t = p
	default:
		t = reflect.TypeOf(prototype)
	}
	if t == nil {
		return nil, fmt.Errorf("entity: nil prototype")
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || !reflect.PointerTo(t).Implements(itemType) {
		return nil, fmt.Errorf("entity: %s does not embed entity.Record", t)
	}
	return t, nil
}

// New allocates a fresh instance of the entity struct type t and runs Init
// if the type implements Initializer.
func New(t reflect.Type) Item {
	item := reflect.New(t).Interface().(Item)
	if in, ok := item.(Initializer); ok {
		in.Init()
	}
	return item
}

// As converts item to T. T may be the item's own pointer type or a pointer to
// a struct embedded (at any depth) in it; the result shares memory with item
// so that later in-place updates are visible through both.
func As[T Item](item Item) (T, bool) {
	var zero T
	if item == nil {
		return zero, false
	}
	if t, ok := item.(T); ok {
		return t, true
	}
	want := reflect.TypeOf((*T)(nil)).Elem()
	v, ok := findEmbedded(reflect.ValueOf(item), want)
	if !ok {
		return zero, false
	}
	return v.Interface().(T), true
}

// Convertible reports whether values of struct type from can be viewed as to
// (a pointer type) through As.
func Convertible(from reflect.Type, to reflect.Type) bool {
	if reflect.PointerTo(from) == to {
		return true
	}
	_, ok := findEmbedded(reflect.New(from), to)
	return ok
}

func findEmbedded(v reflect.Value, want reflect.Type) (reflect.Value, bool) {
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, false
	}
	e := v.Elem()
	if e.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	for i := 0; i < e.NumField(); i++ {
		f := e.Type().Field(i)
		if !f.Anonymous || !f.IsExported() {
			continue
		}
		fv := e.Field(i)
		switch fv.Kind() {
		case reflect.Struct:
			addr := fv.Addr()
			if addr.Type() == want {
				return addr, true
			}
			if found, ok := findEmbedded(addr, want); ok {
				return found, true
			}
		case reflect.Ptr:
			if fv.Type() == want && !fv.IsNil() {
				return fv, true
			}
		}
	}
	return reflect.Value{}, false
}
