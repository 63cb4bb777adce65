// Package entity contains the base types of list records.
//
// Entity types are plain structs that embed Record (or ItemBase, which adds
// the Title column). Exported fields are mapped to remote columns through their
// json tag; the list tag carries options:
//
//	list:"-"         property is never loaded nor submitted
//	list:"readonly"  property is loaded but never submitted
//
// Relationship columns are declared as Lookup[T]; T is the nested entity type
// used to derive the server-side expansion.
package entity

import (
	"context"
	"sync"
)

// Item is implemented by every entity type through the embedded Record.
type Item interface {
	Base() *Record
}

// Owner is the controller owning a record.
type Owner interface {
	Name() string
}

// RemoteHandle is the live handle of a persisted record on the remote list.
type RemoteHandle interface {
	Delete(ctx context.Context) error
}

// ReadOnlyRecord is implemented by entity types that can never be deleted
// or written through this layer (e.g. site users).
type ReadOnlyRecord interface {
	RecordReadOnly() bool
}

// Initializer is called once on freshly constructed instances.
type Initializer interface {
	Init()
}

///////////////////
// Record        //
///////////////////

// Record contains identity and bookkeeping common to all entities.
type Record struct {
	// ID is the remote item id; 0 means not persisted yet.
	ID int `json:"ID,omitempty"`

	mu        sync.Mutex
	dirty     bool
	deleted   bool
	source    map[string]any
	owner     Owner
	remote    RemoteHandle
	onDeleted []func()
}

// Base implements Item.
func (r *Record) Base() *Record { return r }

// IsPersisted reports whether the record has a remote id.
func (r *Record) IsPersisted() bool { return r.ID > 0 }

// Touch marks the record as modified and not submitted.
func (r *Record) Touch() {
	r.mu.Lock()
	r.dirty = true
	r.mu.Unlock()
}

// Update applies fn and marks the record dirty.
func (r *Record) Update(fn func()) {
	fn()
	r.Touch()
}

// Dirty reports whether the record was modified since the last submit.
func (r *Record) Dirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}

// ClearDirty is called after a successful submit.
func (r *Record) ClearDirty() {
	r.mu.Lock()
	r.dirty = false
	r.mu.Unlock()
}

// Deleted reports whether the record was deleted remotely.
func (r *Record) Deleted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleted
}

// OnDeleted registers fn to run once when the record becomes deleted.
// If the record is already deleted fn runs immediately.
func (r *Record) OnDeleted(fn func()) {
	r.mu.Lock()
	if r.deleted {
		r.mu.Unlock()
		fn()
		return
	}
	r.onDeleted = append(r.onDeleted, fn)
	r.mu.Unlock()
}

// MarkDeleted flips the deleted flag and runs the deletion callbacks.
// Subsequent calls are no-ops.
func (r *Record) MarkDeleted() {
	r.mu.Lock()
	if r.deleted {
		r.mu.Unlock()
		return
	}
	r.deleted = true
	callbacks := r.onDeleted
	r.onDeleted = nil
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// Source returns the wire record last used to hydrate this instance.
func (r *Record) Source() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.source
}

// SetSource stores the wire record used to hydrate this instance.
func (r *Record) SetSource(source map[string]any) {
	r.mu.Lock()
	r.source = source
	r.mu.Unlock()
}

// Owner returns the owning controller, nil for transient records.
func (r *Record) Owner() Owner {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owner
}

// SetOwner attaches the owning controller.
func (r *Record) SetOwner(o Owner) {
	r.mu.Lock()
	r.owner = o
	r.mu.Unlock()
}

// Remote returns the live remote handle, nil until persisted.
func (r *Record) Remote() RemoteHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remote
}

// SetRemote attaches the live remote handle.
func (r *Record) SetRemote(h RemoteHandle) {
	r.mu.Lock()
	r.remote = h
	r.mu.Unlock()
}

///////////////
// ItemBase  //
///////////////

// ItemBase is the minimal list item: id and title.
type ItemBase struct {
	Record

	Title string `json:"Title"`
}

// CanBeDeleted reports whether item is persisted, has a remote handle and is
// not a read-only record type.
func CanBeDeleted(item Item) bool {
	if ro, ok := item.(ReadOnlyRecord); ok && ro.RecordReadOnly() {
		return false
	}
	rec := item.Base()
	return rec.IsPersisted() && rec.Remote() != nil
}
