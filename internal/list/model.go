package list

import (
	"context"
	"fmt"
	"reflect"

	"listbind/internal/core/apperror"
	"listbind/internal/core/entity"
)

// Model is the typed view of an entity type registered on a controller.
// Records are built from the controller's base type and viewed as T, so T
// must be the base type or embedded in it.
type Model[T entity.Item] struct {
	reg *Registration
}

// Register registers T on c with the filter used by LoadAll.
func Register[T entity.Item](ctx context.Context, c *Controller, filter string) (*Model[T], error) {
	reg, err := c.RegisterModel(ctx, reflect.TypeOf((*T)(nil)).Elem(), filter)
	if err != nil {
		return nil, err
	}
	return &Model[T]{reg: reg}, nil
}

// Registration returns the untyped registration.
func (m *Model[T]) Registration() *Registration { return m.reg }

// Controller returns the owning controller.
func (m *Model[T]) Controller() *Controller { return m.reg.c }

// LoadAll loads the records matching the model filter.
func (m *Model[T]) LoadAll(ctx context.Context) error {
	return m.reg.LoadAll(ctx)
}

// Records returns the loaded records viewable as T.
func (m *Model[T]) Records() []T {
	records := m.reg.c.Records()
	out := make([]T, 0, len(records))
	for _, item := range records {
		if v, ok := entity.As[T](item); ok {
			out = append(out, v)
		}
	}
	return out
}

// GetByID returns the record with itemID as T.
func (m *Model[T]) GetByID(ctx context.Context, itemID int) (T, error) {
	item, err := m.reg.c.GetByID(ctx, itemID)
	if err != nil {
		var zero T
		return zero, err
	}
	return m.as(item, "getById")
}

// NewRecord returns the controller's blank record as T.
func (m *Model[T]) NewRecord() (T, error) {
	item := m.reg.c.NewRecord()
	if item == nil {
		var zero T
		return zero, apperror.NewInternal("list not initialised", nil).In(m.reg.c.Name(), "newRecord")
	}
	return m.as(item, "newRecord")
}

// GetNew returns a fresh blank record as T.
func (m *Model[T]) GetNew() (T, error) {
	item, err := m.reg.c.GetNew()
	if err != nil {
		var zero T
		return zero, err
	}
	return m.as(item, "getNew")
}

// Submit creates or updates item.
func (m *Model[T]) Submit(ctx context.Context, item T) error {
	return m.reg.c.Submit(ctx, item)
}

// Delete deletes item.
func (m *Model[T]) Delete(ctx context.Context, item T) error {
	return m.reg.c.Delete(ctx, item)
}

func (m *Model[T]) as(item entity.Item, op string) (T, error) {
	v, ok := entity.As[T](item)
	if !ok {
		var zero T
		return zero, apperror.NewInternal(
			fmt.Sprintf("%T is not viewable as %s", item, m.reg.schema.Name()), nil).In(m.reg.c.Name(), op)
	}
	return v, nil
}
