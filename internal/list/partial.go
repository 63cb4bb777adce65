package list

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"

	"listbind/internal/core/apperror"
	"listbind/internal/core/entity"
)

// partialQueue holds records known only through lookups (id and a few
// display columns). Guarded by Controller.mu.
type partialQueue struct {
	items     []entity.Item
	autoDrain bool
	draining  bool
	idle      chan struct{}
	lastErr   error
}

// GetPartial returns a loaded record or a queued partial record.
func (c *Controller) GetPartial(itemID int) (entity.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.partialLocked(itemID)
}

func (c *Controller) partialLocked(itemID int) (entity.Item, bool) {
	if item, ok := c.byID[itemID]; ok {
		return item, true
	}
	for _, p := range c.partials.items {
		if p.Base().ID == itemID {
			return p, true
		}
	}
	return nil, false
}

// Partials returns the queued partial records in queue order.
func (c *Controller) Partials() []entity.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.partials.items)
}

// AddGetPartial returns the canonical instance for a record referenced by a
// lookup: the loaded record, the queued partial or a new partial built from
// ref and queued. With draining enabled the queue is processed in the
// background.
func (c *Controller) AddGetPartial(ctx context.Context, ref entity.Item) (entity.Item, error) {
	itemID := ref.Base().ID
	c.mu.Lock()
	if existing, ok := c.partialLocked(itemID); ok {
		c.mu.Unlock()
		return existing, nil
	}
	item, err := c.partialFromLocked(ref)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.partials.items = append(c.partials.items, item)
	drain := c.partials.autoDrain
	c.mu.Unlock()

	if drain {
		c.kickDrain(ctx)
	}
	return item, nil
}

// partialFromLocked copies ref into a new base-type instance. Before any
// type is folded ref itself is queued.
func (c *Controller) partialFromLocked(ref entity.Item) (entity.Item, error) {
	item := ref
	if c.base != nil && reflect.TypeOf(ref).Elem() != c.base.schema.Type {
		data, err := json.Marshal(ref)
		if err != nil {
			return nil, apperror.NewData(fmt.Sprintf("lookup item %d", ref.Base().ID)).WithCause(err)
		}
		item = c.blankLocked()
		if err := json.Unmarshal(data, item); err != nil {
			return nil, apperror.NewData(fmt.Sprintf("lookup item %d", ref.Base().ID)).WithCause(err)
		}
	}
	rec := item.Base()
	rec.SetOwner(c)
	if rec.Remote() == nil {
		rec.SetRemote(c.handle(rec.ID))
	}
	return item, nil
}

func (c *Controller) removePartialLocked(item entity.Item) {
	c.partials.items = slices.DeleteFunc(c.partials.items, func(p entity.Item) bool { return p == item })
}

// AutoDrain reports whether partial records are loaded in the background.
func (c *Controller) AutoDrain() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.partials.autoDrain
}

// StartDraining makes the controller load queued partial records in full,
// now and whenever new ones are queued. Calling it again has no effect.
func (c *Controller) StartDraining(ctx context.Context) {
	c.mu.Lock()
	c.partials.autoDrain = true
	c.mu.Unlock()
	c.kickDrain(ctx)
}

// kickDrain starts the drain goroutine unless it runs or nothing is queued.
func (c *Controller) kickDrain(ctx context.Context) {
	c.mu.Lock()
	if c.partials.draining || len(c.partials.items) == 0 {
		c.mu.Unlock()
		return
	}
	c.partials.draining = true
	c.partials.lastErr = nil
	c.partials.idle = make(chan struct{})
	c.mu.Unlock()

	go c.drain(context.WithoutCancel(ctx))
}

// drain loads the queue head in full, one record at a time, until the queue
// is empty. On failure the head stays queued and draining stops.
func (c *Controller) drain(ctx context.Context) {
	for {
		c.mu.Lock()
		if len(c.partials.items) == 0 {
			c.stopDrainLocked(nil)
			c.mu.Unlock()
			return
		}
		head := c.partials.items[0]
		c.mu.Unlock()

		if err := c.loadFull(ctx, head); err != nil {
			c.log.Errorw("loading partial record failed", "id", head.Base().ID, "error", err)
			c.mu.Lock()
			c.stopDrainLocked(err)
			c.mu.Unlock()
			return
		}
		if _, err := c.adopt(head); err != nil {
			c.log.Errorw("registering partial record failed", "id", head.Base().ID, "error", err)
			c.mu.Lock()
			c.removePartialLocked(head)
			c.mu.Unlock()
		}
		c.reg.metrics.Add(ctx, c.reg.metrics.PartialsHydrated, 1, c.Name())
	}
}

func (c *Controller) stopDrainLocked(err error) {
	c.partials.draining = false
	c.partials.lastErr = err
	close(c.partials.idle)
}

func (c *Controller) loadFull(ctx context.Context, partial entity.Item) error {
	itemID := partial.Base().ID
	raws, err := c.fetch(ctx, "loadPartial", idFilter(itemID))
	if err != nil {
		return err
	}
	if len(raws) == 0 {
		return apperror.NewLoad(fmt.Sprintf("item %d not found", itemID), nil).In(c.Name(), "loadPartial")
	}
	_, err = c.getObject(ctx, raws[0], partial)
	return err
}

// Wait blocks until no partial records are being loaded and returns the
// error that stopped the last drain.
func (c *Controller) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		if !c.partials.draining {
			err := c.partials.lastErr
			c.mu.Unlock()
			return err
		}
		idle := c.partials.idle
		c.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
