package list

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"listbind/internal/core/apperror"
	"listbind/internal/core/entity"
	"listbind/internal/infrastructure/remote"
	"listbind/internal/infrastructure/telemetry"
	"listbind/internal/metadata"
	"listbind/internal/transform"
)

// GetByIDSync returns a loaded record.
func (c *Controller) GetByIDSync(itemID int) (entity.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.byID[itemID]
	return item, ok
}

// Records returns the loaded records in load order.
func (c *Controller) Records() []entity.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.records)
}

// GetByID returns the record with itemID, loading it if needed. Calls for
// the same id return the same instance.
func (c *Controller) GetByID(ctx context.Context, itemID int) (entity.Item, error) {
	if item, ok := c.GetByIDSync(itemID); ok {
		return item, nil
	}
	raws, err := c.fetch(ctx, "getById", idFilter(itemID))
	if err != nil {
		return nil, wrap(err, c.Name(), fmt.Sprintf("getById(%d)", itemID))
	}
	if len(raws) == 0 {
		return nil, apperror.NewLoad(fmt.Sprintf("item %d not found", itemID), nil).
			In(c.Name(), fmt.Sprintf("getById(%d)", itemID))
	}

	existing, _ := c.GetPartial(itemID)
	item, err := c.getObject(ctx, raws[0], existing)
	if err != nil {
		return nil, apperror.NewLoad(fmt.Sprintf("converting item %d failed", itemID), err).
			In(c.Name(), fmt.Sprintf("getById(%d)", itemID))
	}
	return c.adopt(item)
}

// LoadAll loads every record matching filter. Records already loaded keep
// their instance and are refreshed in place from the response, so lookups
// and callers holding them see current values; records with unsubmitted
// changes are left untouched.
func (c *Controller) LoadAll(ctx context.Context, filter string) error {
	raws, err := c.fetch(ctx, "loadAll", filter)
	if err != nil {
		return wrap(err, c.Name(), "loadAll")
	}

	added := 0
	for _, raw := range raws {
		itemID, _ := rawID(raw)
		existing, _ := c.GetPartial(itemID)
		if existing != nil && existing.Base().Dirty() {
			c.log.Debugw("modified record not refreshed", "id", itemID)
			continue
		}
		item, err := c.getObject(ctx, raw, existing)
		if err != nil {
			return apperror.NewLoad(fmt.Sprintf("converting item %d failed", itemID), err).In(c.Name(), "loadAll")
		}
		if _, registered := c.GetByIDSync(itemID); !registered {
			added++
		}
		if _, err := c.adopt(item); err != nil {
			return err
		}
	}
	c.reg.metrics.Add(ctx, c.reg.metrics.RecordsLoaded, len(raws), c.Name())
	c.log.Debugw("records loaded", "filter", filter, "received", len(raws), "added", added, "records", len(c.Records()))
	return nil
}

// fetch queries records with the current projection. A query rejected
// because of a lookup expansion downgrades that lookup and is retried; a
// second rejection of the same lookup is returned.
func (c *Controller) fetch(ctx context.Context, op, filter string) ([]map[string]any, error) {
	attempted := make(map[string]bool)
	for {
		q := c.query(filter)
		var raws []map[string]any
		err := c.call(ctx, op, func(ctx context.Context) error {
			var err error
			raws, err = c.reg.transport.FetchRecords(ctx, c.ref, q)
			return err
		})
		if err == nil {
			return raws, nil
		}

		failure, ok := ClassifyExpandFailure(err)
		if !ok || attempted[failure.Field] {
			return nil, c.loadError(op, q, err)
		}
		attempted[failure.Field] = true

		c.log.Warnw("expanding lookup rejected, loading it client-side",
			"field", failure.Field,
			"column", failure.Column,
			"status", failure.Status,
		)
		if err := c.handleFailedExpand(ctx, failure.Field); err != nil {
			return nil, apperror.NewLoad("degrading lookup "+failure.Field+" failed", err).In(c.Name(), op)
		}
		c.reg.metrics.Add(ctx, c.reg.metrics.Degradations, 1, c.Name(),
			attribute.String(telemetry.AttrField, failure.Field))
	}
}

// query returns the current projection with filter.
func (c *Controller) query(filter string) remote.Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return remote.Query{
		Select: slices.Clone(c.selects),
		Expand: slices.Clone(c.expands),
		Filter: filter,
	}
}

func (c *Controller) loadError(op string, q remote.Query, cause error) error {
	c.mu.Lock()
	mappings := make(map[string]string, len(c.mappings))
	for field, m := range c.mappings {
		mappings[field] = fmt.Sprintf("%s degraded=%t", m.listID, m.degraded)
	}
	records := len(c.records)
	c.mu.Unlock()

	c.log.Errorw("loading records failed",
		"op", op,
		"filter", q.Filter,
		"select", q.Select,
		"expand", q.Expand,
		"mappings", mappings,
		"records", records,
		"error", cause,
	)
	return apperror.NewLoad("loading records failed", cause).
		In(c.Name(), op).
		WithDetail("select", q.Select).
		WithDetail("expand", q.Expand).
		WithDetail("mappings", mappings).
		WithDetail("records", records)
}

// getObject hydrates existing (or a new base-type instance) from raw.
func (c *Controller) getObject(ctx context.Context, raw map[string]any, existing entity.Item) (entity.Item, error) {
	item := existing
	if item == nil {
		c.mu.Lock()
		if c.base == nil {
			c.mu.Unlock()
			return nil, apperror.NewInternal("no entity type registered", nil).In(c.Name(), "getObject")
		}
		item = c.blankLocked()
		c.mu.Unlock()
	}
	if err := c.reg.transformer.FromWire(ctx, raw, item, c.view()); err != nil {
		return nil, err
	}
	item.Base().SetOwner(c)
	return item, nil
}

func (c *Controller) view() transform.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return transform.View{
		List:     c.Name(),
		Catalog:  c.catalog,
		Selected: maps.Clone(c.selected),
		Connect:  c.connectLookups,
		Handle:   c.handle,
	}
}

// connectLookups replaces the records decoded from lookup columns by the
// canonical instances of the target controllers.
func (c *Controller) connectLookups(ctx context.Context, item entity.Item) error {
	schema, err := metadata.SchemaOf(reflect.TypeOf(item))
	if err != nil {
		return err
	}
	c.mu.Lock()
	mappings := make([]*lookupMapping, 0, len(c.mappingOrder))
	for _, field := range c.mappingOrder {
		mappings = append(mappings, c.mappings[field])
	}
	c.mu.Unlock()

	for _, m := range mappings {
		p, ok := schema.ByWireName(m.field)
		if !ok {
			continue
		}
		lf, ok := schema.LookupOf(item, p)
		if !ok {
			continue
		}
		switch lf.LookupState() {
		case entity.NotExpanded:
			continue
		case entity.Deferred:
			c.log.Warnw("deferred lookup left unset", "field", m.field, "id", item.Base().ID)
			lf.Reset()
			continue
		}

		for i := 0; i < lf.RefCount(); i++ {
			ref := lf.Ref(i)
			if ref == nil || ref.Base().ID <= 0 {
				return apperror.NewData(fmt.Sprintf("lookup %s of item %d has no id", m.field, item.Base().ID)).
					In(c.Name(), "connectLookup")
			}
			canonical, err := m.controller.AddGetPartial(ctx, ref)
			if err != nil {
				return err
			}
			if err := lf.SetRef(i, canonical); err != nil {
				return apperror.NewInternal(fmt.Sprintf("lookup %s", m.field), err).In(c.Name(), "connectLookup")
			}
		}
	}
	return nil
}

// adopt registers item, taking it out of the partial queue. When another
// instance with the same id won a concurrent load that one is returned.
func (c *Controller) adopt(item entity.Item) (entity.Item, error) {
	rec := item.Base()
	c.mu.Lock()
	c.removePartialLocked(item)
	if existing, ok := c.byID[rec.ID]; ok {
		c.mu.Unlock()
		return existing, nil
	}
	if err := c.addToRecordsLocked(item); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	rec.OnDeleted(func() { c.removeRecord(item) })
	return item, nil
}

func (c *Controller) addToRecordsLocked(item entity.Item) error {
	itemID := item.Base().ID
	if slices.Contains(c.records, item) {
		return apperror.NewInternal(fmt.Sprintf("item %d already registered", itemID), nil).In(c.Name(), "addToRecords")
	}
	if _, ok := c.byID[itemID]; ok {
		return apperror.NewInternal(fmt.Sprintf("different instance with id %d already registered", itemID), nil).
			In(c.Name(), "addToRecords")
	}
	c.records = append(c.records, item)
	c.byID[itemID] = item
	return nil
}

func (c *Controller) removeRecord(item entity.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := slices.Index(c.records, item)
	if i < 0 {
		c.log.Warnw("deleted item not registered", "id", item.Base().ID)
		return
	}
	c.records = slices.Delete(c.records, i, i+1)
	if c.byID[item.Base().ID] == item {
		delete(c.byID, item.Base().ID)
	}
}

// blankLocked returns a new base-type instance owned by the controller.
func (c *Controller) blankLocked() entity.Item {
	item := entity.New(c.base.schema.Type)
	item.Base().SetOwner(c)
	return item
}

// NewRecord returns the blank record submitted by Submit(ctx, nil). It is
// replaced after it was created remotely.
func (c *Controller) NewRecord() entity.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.newRecord
}

// GetNew returns a fresh blank record of the base type.
func (c *Controller) GetNew() (entity.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.base == nil {
		return nil, apperror.NewInternal("no entity type registered", nil).In(c.Name(), "getNew")
	}
	return c.blankLocked(), nil
}

// Submit creates or updates item; nil submits NewRecord. A created item is
// hydrated from the response, registered and, if it was NewRecord, replaced
// by a new blank record.
func (c *Controller) Submit(ctx context.Context, item entity.Item) error {
	if item == nil || reflect.ValueOf(item).IsNil() {
		item = c.NewRecord()
		if item == nil {
			return apperror.NewSubmit("no record to submit", nil).In(c.Name(), "submit")
		}
	}
	payload, err := c.reg.transformer.ToSubmit(ctx, item, c.view())
	if err != nil {
		return wrap(err, c.Name(), "submit")
	}
	rec := item.Base()

	if rec.ID > 0 {
		var etag string
		err := c.call(ctx, "updateRecord", func(ctx context.Context) error {
			var err error
			etag, err = c.reg.transport.UpdateRecord(ctx, c.ref, rec.ID, payload)
			return err
		})
		if err != nil {
			return apperror.NewSubmit(fmt.Sprintf("updating item %d failed", rec.ID), err).In(c.Name(), "submit")
		}
		c.log.Debugw("item updated", "id", rec.ID, "etag", etag)
	} else {
		var created map[string]any
		err := c.call(ctx, "createRecord", func(ctx context.Context) error {
			var err error
			created, err = c.reg.transport.CreateRecord(ctx, c.ref, payload)
			return err
		})
		if err != nil {
			return apperror.NewSubmit("creating item failed", err).In(c.Name(), "submit")
		}
		if _, err := c.getObject(ctx, created, item); err != nil {
			return apperror.NewSubmit("reading created item failed", err).In(c.Name(), "submit")
		}
		if _, err := c.adopt(item); err != nil {
			return err
		}

		c.mu.Lock()
		if c.newRecord == item {
			c.newRecord = c.blankLocked()
		}
		c.mu.Unlock()
		c.log.Debugw("item created", "id", rec.ID)
	}

	rec.ClearDirty()
	c.reg.metrics.Add(ctx, c.reg.metrics.Submits, 1, c.Name())
	return nil
}

// Delete deletes item remotely and removes it from the records.
func (c *Controller) Delete(ctx context.Context, item entity.Item) error {
	if !entity.CanBeDeleted(item) {
		return apperror.NewDelete(fmt.Sprintf("item %d can not be deleted", item.Base().ID), nil).
			In(c.Name(), "delete")
	}
	if err := item.Base().Remote().Delete(ctx); err != nil {
		return err
	}
	item.Base().MarkDeleted()
	return nil
}

// itemHandle is the remote handle of a persisted record.
type itemHandle struct {
	c  *Controller
	id int
}

func (c *Controller) handle(itemID int) entity.RemoteHandle {
	return itemHandle{c: c, id: itemID}
}

// Delete implements entity.RemoteHandle.
func (h itemHandle) Delete(ctx context.Context) error {
	err := h.c.call(ctx, "deleteRecord", func(ctx context.Context) error {
		return h.c.reg.transport.DeleteRecord(ctx, h.c.ref, h.id)
	})
	if err != nil {
		return apperror.NewDelete(fmt.Sprintf("deleting item %d failed", h.id), err).In(h.c.Name(), "delete")
	}
	if item, ok := h.c.GetByIDSync(h.id); ok {
		item.Base().MarkDeleted()
	}
	return nil
}

func idFilter(itemID int) string {
	return fmt.Sprintf("ID eq %d", itemID)
}

func rawID(raw map[string]any) (int, bool) {
	switch v := raw["ID"].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}
