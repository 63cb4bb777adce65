package list

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"listbind/internal/core/apperror"
	"listbind/internal/core/entity"
	"listbind/internal/metadata"
)

// expandableKinds are the field kinds a lookup target may select and still be
// expanded server-side.
var expandableKinds = []metadata.FieldKind{
	metadata.KindCounter,
	metadata.KindInteger,
	metadata.KindNumber,
	metadata.KindText,
	metadata.KindDateTime,
}

// Registration is an entity type registered on a controller.
type Registration struct {
	c      *Controller
	schema *metadata.Schema
	filter string

	// guarded by c.mu
	descriptor *metadata.Descriptor
	folded     bool
}

// Type returns the registered struct type.
func (r *Registration) Type() reflect.Type { return r.schema.Type }

// Filter returns the filter LoadAll uses.
func (r *Registration) Filter() string { return r.filter }

// Controller returns the owning controller.
func (r *Registration) Controller() *Controller { return r.c }

// Descriptor returns the type's projection, nil until the list is initialised.
func (r *Registration) Descriptor() *metadata.Descriptor {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.descriptor
}

// LoadAll loads the records matching the registration filter.
func (r *Registration) LoadAll(ctx context.Context) error {
	return r.c.LoadAll(ctx, r.filter)
}

// RegisterModel registers an entity type, given as a prototype such as
// (*Task)(nil). Registering a type twice returns the first registration.
// On an initialised controller the type is folded into the projection at
// once and missing lookup controllers are created.
func (c *Controller) RegisterModel(ctx context.Context, prototype any, filter string) (*Registration, error) {
	t, err := entity.ItemType(prototype)
	if err != nil {
		return nil, apperror.NewInternal("register model", err).In(c.Name(), "registerModel")
	}
	schema, err := c.reg.schemas.Register(t)
	if err != nil {
		return nil, apperror.NewInternal("inspect model", err).In(c.Name(), "registerModel")
	}

	c.mu.Lock()
	if existing, ok := c.modelType[t]; ok {
		c.mu.Unlock()
		return existing, nil
	}
	if other := c.unrelatedModelLocked(t); other != nil {
		c.mu.Unlock()
		return nil, apperror.NewInternal(
			fmt.Sprintf("%s neither embeds nor is embedded in registered type %s", t, other), nil).
			In(c.Name(), "registerModel").
			WithDetail("entity", t.String())
	}
	r := &Registration{c: c, schema: schema, filter: filter}
	c.models = append(c.models, r)
	c.modelType[t] = r
	ready := c.state == stateReady
	c.mu.Unlock()

	if !ready {
		return r, nil
	}
	if err := c.fold(ctx, r); err != nil {
		c.unregister(r)
		return nil, err
	}
	if err := c.buildLookupControllers(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// unrelatedModelLocked returns a registered type that t cannot share
// records with. Records are instances of the widest type and every
// registered type views them through entity.As, so all types must lie on
// one embedding chain.
func (c *Controller) unrelatedModelLocked(t reflect.Type) reflect.Type {
	for _, m := range c.models {
		other := m.schema.Type
		if !entity.Convertible(t, reflect.PointerTo(other)) && !entity.Convertible(other, reflect.PointerTo(t)) {
			return other
		}
	}
	return nil
}

func (c *Controller) unregister(r *Registration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = slices.DeleteFunc(c.models, func(m *Registration) bool { return m == r })
	delete(c.modelType, r.schema.Type)
}

func (c *Controller) unfoldedLocked() []*Registration {
	var out []*Registration
	for _, m := range c.models {
		if !m.folded {
			out = append(out, m)
		}
	}
	return out
}

// fold merges the projection of r into the aggregate. The type with the
// most select columns becomes the base type records are built from.
func (c *Controller) fold(ctx context.Context, r *Registration) error {
	c.mu.Lock()
	if r.folded {
		c.mu.Unlock()
		return nil
	}
	opts := metadata.BuildOptions{
		Catalog:            c.catalog,
		AttachmentsEnabled: c.info.EnableAttachments,
		List:               c.Name(),
		Schemas:            c.reg.schemas,
	}
	c.mu.Unlock()

	d, err := metadata.BuildDescriptor(ctx, r.schema, opts)
	if err != nil {
		return wrap(err, c.Name(), "registerModel")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if r.folded {
		return nil
	}
	r.descriptor = d
	r.folded = true

	for _, col := range d.SelectColumns {
		c.addSelectLocked(col)
	}
	for _, col := range d.ExpandColumns {
		if !slices.Contains(c.expands, col) {
			c.expands = append(c.expands, col)
		}
	}
	for _, p := range r.schema.Properties {
		if info, ok := d.SelectedFields[p.WireName]; ok {
			if _, seen := c.selected[p.WireName]; !seen {
				c.selectedOrder = append(c.selectedOrder, p.WireName)
			}
			c.selected[p.WireName] = info
		}
	}

	if c.base == nil || len(c.base.descriptor.SelectColumns) < len(d.SelectColumns) {
		c.base = r
		c.newRecord = c.blankLocked()
		c.log.Debugw("base model", "entity", r.schema.Name(), "select", len(d.SelectColumns))
	}
	return nil
}

// addSelectLocked adds a select column; sub-columns of a degraded lookup
// are kept in their minimal shape.
func (c *Controller) addSelectLocked(col string) {
	for _, m := range c.mappings {
		if m.degraded && metadata.IsSubColumn(col, m.field) && !slices.Contains(metadata.LookupShape(m.field), col) {
			return
		}
	}
	if !slices.Contains(c.selects, col) {
		c.selects = append(c.selects, col)
	}
}

type pendingLookup struct {
	field  string
	listID string
	nested []reflect.Type
}

// buildLookupControllers creates the controller of every lookup column
// without mapping, registers the nested types on it and decides whether the
// column can be expanded server-side.
func (c *Controller) buildLookupControllers(ctx context.Context) error {
	c.mu.Lock()
	var pending []pendingLookup
	for _, field := range c.selectedOrder {
		info := c.selected[field]
		if !info.IsLookup() {
			continue
		}
		if _, ok := c.mappings[field]; ok {
			continue
		}
		listID, ok := info.LookupTarget()
		if !ok {
			c.mu.Unlock()
			return apperror.NewInternal(
				fmt.Sprintf("no lookup list for %s of type %s[%d]", field, info.TypeAsString, info.FieldTypeKind), nil).
				In(c.Name(), "createLookupControllers")
		}
		l := pendingLookup{field: field, listID: listID}
		for _, m := range c.models {
			if p, ok := m.schema.ByWireName(field); ok && p.Nested != nil && !slices.Contains(l.nested, p.Nested) {
				l.nested = append(l.nested, p.Nested)
			}
		}
		pending = append(pending, l)
	}
	siteURL := c.ref.SiteURL
	c.mu.Unlock()

	for _, l := range pending {
		target, err := c.reg.getOrCreateByID(ctx, siteURL, l.listID)
		if err != nil {
			return wrap(err, c.Name(), "createLookupControllers")
		}
		for _, t := range l.nested {
			if _, err := target.RegisterModel(ctx, t, ""); err != nil {
				return wrap(err, c.Name(), "createLookupControllers")
			}
		}
		notExpandable := target.AutoDrain() || target.hasNotExpandableField()

		c.mu.Lock()
		if _, exists := c.mappings[l.field]; exists {
			c.mu.Unlock()
			continue
		}
		if notExpandable {
			if err := c.changeExpandToLookupLocked(l.field); err != nil {
				c.mu.Unlock()
				return err
			}
		}
		c.mappings[l.field] = &lookupMapping{
			listID:     l.listID,
			field:      l.field,
			degraded:   notExpandable,
			controller: target,
		}
		c.mappingOrder = append(c.mappingOrder, l.field)
		c.mu.Unlock()

		c.log.Debugw("lookup controller", "field", l.field, "target", target.Name(), "expand", !notExpandable)
		if notExpandable {
			target.StartDraining(ctx)
		}
	}
	return nil
}

// hasNotExpandableField reports whether some selected field rules out
// expanding this list from a lookup: multi-valued fields and kinds other
// than counter, number, text and date.
func (c *Controller) hasNotExpandableField() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, info := range c.selected {
		if info.AllowsMultipleValues() || !slices.Contains(expandableKinds, info.Kind()) {
			return true
		}
	}
	return false
}

// changeExpandToLookupLocked replaces every field/* select column by the
// minimal lookup shape.
func (c *Controller) changeExpandToLookupLocked(field string) error {
	kept := slices.DeleteFunc(slices.Clone(c.selects), func(col string) bool {
		return metadata.IsSubColumn(col, field)
	})
	if len(kept) == len(c.selects) {
		return apperror.NewInternal(fmt.Sprintf("no %s/* column to replace in %v", field, c.selects), nil).
			In(c.Name(), "changeExpandToLookup")
	}
	c.selects = append(kept, metadata.LookupShape(field)...)
	return nil
}

// handleFailedExpand downgrades field and every other lookup column
// targeting the same list to the minimal shape and makes the target load
// the referenced records itself.
func (c *Controller) handleFailedExpand(ctx context.Context, field string) error {
	c.mu.Lock()
	m, ok := c.mappings[field]
	if !ok {
		c.mu.Unlock()
		return apperror.NewInternal(fmt.Sprintf("no lookup mapping for expanded field %s", field), nil).
			In(c.Name(), "handleFailedExpand")
	}
	startTarget := !m.degraded
	var siblings []string
	for _, name := range c.mappingOrder {
		s := c.mappings[name]
		if s.listID != m.listID {
			continue
		}
		s.degraded = true
		if err := c.changeExpandToLookupLocked(s.field); err != nil {
			c.mu.Unlock()
			return err
		}
		siblings = append(siblings, s.field)
	}
	target := m.controller
	c.mu.Unlock()

	c.log.Infow("lookup columns downgraded", "field", field, "same_target", siblings)
	if startTarget {
		target.StartDraining(ctx)
	} else {
		c.log.Warnw("lookup already loaded client-side", "field", field)
	}
	return nil
}
