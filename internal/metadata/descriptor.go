package metadata

import (
	"context"
	"slices"

	"listbind/internal/core/apperror"
	"listbind/pkg/logger"
)

// Descriptor is the projection of one entity type against a list catalog:
// the select and expand columns to query and the fields bound to the
// entity's properties.
type Descriptor struct {
	Schema *Schema

	// SelectColumns and ExpandColumns keep property declaration order.
	SelectColumns []string
	ExpandColumns []string

	// SelectedFields maps wire names to their field.
	SelectedFields map[string]*FieldInfo
	// PropertyFields maps Go property names to their field.
	PropertyFields map[string]*FieldInfo
}

// BuildOptions configure BuildDescriptor.
type BuildOptions struct {
	// Catalog of the owning list. Nil builds the minimal projection used when
	// the type is the target of a lookup.
	Catalog *Catalog
	// AttachmentsEnabled reflects the owning list's setting.
	AttachmentsEnabled bool
	// List names the owning list in errors and logs.
	List string
	// Schemas resolves nested lookup types, defaults to the process registry.
	Schemas *Registry
}

// BuildDescriptor walks the schema properties against the catalog.
func BuildDescriptor(ctx context.Context, schema *Schema, opts BuildOptions) (*Descriptor, error) {
	if opts.Schemas == nil {
		opts.Schemas = defaultRegistry
	}
	log := logger.FromContext(ctx).With("list", opts.List, "entity", schema.Name())

	d := &Descriptor{Schema: schema}
	if opts.Catalog != nil {
		d.SelectedFields = make(map[string]*FieldInfo)
		d.PropertyFields = make(map[string]*FieldInfo)
	}

	for _, p := range schema.Properties {
		if p.Excluded {
			continue
		}
		field := p.WireName

		if opts.Catalog == nil {
			switch {
			case IsIgnoredSubExpand(field):
			case p.Nested != nil:
				log.Warnw("nested lookup ignored in lookup projection, create a controller to access it",
					"property", p.Name, "field", field)
			default:
				d.SelectColumns = append(d.SelectColumns, field)
			}
			continue
		}

		info, ok := opts.Catalog.Field(field)
		switch {
		case !ok:
			if !IsOptionalField(field) {
				return nil, apperror.NewFieldNotFound(schema.Name(), p.Name, field).
					WithDetail("list", opts.List)
			}
			log.Debugw("optional field not in list, ignored", "property", p.Name, "field", field)

		case info.IsLookup():
			if p.Nested == nil {
				return nil, apperror.NewMissingTypeHint(schema.Name(), p.Name, field).
					WithDetail("list", opts.List).
					WithDetail("type", info.TypeAsString)
			}
			nested, err := opts.Schemas.Register(p.Nested)
			if err != nil {
				return nil, apperror.NewMissingTypeHint(schema.Name(), p.Name, field).WithCause(err)
			}
			child, err := BuildDescriptor(ctx, nested, BuildOptions{List: opts.List, Schemas: opts.Schemas})
			if err != nil {
				return nil, err
			}
			for _, col := range child.SelectColumns {
				d.SelectColumns = append(d.SelectColumns, field+"/"+col)
			}
			d.ExpandColumns = append(d.ExpandColumns, field)
			d.SelectedFields[field] = info
			d.PropertyFields[p.Name] = info

		case info.Kind() == KindAttachments && !opts.AttachmentsEnabled:
			log.Debugw("attachments disabled, ignored", "property", p.Name)

		default:
			d.SelectColumns = append(d.SelectColumns, field)
			d.SelectedFields[field] = info
			d.PropertyFields[p.Name] = info
		}
	}
	return d, nil
}

// Properties returns the bound properties in declaration order.
func (d *Descriptor) Properties() []Property {
	out := make([]Property, 0, len(d.PropertyFields))
	for _, p := range d.Schema.Properties {
		if _, ok := d.PropertyFields[p.Name]; ok {
			out = append(out, p)
		}
	}
	return out
}

// HasSelect reports whether column is selected.
func (d *Descriptor) HasSelect(column string) bool {
	return slices.Contains(d.SelectColumns, column)
}
