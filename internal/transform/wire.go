// Package transform converts between wire records and entity instances.
package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"listbind/internal/core/apperror"
	"listbind/internal/core/entity"
	"listbind/internal/infrastructure/remote"
	"listbind/internal/metadata"
	"listbind/pkg/logger"
)

// View is the list-side context of a conversion.
type View struct {
	// List names the list in logs and errors.
	List string
	// Catalog is the list's full field catalog.
	Catalog *metadata.Catalog
	// Selected maps selected wire names to their field.
	Selected map[string]*metadata.FieldInfo
	// Connect resolves lookup properties of a decoded instance.
	Connect func(ctx context.Context, item entity.Item) error
	// Handle returns the live remote handle of a persisted record.
	Handle func(id int) entity.RemoteHandle
}

// Transformer converts records of one or more lists.
type Transformer struct {
	terms remote.TermStore
}

// New returns a Transformer; terms is used to create taxonomy terms on
// submit and may be nil when no list has taxonomy columns.
func New(terms remote.TermStore) *Transformer {
	return &Transformer{terms: terms}
}

// FromWire hydrates into from a raw record: multi-value wrappers are
// normalised, nulls dropped, image values parsed, the record merged into the
// instance, unset collections emptied, lookups connected, single taxonomy
// values resolved and finally the source and remote handle attached.
// raw is modified in place.
func (t *Transformer) FromWire(ctx context.Context, raw map[string]any, into entity.Item, view View) error {
	NormalizeMultiValues(raw, view.Selected)
	RemoveNulls(raw)
	if err := ParseImages(ctx, raw, view.Selected); err != nil {
		return err
	}
	if err := Decode(raw, into); err != nil {
		return err
	}
	rec := into.Base()
	rec.SetSource(raw)

	schema, err := metadata.SchemaOf(reflect.TypeOf(into))
	if err != nil {
		return apperror.NewInternal("inspect entity", err)
	}
	SetEmptyCollections(ctx, into, schema, view.Selected, raw)

	if view.Connect != nil {
		if err := view.Connect(ctx, into); err != nil {
			return err
		}
	}
	FixSingleTaxonomy(ctx, into, schema, view.Selected)

	if rec.ID > 0 && rec.Remote() == nil && view.Handle != nil {
		rec.SetRemote(view.Handle(rec.ID))
	}
	return nil
}

// NormalizeMultiValues replaces {"results": [...]} wrappers of collection
// fields by the plain array. Applying it twice is the same as once.
func NormalizeMultiValues(raw map[string]any, selected map[string]*metadata.FieldInfo) map[string]any {
	for name, info := range selected {
		if !info.IsCollection() {
			continue
		}
		if wrapper, ok := raw[name].(map[string]any); ok {
			if results, ok := wrapper["results"]; ok {
				raw[name] = results
			}
		}
	}
	return raw
}

// RemoveNulls deletes keys whose value is null so that instance defaults
// are kept.
func RemoveNulls(raw map[string]any) map[string]any {
	for k, v := range raw {
		if v == nil {
			delete(raw, k)
		}
	}
	return raw
}

// ParseImages replaces JSON-string image values by the parsed object.
func ParseImages(ctx context.Context, raw map[string]any, selected map[string]*metadata.FieldInfo) error {
	for name, info := range selected {
		if info.Kind() != metadata.KindImage {
			continue
		}
		switch v := raw[name].(type) {
		case nil:
		case string:
			if v == "" {
				delete(raw, name)
				continue
			}
			var image map[string]any
			if err := json.Unmarshal([]byte(v), &image); err != nil {
				return apperror.NewData(fmt.Sprintf("image field %s is not valid JSON", name)).WithCause(err)
			}
			raw[name] = image
		case map[string]any:
		default:
			logger.Error(ctx, "image field should be a string", "field", name, "type", fmt.Sprintf("%T", v))
		}
	}
	return nil
}

// Decode merges raw into an existing instance: present keys overwrite,
// absent keys and unknown keys are left alone.
func Decode(raw map[string]any, into entity.Item) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return apperror.NewData("record is not serialisable").WithCause(err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return apperror.NewData(fmt.Sprintf("record does not fit %T", into)).WithCause(err)
	}
	return nil
}

// SetEmptyCollections makes every collection property a (possibly empty)
// collection; unset and deferred values become empty.
func SetEmptyCollections(ctx context.Context, item entity.Item, schema *metadata.Schema, selected map[string]*metadata.FieldInfo, raw map[string]any) {
	for _, p := range schema.Properties {
		if p.Excluded {
			continue
		}
		info, ok := selected[p.WireName]
		if !ok || !info.IsCollection() {
			continue
		}
		deferred := entity.IsDeferredValue(raw[p.WireName])

		if lf, ok := schema.LookupOf(item, p); ok {
			if lf.LookupState() == entity.Loaded && !deferred {
				lf.SetMulti(true)
				continue
			}
			if deferred {
				logger.Warn(ctx, "deferred collection replaced by empty collection", "field", p.WireName, "id", item.Base().ID)
			}
			lf.SetMulti(true)
			lf.Reset()
			continue
		}

		v := schema.Value(item, p)
		if v.Kind() != reflect.Slice {
			continue
		}
		if deferred {
			logger.Warn(ctx, "deferred collection replaced by empty collection", "field", p.WireName, "id", item.Base().ID)
			v.Set(reflect.MakeSlice(v.Type(), 0, 0))
		} else if v.IsNil() {
			v.Set(reflect.MakeSlice(v.Type(), 0, 0))
		}
	}
}

// FixSingleTaxonomy resolves single taxonomy values whose label holds the
// id of a catch-all entry. A missing catch-all collection is logged and the
// value left as is.
func FixSingleTaxonomy(ctx context.Context, item entity.Item, schema *metadata.Schema, selected map[string]*metadata.FieldInfo) {
	for _, p := range schema.Properties {
		if p.Excluded {
			continue
		}
		info, ok := selected[p.WireName]
		if !ok || info.Kind() != metadata.KindTaxonomy {
			continue
		}
		term := termOf(schema.Value(item, p))
		if term == nil || term.Label == "" {
			continue
		}
		index, err := strconv.Atoi(term.Label)
		if err != nil {
			continue // already a label
		}

		holder, ok := item.(entity.TaxCatchAllHolder)
		var catchAll []*entity.TaxCatchAll
		if ok {
			catchAll, ok = holder.CatchAll()
		}
		if !ok {
			logger.Error(ctx, "taxonomy value without catch-all collection",
				"field", p.WireName, "label", term.Label, "id", item.Base().ID)
			continue
		}
		found := false
		for _, entry := range catchAll {
			if entry != nil && entry.ID == index {
				term.Label = entry.Term
				found = true
				break
			}
		}
		if !found {
			logger.Error(ctx, "taxonomy value not in catch-all collection",
				"field", p.WireName, "label", term.Label, "id", item.Base().ID)
		}
	}
}

var metaTermType = reflect.TypeOf(entity.MetaTerm{})

// termOf returns the MetaTerm held by v (MetaTerm or *MetaTerm).
func termOf(v reflect.Value) *entity.MetaTerm {
	switch {
	case v.Type() == metaTermType:
		return v.Addr().Interface().(*entity.MetaTerm)
	case v.Kind() == reflect.Ptr && v.Type().Elem() == metaTermType && !v.IsNil():
		return v.Interface().(*entity.MetaTerm)
	}
	return nil
}

// termsOf returns the MetaTerms of a []MetaTerm or []*MetaTerm value.
func termsOf(v reflect.Value) []*entity.MetaTerm {
	if v.Kind() != reflect.Slice {
		return nil
	}
	out := make([]*entity.MetaTerm, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		if term := termOf(v.Index(i)); term != nil {
			out = append(out, term)
		}
	}
	return out
}
