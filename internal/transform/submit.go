package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"listbind/internal/core/apperror"
	"listbind/internal/core/entity"
	"listbind/internal/core/id"
	"listbind/internal/metadata"
	"listbind/pkg/logger"
)

// taxonomyValueType is the metadata type of a single taxonomy value.
const taxonomyValueType = "SP.Taxonomy.TaxonomyFieldValue"

var (
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

// ToSubmit builds the create/update payload of item. Read-only properties
// and properties unknown to an optional column are left out; an unknown
// column is an UnknownField error. Multi-value taxonomy terms without guid
// are created in the term store first and the guid stored on the term.
func (t *Transformer) ToSubmit(ctx context.Context, item entity.Item, view View) (map[string]any, error) {
	schema, err := metadata.SchemaOf(reflect.TypeOf(item))
	if err != nil {
		return nil, apperror.NewInternal("inspect entity", err)
	}
	log := logger.FromContext(ctx).With("list", view.List, "entity", schema.Name())
	rec := item.Base()

	out := make(map[string]any)
	for _, p := range schema.Properties {
		if p.Excluded || p.ReadOnly {
			continue
		}
		wire := p.WireName
		if wire == "ID" {
			if rec.ID > 0 {
				out["ID"] = rec.ID
			}
			continue
		}

		info, ok := view.Selected[wire]
		if !ok {
			if metadata.IsSubmitOptional(wire) {
				continue
			}
			return nil, apperror.NewUnknownField(wire).WithDetail("id", rec.ID)
		}
		if info.ReadOnlyField {
			log.Warnw("read-only field not submitted", "field", wire)
			continue
		}
		if wire == metadata.TaxCatchAllField {
			continue
		}

		v := schema.Value(item, p)
		switch info.Kind() {
		case metadata.KindAttachments:
			log.Debugw("attachments are not submitted", "field", wire)

		case metadata.KindTaxonomy:
			if term := termOf(v); term != nil {
				out[wire] = taxonomyValue(term)
			}

		case metadata.KindTaxonomyMulti:
			if err := t.submitTaxonomyMulti(ctx, out, wire, termsOf(v), info, view.Catalog); err != nil {
				return nil, err
			}

		case metadata.KindDateTime:
			if value, ok := dateTimeValue(v); ok {
				out[wire] = value
			}

		case metadata.KindMultiChoice:
			value, ok := plainValue(v)
			if !ok || reflect.ValueOf(value).IsZero() {
				value = []string{}
			}
			out[wire] = map[string]any{"results": value}

		case metadata.KindLookup, metadata.KindUser:
			if err := submitLookup(out, item, schema, p, info); err != nil {
				return nil, err
			}

		case metadata.KindImage:
			if value, ok := imageValue(v); ok {
				out[wire] = value
			}

		default:
			if value, ok := plainValue(v); ok {
				out[wire] = value
			}
		}
	}
	return out, nil
}

func taxonomyValue(term *entity.MetaTerm) map[string]any {
	return map[string]any{
		"__metadata": map[string]any{"type": taxonomyValueType},
		"Label":      term.Label,
		"TermGuid":   term.TermGUID,
		"WssId":      -1,
	}
}

func (t *Transformer) submitTaxonomyMulti(ctx context.Context, out map[string]any, wire string, terms []*entity.MetaTerm, info *metadata.FieldInfo, catalog *metadata.Catalog) error {
	delete(out, wire)
	if len(terms) == 0 {
		return nil
	}
	hidden, err := catalog.HiddenTaxonomyField(wire)
	if err != nil {
		return apperror.NewSubmit("taxonomy field without hidden companion", err).WithDetail("field", wire)
	}
	for _, term := range terms {
		if !id.IsEmpty(term.TermGUID) {
			continue
		}
		termSet, ok := info.TermSetID()
		if !ok {
			return apperror.NewSubmit(fmt.Sprintf("cannot create term %q: field has no term set", term.Label), nil).
				WithDetail("field", wire)
		}
		if t.terms == nil {
			return apperror.NewSubmit(fmt.Sprintf("cannot create term %q: no term store", term.Label), nil).
				WithDetail("field", wire)
		}
		guid, err := t.terms.CreateTerm(ctx, termSet, term.Label)
		if err != nil {
			return apperror.NewSubmit(fmt.Sprintf("creating term %q failed", term.Label), err).
				WithDetail("field", wire)
		}
		term.TermGUID = guid
	}
	out[hidden] = TermString(terms)
	return nil
}

// TermString encodes terms as "-1;#Label|Guid;" entries joined by "#".
func TermString(terms []*entity.MetaTerm) string {
	parts := make([]string, 0, len(terms))
	for _, term := range terms {
		parts = append(parts, fmt.Sprintf("-1;#%s|%s;", term.Label, term.TermGUID))
	}
	return strings.Join(parts, "#")
}

func submitLookup(out map[string]any, item entity.Item, schema *metadata.Schema, p metadata.Property, info *metadata.FieldInfo) error {
	key := p.WireName + "Id"
	lf, ok := schema.LookupOf(item, p)
	if !ok {
		if value, ok := plainValue(schema.Value(item, p)); ok {
			out[key] = value
		}
		return nil
	}
	if lf.LookupState() != entity.Loaded {
		return nil
	}

	if info.AllowsMultipleValues() {
		ids := make([]int, 0, lf.RefCount())
		for i := 0; i < lf.RefCount(); i++ {
			ref := lf.Ref(i)
			if ref == nil || ref.Base().ID <= 0 {
				return apperror.NewUnresolvedReference(p.WireName).WithDetail("id", item.Base().ID)
			}
			ids = append(ids, ref.Base().ID)
		}
		out[key] = map[string]any{"results": ids}
		return nil
	}

	if lf.RefCount() == 0 {
		out[key] = nil
		return nil
	}
	ref := lf.Ref(0)
	if ref == nil || ref.Base().ID <= 0 {
		return apperror.NewUnresolvedReference(p.WireName).WithDetail("id", item.Base().ID)
	}
	out[key] = ref.Base().ID
	return nil
}

func dateTimeValue(v reflect.Value) (any, bool) {
	v = indirect(v)
	if !v.IsValid() {
		return nil, false
	}
	switch {
	case v.Type() == timeType:
		ts := v.Interface().(time.Time)
		if ts.IsZero() {
			return nil, false
		}
		return ts.UTC().Format(time.RFC3339), true
	case v.Kind() == reflect.String:
		if v.String() == "" {
			return nil, false
		}
		return v.String(), true
	}
	return plainValue(v)
}

func imageValue(v reflect.Value) (any, bool) {
	v = indirect(v)
	if !v.IsValid() {
		return nil, false
	}
	if v.Kind() == reflect.String {
		return v.String(), v.String() != ""
	}
	if v.IsZero() {
		return nil, false
	}
	data, err := json.Marshal(v.Interface())
	if err != nil {
		return nil, false
	}
	return string(data), true
}

// plainValue returns the JSON-ready value of a property. Nil pointers and
// zero times are left out.
func plainValue(v reflect.Value) (any, bool) {
	v = indirect(v)
	if !v.IsValid() {
		return nil, false
	}
	switch v.Type() {
	case timeType:
		ts := v.Interface().(time.Time)
		if ts.IsZero() {
			return nil, false
		}
		return ts.UTC().Format(time.RFC3339), true
	case decimalType:
		return json.Number(v.Interface().(decimal.Decimal).String()), true
	}

	switch v.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return v.Interface(), true
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.String {
			return v.Interface(), true
		}
	}

	data, err := json.Marshal(v.Interface())
	if err != nil {
		return nil, false
	}
	var out any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, false
	}
	return out, out != nil
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}
