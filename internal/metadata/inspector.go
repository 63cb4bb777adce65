package metadata

import (
	"fmt"
	"reflect"
	"strings"

	"listbind/internal/core/entity"
)

var lookupFieldType = reflect.TypeOf((*entity.LookupField)(nil)).Elem()

// Property is one exposed member of an entity type.
type Property struct {
	// Name is the Go field name.
	Name string
	// WireName is the remote internal field name.
	WireName string
	// Index is the field index path for reflect.Value.FieldByIndex.
	Index []int
	// Type is the Go field type.
	Type reflect.Type
	// Nested is the struct type referenced by a Lookup property.
	Nested reflect.Type
	// Excluded properties are neither loaded nor submitted.
	Excluded bool
	// ReadOnly properties are loaded but never submitted.
	ReadOnly bool
	// Lookup is set for entity.Lookup properties.
	Lookup bool

	depth int
}

// Schema is the ordered list of exposed properties of an entity type.
type Schema struct {
	Type       reflect.Type
	Properties []Property

	byName map[string]int
	byWire map[string]int
}

// Name returns the entity type name.
func (s *Schema) Name() string { return s.Type.Name() }

// Property returns the property with the given Go name.
func (s *Schema) Property(name string) (Property, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Property{}, false
	}
	return s.Properties[i], true
}

// ByWireName returns the property mapped to a remote field.
func (s *Schema) ByWireName(wire string) (Property, bool) {
	i, ok := s.byWire[wire]
	if !ok {
		return Property{}, false
	}
	return s.Properties[i], true
}

// Value returns the addressable field value of p in item. item must be of
// the schema type.
func (s *Schema) Value(item entity.Item, p Property) reflect.Value {
	return reflect.ValueOf(item).Elem().FieldByIndex(p.Index)
}

// LookupOf returns the Lookup field of p in item.
func (s *Schema) LookupOf(item entity.Item, p Property) (entity.LookupField, bool) {
	if !p.Lookup {
		return nil, false
	}
	lf, ok := s.Value(item, p).Addr().Interface().(entity.LookupField)
	return lf, ok
}

// InspectSchema analyzes an entity struct type and returns its Schema.
// Embedded structs are flattened, a shallower field shadows a deeper one
// with the same wire name.
func InspectSchema(t reflect.Type) (*Schema, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if _, err := entity.ItemType(t); err != nil {
		return nil, err
	}

	s := &Schema{
		Type:   t,
		byName: make(map[string]int),
		byWire: make(map[string]int),
	}
	inspectStruct(t, nil, 0, s)

	for i, p := range s.Properties {
		s.byName[p.Name] = i
		s.byWire[p.WireName] = i
	}
	return s, nil
}

func inspectStruct(t reflect.Type, index []int, depth int, s *Schema) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.PkgPath != "" { // unexported
			continue
		}

		fieldIndex := append(append([]int(nil), index...), i)

		// Handle embedded structs (flattening)
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			inspectStruct(field.Type, fieldIndex, depth+1, s)
			continue
		}

		p := Property{
			Name:     field.Name,
			WireName: jsonName(field),
			Index:    fieldIndex,
			Type:     field.Type,
			depth:    depth,
		}
		applyListTag(&p, field)

		if p.WireName == "-" {
			p.WireName = field.Name
			p.Excluded = true
		}

		if reflect.PointerTo(field.Type).Implements(lookupFieldType) {
			p.Lookup = true
			elem := reflect.New(field.Type).Interface().(entity.LookupField).ElemType()
			if elem.Kind() == reflect.Ptr {
				elem = elem.Elem()
			}
			p.Nested = elem
		}

		addProperty(s, p)
	}
}

func addProperty(s *Schema, p Property) {
	for i, existing := range s.Properties {
		if existing.WireName != p.WireName {
			continue
		}
		if p.depth < existing.depth {
			s.Properties[i] = p
		}
		return
	}
	s.Properties = append(s.Properties, p)
}

func applyListTag(p *Property, field reflect.StructField) {
	tag, ok := field.Tag.Lookup("list")
	if !ok {
		return
	}
	for _, opt := range strings.Split(tag, ",") {
		switch strings.TrimSpace(opt) {
		case "-":
			p.Excluded = true
		case "readonly":
			p.ReadOnly = true
		}
	}
}

func jsonName(field reflect.StructField) string {
	if tag, ok := field.Tag.Lookup("json"); ok {
		parts := strings.Split(tag, ",")
		if parts[0] != "" {
			return parts[0]
		}
	}
	// remote internal names keep the Go spelling
	return field.Name
}

// MustInspect is InspectSchema for package-level entity declarations.
func MustInspect(prototype any) *Schema {
	t, err := entity.ItemType(prototype)
	if err != nil {
		panic(fmt.Sprintf("metadata: %v", err))
	}
	s, err := SchemaOf(t)
	if err != nil {
		panic(fmt.Sprintf("metadata: %v", err))
	}
	return s
}
