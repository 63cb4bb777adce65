package metadata

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// FieldKind is the remote field type (FieldTypeKind on the wire).
type FieldKind int

const (
	KindInvalid     FieldKind = 0
	KindInteger     FieldKind = 1
	KindText        FieldKind = 2
	KindNote        FieldKind = 3
	KindDateTime    FieldKind = 4
	KindCounter     FieldKind = 5
	KindChoice      FieldKind = 6
	KindLookup      FieldKind = 7
	KindBoolean     FieldKind = 8
	KindNumber      FieldKind = 9
	KindCurrency    FieldKind = 10
	KindURL         FieldKind = 11
	KindComputed    FieldKind = 12
	KindThreading   FieldKind = 13
	KindGUID        FieldKind = 14
	KindMultiChoice FieldKind = 15
	KindGridChoice  FieldKind = 16
	KindCalculated  FieldKind = 17
	KindFile        FieldKind = 18
	KindAttachments FieldKind = 19
	KindUser        FieldKind = 20
	KindImage       FieldKind = 34

	// Taxonomy kinds are reported as KindInvalid with a TypeAsString; Kind()
	// resolves them to these values.
	KindTaxonomy      FieldKind = 1000
	KindTaxonomyMulti FieldKind = 1001
)

const (
	typeTaxonomy      = "TaxonomyFieldType"
	typeTaxonomyMulti = "TaxonomyFieldTypeMulti"
)

var kindNames = map[FieldKind]string{
	KindInvalid:       "Invalid",
	KindInteger:       "Integer",
	KindText:          "Text",
	KindNote:          "Note",
	KindDateTime:      "DateTime",
	KindCounter:       "Counter",
	KindChoice:        "Choice",
	KindLookup:        "Lookup",
	KindBoolean:       "Boolean",
	KindNumber:        "Number",
	KindCurrency:      "Currency",
	KindURL:           "URL",
	KindComputed:      "Computed",
	KindThreading:     "Threading",
	KindGUID:          "Guid",
	KindMultiChoice:   "MultiChoice",
	KindGridChoice:    "GridChoice",
	KindCalculated:    "Calculated",
	KindFile:          "File",
	KindAttachments:   "Attachments",
	KindUser:          "User",
	KindImage:         "Image",
	KindTaxonomy:      "Taxonomy",
	KindTaxonomyMulti: "TaxonomyMulti",
}

func (k FieldKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FieldKind(%d)", int(k))
}

// FieldInfo describes one remote column. Values are immutable once the
// catalog is loaded. Optional metadata is only present for some field types;
// the predicate methods return false for absent or ill-typed values.
type FieldInfo struct {
	InternalName  string
	Title         string
	TypeAsString  string
	FieldTypeKind FieldKind
	ReadOnlyField bool
	Hidden        bool
	Required      bool

	allowMultipleValues *bool
	lookupList          *string
	lookupField         *string
	isKeyword           *bool
	termSetID           *string
	choices             []string
	displayFormat       *int
	fillInChoice        *bool
	richText            *bool
	minimumValue        *float64
	maximumValue        *float64
	timeFormat          *int
}

// Kind returns the field kind with taxonomy fields resolved.
func (f *FieldInfo) Kind() FieldKind {
	if f.FieldTypeKind == KindInvalid {
		switch f.TypeAsString {
		case typeTaxonomy:
			return KindTaxonomy
		case typeTaxonomyMulti:
			return KindTaxonomyMulti
		}
	}
	return f.FieldTypeKind
}

// AllowsMultipleValues reports whether the column holds a collection.
func (f *FieldInfo) AllowsMultipleValues() bool {
	return f.allowMultipleValues != nil && *f.allowMultipleValues
}

// IsCollection reports whether values of the column arrive as arrays:
// multi-valued fields and multi-choice fields.
func (f *FieldInfo) IsCollection() bool {
	return f.AllowsMultipleValues() || f.Kind() == KindMultiChoice
}

// IsLookup reports whether the column references items of another list.
func (f *FieldInfo) IsLookup() bool {
	return f.FieldTypeKind == KindLookup || f.FieldTypeKind == KindUser
}

// HasLookupTarget reports whether the column is a Lookup/User column with a
// target list id.
func (f *FieldInfo) HasLookupTarget() bool {
	_, ok := f.LookupTarget()
	return ok
}

// LookupTarget returns the target list id of a Lookup/User column.
func (f *FieldInfo) LookupTarget() (string, bool) {
	if !f.IsLookup() || f.lookupList == nil || *f.lookupList == "" {
		return "", false
	}
	return *f.lookupList, true
}

// LookupField returns the shown column of the target list, if known.
func (f *FieldInfo) LookupField() (string, bool) {
	if f.lookupField == nil {
		return "", false
	}
	return *f.lookupField, true
}

// IsKeyword reports whether the column is the enterprise keyword column.
func (f *FieldInfo) IsKeyword() bool {
	return f.isKeyword != nil && *f.isKeyword
}

// HasTermSetID reports whether the column is bound to a term set.
func (f *FieldInfo) HasTermSetID() bool {
	_, ok := f.TermSetID()
	return ok
}

// TermSetID returns the term set of a taxonomy column.
func (f *FieldInfo) TermSetID() (string, bool) {
	if f.termSetID == nil {
		return "", false
	}
	return *f.termSetID, true
}

// Choices returns the allowed values of a (multi) choice column.
func (f *FieldInfo) Choices() ([]string, bool) {
	if f.Kind() != KindChoice && f.Kind() != KindMultiChoice {
		return nil, false
	}
	if f.choices == nil {
		return nil, false
	}
	return slices.Clone(f.choices), true
}

func (f *FieldInfo) DisplayFormat() (int, bool) { return derefInt(f.displayFormat) }

func (f *FieldInfo) TimeFormat() (int, bool) { return derefInt(f.timeFormat) }

func (f *FieldInfo) FillInChoice() bool { return f.fillInChoice != nil && *f.fillInChoice }

func (f *FieldInfo) RichText() bool { return f.richText != nil && *f.richText }

func (f *FieldInfo) MinimumValue() (float64, bool) { return derefFloat(f.minimumValue) }

func (f *FieldInfo) MaximumValue() (float64, bool) { return derefFloat(f.maximumValue) }

// IsOptional reports whether the column may be missing from a list without
// failing descriptor construction.
func (f *FieldInfo) IsOptional() bool {
	return IsOptionalField(f.InternalName)
}

func derefInt(p *int) (int, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func derefFloat(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

// ParseFieldInfo reads a field description as returned by the remote fields
// endpoint. Unknown keys are ignored, ill-typed optional values are treated
// as absent.
func ParseFieldInfo(raw map[string]any) (FieldInfo, error) {
	name, _ := raw["InternalName"].(string)
	if name == "" {
		return FieldInfo{}, fmt.Errorf("field without InternalName")
	}
	kind, _ := intValue(raw["FieldTypeKind"])

	f := FieldInfo{
		InternalName:  name,
		Title:         stringOr(raw["Title"], name),
		TypeAsString:  stringOr(raw["TypeAsString"], ""),
		FieldTypeKind: FieldKind(kind),
		ReadOnlyField: boolValue(raw["ReadOnlyField"]),
		Hidden:        boolValue(raw["Hidden"]),
		Required:      boolValue(raw["Required"]),

		allowMultipleValues: boolPtr(raw["AllowMultipleValues"]),
		lookupList:          stringPtr(raw["LookupList"]),
		lookupField:         stringPtr(raw["LookupField"]),
		isKeyword:           boolPtr(raw["IsKeyword"]),
		termSetID:           stringPtr(raw["TermSetId"]),
		choices:             stringSlice(raw["Choices"]),
		displayFormat:       intPtr(raw["DisplayFormat"]),
		fillInChoice:        boolPtr(raw["FillInChoice"]),
		richText:            boolPtr(raw["RichText"]),
		minimumValue:        floatPtr(raw["MinimumValue"]),
		maximumValue:        floatPtr(raw["MaximumValue"]),
		timeFormat:          intPtr(raw["TimeFormat"]),
	}
	return f, nil
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func boolValue(v any) bool {
	b, _ := v.(bool)
	return b
}

func boolPtr(v any) *bool {
	if b, ok := v.(bool); ok {
		return &b
	}
	return nil
}

func stringPtr(v any) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}

func intPtr(v any) *int {
	if i, ok := intValue(v); ok {
		return &i
	}
	return nil
}

func floatPtr(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return &f
		}
	}
	return nil
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}

func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return slices.Clone(s)
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil
			}
			out = append(out, str)
		}
		return out
	case map[string]any:
		// {"results": [...]} wrapper
		if results, ok := s["results"]; ok {
			return stringSlice(results)
		}
	}
	return nil
}

///////////////
// Catalog   //
///////////////

// Catalog is the field metadata of one list, keyed by internal name.
// It is read-only once built; a schema refresh builds a new catalog.
type Catalog struct {
	fields map[string]*FieldInfo
	order  []string
}

// NewCatalog builds a catalog from field descriptions. Later duplicates of
// an internal name replace earlier ones.
func NewCatalog(fields []FieldInfo) *Catalog {
	c := &Catalog{fields: make(map[string]*FieldInfo, len(fields))}
	for i := range fields {
		f := fields[i]
		if _, exists := c.fields[f.InternalName]; !exists {
			c.order = append(c.order, f.InternalName)
		}
		c.fields[f.InternalName] = &f
	}
	return c
}

// ParseCatalog builds a catalog from raw wire field descriptions.
func ParseCatalog(raw []map[string]any) (*Catalog, error) {
	fields := make([]FieldInfo, 0, len(raw))
	for i, r := range raw {
		f, err := ParseFieldInfo(r)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		fields = append(fields, f)
	}
	return NewCatalog(fields), nil
}

// Field returns the field with the given internal name.
func (c *Catalog) Field(name string) (*FieldInfo, bool) {
	if c == nil {
		return nil, false
	}
	f, ok := c.fields[name]
	return f, ok
}

// Fields returns all fields in catalog order.
func (c *Catalog) Fields() []*FieldInfo {
	out := make([]*FieldInfo, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.fields[name])
	}
	return out
}

// Len returns the number of fields.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.fields)
}

// HiddenTaxonomyField returns the internal name of the hidden note field that
// carries the term string of a multi-value taxonomy column.
func (c *Catalog) HiddenTaxonomyField(name string) (string, error) {
	if f, ok := c.Field(name); ok && f.IsKeyword() {
		return "TaxKeywordTaxHTField", nil
	}
	title := name + "_0"
	for _, f := range c.Fields() {
		if f.Title == title {
			return f.InternalName, nil
		}
	}
	return "", fmt.Errorf("no hidden field %q for %s, is it a multi-value taxonomy field?", title, name)
}

///////////////////////
// Field name lists  //
///////////////////////

// optionalFields may be missing from a list's catalog; they are omitted from
// the projection instead of failing.
var optionalFields = []string{
	"Attachments", "TaxKeyword", "TaxCatchAll", "AverageRating", "RatingCount",
	"RatedBy", "Ratings", "LikesCount", "LikedBy",
}

// ignoredSubExpands are never selected when a type is used as lookup target.
var ignoredSubExpands = []string{
	"Author", "Editor", "Attachments", "AverageRating", "RatingCount", "Ratings",
	"LikesCount", "TaxKeyword", "TaxCatchAll", "RatedBy", "LikedBy",
}

// submitOptionalFields are dropped on submit when the catalog lacks them.
var submitOptionalFields = []string{"Attachments", "TaxKeyword", "TaxCatchAll"}

// IsOptionalField reports whether a missing column is tolerated.
func IsOptionalField(name string) bool { return slices.Contains(optionalFields, name) }

// IsIgnoredSubExpand reports whether a column is skipped in lookup projections.
func IsIgnoredSubExpand(name string) bool { return slices.Contains(ignoredSubExpands, name) }

// IsSubmitOptional reports whether a column unknown to the catalog is
// silently dropped on submit.
func IsSubmitOptional(name string) bool { return slices.Contains(submitOptionalFields, name) }

// TaxCatchAllField is the hidden lookup column holding all terms of an item.
const TaxCatchAllField = "TaxCatchAll"

// LookupShape returns the minimal columns selected for a lookup that is
// resolved client-side.
func LookupShape(field string) []string {
	if field == TaxCatchAllField {
		return []string{field + "/Term", field + "/ID"}
	}
	return []string{field + "/Title", field + "/ID"}
}

// IsSubColumn reports whether column is an expansion column of field.
func IsSubColumn(column, field string) bool {
	return strings.HasPrefix(column, field+"/")
}
