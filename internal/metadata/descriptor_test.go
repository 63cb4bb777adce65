package metadata

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listbind/internal/core/apperror"
	"listbind/internal/core/entity"
)

type employee struct {
	entity.ItemBase

	Manager  entity.Lookup[*entity.UserRef] `json:"Manager"`
	Salary   float64                        `json:"Salary"`
	Internal string                         `json:"Internal" list:"-"`
	Notes    string                         `json:"-"`
}

type rated struct {
	entity.ListItem

	Body string `json:"Body"`
}

type noHint struct {
	entity.ItemBase

	Owner int `json:"Owner"`
}

func employeeCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := ParseCatalog([]map[string]any{
		{"InternalName": "ID", "FieldTypeKind": 5, "ReadOnlyField": true},
		{"InternalName": "Title", "FieldTypeKind": 2},
		{"InternalName": "Manager", "FieldTypeKind": 20, "AllowMultipleValues": false, "LookupList": "T2"},
		{"InternalName": "Salary", "FieldTypeKind": 9},
		{"InternalName": "Owner", "FieldTypeKind": 7, "LookupList": "T3"},
	})
	require.NoError(t, err)
	return c
}

func TestInspectSchema(t *testing.T) {
	s, err := InspectSchema(reflect.TypeOf(employee{}))
	require.NoError(t, err)

	names := make([]string, 0, len(s.Properties))
	for _, p := range s.Properties {
		names = append(names, p.WireName)
	}
	assert.Equal(t, []string{"ID", "Title", "Manager", "Salary", "Internal", "Notes"}, names)

	manager, ok := s.ByWireName("Manager")
	require.True(t, ok)
	assert.True(t, manager.Lookup)
	assert.Equal(t, reflect.TypeOf(entity.UserRef{}), manager.Nested)

	internal, _ := s.Property("Internal")
	assert.True(t, internal.Excluded)
	notes, _ := s.Property("Notes")
	assert.True(t, notes.Excluded)

	_, err = InspectSchema(reflect.TypeOf(struct{ X int }{}))
	assert.Error(t, err)
}

func TestInspectSchema_ReadOnlyTag(t *testing.T) {
	s, err := SchemaOf(reflect.TypeOf(entity.ListItem{}))
	require.NoError(t, err)

	author, ok := s.Property("Author")
	require.True(t, ok)
	assert.True(t, author.ReadOnly)
	assert.True(t, author.Lookup)

	attachments, ok := s.Property("HasAttachments")
	require.True(t, ok)
	assert.Equal(t, "Attachments", attachments.WireName)
	assert.False(t, attachments.ReadOnly)
}

func TestBuildDescriptor_UserLookup(t *testing.T) {
	s, err := SchemaOf(reflect.TypeOf(employee{}))
	require.NoError(t, err)
	cat := employeeCatalog(t)

	d, err := BuildDescriptor(context.Background(), s, BuildOptions{Catalog: cat, List: "Staff"})
	require.NoError(t, err)

	assert.Contains(t, d.SelectColumns, "Manager/Title")
	assert.Contains(t, d.SelectColumns, "Manager/ID")
	assert.Contains(t, d.SelectColumns, "Manager/Name")
	assert.NotContains(t, d.SelectColumns, "Internal")
	assert.Equal(t, []string{"Manager"}, d.ExpandColumns)

	managerField, _ := cat.Field("Manager")
	assert.Same(t, managerField, d.PropertyFields["Manager"])
	assert.Same(t, managerField, d.SelectedFields["Manager"])
	assert.Equal(t, []string{"ID", "Title", "Manager", "Salary"}, wireNames(d.Properties()))
}

func TestBuildDescriptor_Deterministic(t *testing.T) {
	s, err := SchemaOf(reflect.TypeOf(employee{}))
	require.NoError(t, err)
	cat := employeeCatalog(t)

	first, err := BuildDescriptor(context.Background(), s, BuildOptions{Catalog: cat})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := BuildDescriptor(context.Background(), s, BuildOptions{Catalog: cat})
		require.NoError(t, err)
		assert.Equal(t, first.SelectColumns, again.SelectColumns)
		assert.Equal(t, first.ExpandColumns, again.ExpandColumns)
	}
}

func TestBuildDescriptor_ChildMode(t *testing.T) {
	s, err := SchemaOf(reflect.TypeOf(rated{}))
	require.NoError(t, err)

	d, err := BuildDescriptor(context.Background(), s, BuildOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"ID", "Title", "Created", "Modified", "ContentTypeId", "Body"}, d.SelectColumns)
	assert.Empty(t, d.ExpandColumns)
	assert.Nil(t, d.PropertyFields)
}

func TestBuildDescriptor_OptionalFieldsTolerated(t *testing.T) {
	s, err := SchemaOf(reflect.TypeOf(rated{}))
	require.NoError(t, err)
	cat, err := ParseCatalog([]map[string]any{
		{"InternalName": "ID", "FieldTypeKind": 5},
		{"InternalName": "Title", "FieldTypeKind": 2},
		{"InternalName": "Author", "FieldTypeKind": 20, "LookupList": "U"},
		{"InternalName": "Editor", "FieldTypeKind": 20, "LookupList": "U"},
		{"InternalName": "Created", "FieldTypeKind": 4},
		{"InternalName": "Modified", "FieldTypeKind": 4},
		{"InternalName": "ContentTypeId", "FieldTypeKind": 2},
		{"InternalName": "Attachments", "FieldTypeKind": 19},
		{"InternalName": "Body", "FieldTypeKind": 3},
	})
	require.NoError(t, err)

	d, err := BuildDescriptor(context.Background(), s, BuildOptions{Catalog: cat, AttachmentsEnabled: false})
	require.NoError(t, err)

	for _, col := range d.SelectColumns {
		assert.NotContains(t, []string{"RatedBy", "TaxKeyword", "LikesCount", "Attachments"}, col)
	}
	assert.Equal(t, []string{"Author", "Editor"}, d.ExpandColumns)

	withAttachments, err := BuildDescriptor(context.Background(), s, BuildOptions{Catalog: cat, AttachmentsEnabled: true})
	require.NoError(t, err)
	assert.Contains(t, withAttachments.SelectColumns, "Attachments")
}

func TestBuildDescriptor_Errors(t *testing.T) {
	cat := employeeCatalog(t)

	missing, err := ParseCatalog([]map[string]any{{"InternalName": "Title", "FieldTypeKind": 2}})
	require.NoError(t, err)
	s, _ := SchemaOf(reflect.TypeOf(employee{}))
	_, err = BuildDescriptor(context.Background(), s, BuildOptions{Catalog: missing})
	assert.True(t, apperror.IsCode(err, apperror.CodeFieldNotFound))

	s, _ = SchemaOf(reflect.TypeOf(noHint{}))
	_, err = BuildDescriptor(context.Background(), s, BuildOptions{Catalog: cat})
	assert.True(t, apperror.IsCode(err, apperror.CodeMissingTypeHint))
}

func wireNames(props []Property) []string {
	out := make([]string, 0, len(props))
	for _, p := range props {
		out = append(out, p.WireName)
	}
	return out
}
