package metadata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func field(t *testing.T, raw map[string]any) FieldInfo {
	t.Helper()
	f, err := ParseFieldInfo(raw)
	require.NoError(t, err)
	return f
}

func TestParseFieldInfo_Predicates(t *testing.T) {
	manager := field(t, map[string]any{
		"InternalName":        "Manager",
		"Title":               "Manager",
		"FieldTypeKind":       float64(20),
		"TypeAsString":        "User",
		"AllowMultipleValues": false,
		"LookupList":          "T2",
	})
	assert.Equal(t, KindUser, manager.Kind())
	assert.False(t, manager.AllowsMultipleValues())
	assert.True(t, manager.HasLookupTarget())
	target, _ := manager.LookupTarget()
	assert.Equal(t, "T2", target)

	// ill-typed metadata is treated as absent
	broken := field(t, map[string]any{
		"InternalName":        "Broken",
		"FieldTypeKind":       json.Number("7"),
		"AllowMultipleValues": "yes",
		"LookupList":          42,
		"IsKeyword":           "true",
		"TermSetId":           nil,
	})
	assert.Equal(t, KindLookup, broken.Kind())
	assert.False(t, broken.AllowsMultipleValues())
	assert.False(t, broken.HasLookupTarget())
	assert.False(t, broken.IsKeyword())
	assert.False(t, broken.HasTermSetID())

	// lookup target only counts for lookup kinds
	text := field(t, map[string]any{"InternalName": "Note", "FieldTypeKind": 2, "LookupList": "X"})
	assert.False(t, text.HasLookupTarget())

	_, err := ParseFieldInfo(map[string]any{"Title": "no name"})
	assert.Error(t, err)
}

func TestFieldInfo_TaxonomyKinds(t *testing.T) {
	single := field(t, map[string]any{"InternalName": "Dept", "FieldTypeKind": 0, "TypeAsString": "TaxonomyFieldType"})
	multi := field(t, map[string]any{
		"InternalName": "Tags", "FieldTypeKind": 0, "TypeAsString": "TaxonomyFieldTypeMulti",
		"AllowMultipleValues": true, "TermSetId": "ts-1",
	})
	plain := field(t, map[string]any{"InternalName": "Odd", "FieldTypeKind": 0})

	assert.Equal(t, KindTaxonomy, single.Kind())
	assert.Equal(t, KindTaxonomyMulti, multi.Kind())
	assert.Equal(t, KindInvalid, plain.Kind())
	assert.True(t, multi.IsCollection())
	ts, ok := multi.TermSetID()
	assert.True(t, ok)
	assert.Equal(t, "ts-1", ts)
}

func TestFieldInfo_ChoiceMetadata(t *testing.T) {
	status := field(t, map[string]any{
		"InternalName":  "Status",
		"FieldTypeKind": 6,
		"Choices":       map[string]any{"results": []any{"Open", "Done"}},
		"FillInChoice":  true,
	})
	choices, ok := status.Choices()
	require.True(t, ok)
	assert.Equal(t, []string{"Open", "Done"}, choices)
	assert.True(t, status.FillInChoice())

	count := field(t, map[string]any{"InternalName": "Count", "FieldTypeKind": 9, "MinimumValue": 1.5, "DisplayFormat": 2})
	_, ok = count.Choices()
	assert.False(t, ok)
	min, ok := count.MinimumValue()
	assert.True(t, ok)
	assert.Equal(t, 1.5, min)
	_, ok = count.MaximumValue()
	assert.False(t, ok)
	df, _ := count.DisplayFormat()
	assert.Equal(t, 2, df)
}

func TestCatalog_HiddenTaxonomyField(t *testing.T) {
	c, err := ParseCatalog([]map[string]any{
		{"InternalName": "Tags", "FieldTypeKind": 0, "TypeAsString": "TaxonomyFieldTypeMulti"},
		{"InternalName": "h1234", "Title": "Tags_0", "FieldTypeKind": 3},
		{"InternalName": "TaxKeyword", "FieldTypeKind": 0, "TypeAsString": "TaxonomyFieldTypeMulti", "IsKeyword": true},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())

	hidden, err := c.HiddenTaxonomyField("Tags")
	require.NoError(t, err)
	assert.Equal(t, "h1234", hidden)

	hidden, err = c.HiddenTaxonomyField("TaxKeyword")
	require.NoError(t, err)
	assert.Equal(t, "TaxKeywordTaxHTField", hidden)

	_, err = c.HiddenTaxonomyField("Other")
	assert.Error(t, err)
}

func TestLookupShape(t *testing.T) {
	assert.Equal(t, []string{"TaxCatchAll/Term", "TaxCatchAll/ID"}, LookupShape("TaxCatchAll"))
	assert.Equal(t, []string{"Manager/Title", "Manager/ID"}, LookupShape("Manager"))
	assert.True(t, IsSubColumn("Manager/Title", "Manager"))
	assert.False(t, IsSubColumn("ManagerX/Title", "Manager"))
}
