package transform

import (
	"context"
	"maps"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listbind/internal/core/apperror"
	"listbind/internal/core/entity"
	"listbind/internal/core/id"
	"listbind/internal/infrastructure/remote/memremote"
	"listbind/internal/metadata"
)

const termSet = "7a1b2c3d-0000-4000-8000-000000000001"

type scalarItem struct {
	entity.ItemBase

	Count  int             `json:"Count"`
	Price  decimal.Decimal `json:"Price"`
	Due    time.Time       `json:"Due"`
	Done   bool            `json:"Done"`
	Colors []string        `json:"Colors"`
	Notes  string          `json:"-"`
}

type taxItem struct {
	entity.ListItem

	Category *entity.MetaTerm  `json:"Category"`
	Topics   []entity.MetaTerm `json:"Topics"`
}

type refItem struct {
	entity.ItemBase

	Owner    entity.Lookup[*entity.UserRef]  `json:"Owner"`
	Related  entity.Lookup[*entity.ItemBase] `json:"Related"`
	Computed string                          `json:"Computed"`
}

func viewOf(t *testing.T, fields ...map[string]any) View {
	t.Helper()
	catalog, err := metadata.ParseCatalog(fields)
	require.NoError(t, err)
	selected := make(map[string]*metadata.FieldInfo)
	for _, f := range catalog.Fields() {
		selected[f.InternalName] = f
	}
	return View{List: "Tasks", Catalog: catalog, Selected: selected}
}

func scalarView(t *testing.T) View {
	return viewOf(t,
		memremote.Counter("ID"),
		memremote.Text("Title"),
		memremote.Integer("Count"),
		memremote.Number("Price"),
		memremote.DateTime("Due"),
		memremote.Boolean("Done"),
		memremote.MultiChoice("Colors", "red", "blue"),
	)
}

func TestNormalizeMultiValues(t *testing.T) {
	view := viewOf(t, memremote.Counter("ID"), memremote.MultiChoice("Tags", "a", "b"))

	raw := func() map[string]any {
		return map[string]any{"ID": 3, "Tags": map[string]any{"results": []any{"a", "b"}}}
	}
	want := map[string]any{"ID": 3, "Tags": []any{"a", "b"}}

	once := NormalizeMultiValues(raw(), view.Selected)
	twice := NormalizeMultiValues(NormalizeMultiValues(raw(), view.Selected), view.Selected)

	assert.Equal(t, want, once)
	assert.Equal(t, want, twice)
}

func TestRemoveNulls(t *testing.T) {
	raw := RemoveNulls(map[string]any{"ID": 1, "Title": nil, "Count": 0})
	assert.Equal(t, map[string]any{"ID": 1, "Count": 0}, raw)
}

func TestParseImages(t *testing.T) {
	view := viewOf(t, memremote.Image("Photo"))

	raw := map[string]any{"Photo": `{"serverUrl":"https://x","serverRelativeUrl":"/a.png"}`}
	require.NoError(t, ParseImages(context.Background(), raw, view.Selected))
	assert.Equal(t, map[string]any{"serverUrl": "https://x", "serverRelativeUrl": "/a.png"}, raw["Photo"])

	err := ParseImages(context.Background(), map[string]any{"Photo": "{"}, view.Selected)
	assert.True(t, apperror.IsCode(err, apperror.CodeData))
}

func TestRoundTripScalars(t *testing.T) {
	ctx := context.Background()
	view := scalarView(t)
	tr := New(nil)

	item := &scalarItem{
		Count:  3,
		Price:  decimal.RequireFromString("1.25"),
		Due:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Done:   true,
		Colors: []string{"red", "blue"},
		Notes:  "local only",
	}
	item.Title = "Write docs"

	first, err := tr.ToSubmit(ctx, item, view)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T10:00:00Z", first["Due"])
	assert.Equal(t, map[string]any{"results": []string{"red", "blue"}}, first["Colors"])
	assert.NotContains(t, first, "ID")
	assert.NotContains(t, first, "Notes")

	back := &scalarItem{}
	require.NoError(t, tr.FromWire(ctx, maps.Clone(first), back, view))
	second, err := tr.ToSubmit(ctx, back, view)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestFromWireMergesIntoExistingInstance(t *testing.T) {
	ctx := context.Background()
	view := scalarView(t)
	tr := New(nil)

	item := &scalarItem{Count: 9, Colors: []string{"red"}}
	item.Title = "kept"
	raw := map[string]any{"ID": 4, "Title": nil, "Count": 2}

	require.NoError(t, tr.FromWire(ctx, raw, item, view))
	assert.Equal(t, 4, item.ID)
	assert.Equal(t, "kept", item.Title)
	assert.Equal(t, 2, item.Count)
	assert.Equal(t, []string{"red"}, item.Colors)
	assert.Equal(t, raw, item.Source())
}

func TestFromWireEmptiesCollections(t *testing.T) {
	ctx := context.Background()
	view := viewOf(t,
		memremote.Counter("ID"),
		memremote.MultiChoice("Colors", "red"),
		memremote.Lookup("Related", "list-b", memremote.Multi()),
	)
	type multiItem struct {
		entity.ItemBase
		Colors  []string                        `json:"Colors"`
		Related entity.Lookup[*entity.ItemBase] `json:"Related"`
	}

	item := &multiItem{}
	raw := map[string]any{"ID": 1, "Related": map[string]any{"__deferred": map[string]any{"uri": "x"}}}
	require.NoError(t, New(nil).FromWire(ctx, raw, item, view))

	assert.NotNil(t, item.Colors)
	assert.Empty(t, item.Colors)
	assert.Equal(t, entity.Loaded, item.Related.State())
	assert.True(t, item.Related.IsMulti())
	assert.Zero(t, item.Related.RefCount())
}

type fakeHandle struct{ id int }

func (fakeHandle) Delete(context.Context) error { return nil }

func TestFromWireAttachesHandleAndRunsConnect(t *testing.T) {
	ctx := context.Background()
	view := scalarView(t)
	var connected []int
	view.Connect = func(_ context.Context, item entity.Item) error {
		connected = append(connected, item.Base().ID)
		return nil
	}
	view.Handle = func(itemID int) entity.RemoteHandle { return fakeHandle{id: itemID} }

	persisted := &scalarItem{}
	require.NoError(t, New(nil).FromWire(ctx, map[string]any{"ID": 8}, persisted, view))
	assert.Equal(t, fakeHandle{id: 8}, persisted.Remote())

	transient := &scalarItem{}
	require.NoError(t, New(nil).FromWire(ctx, map[string]any{"Title": "new"}, transient, view))
	assert.Nil(t, transient.Remote())

	assert.Equal(t, []int{8, 0}, connected)
}

func taxView(t *testing.T, withCatchAll bool) View {
	fields := []map[string]any{
		memremote.Counter("ID"),
		memremote.Text("Title"),
		memremote.Text("ContentTypeId"),
		memremote.Taxonomy("Category", termSet),
		memremote.TaxonomyMulti("Topics", termSet),
		memremote.Note("k1f2", memremote.Titled("Topics_0")),
	}
	if withCatchAll {
		fields = append(fields, memremote.Lookup("TaxCatchAll", "catch-all", memremote.Multi()))
	}
	return viewOf(t, fields...)
}

func newTaxItem() *taxItem {
	return entity.New(reflect.TypeOf(taxItem{})).(*taxItem)
}

func TestFixSingleTaxonomy(t *testing.T) {
	ctx := context.Background()
	item := newTaxItem()
	raw := map[string]any{
		"ID":          5,
		"Category":    map[string]any{"Label": "12", "TermGuid": "g", "WssId": 12},
		"TaxCatchAll": map[string]any{"results": []any{map[string]any{"ID": 12, "Term": "Finance"}}},
	}

	require.NoError(t, New(nil).FromWire(ctx, raw, item, taxView(t, true)))
	require.NotNil(t, item.Category)
	assert.Equal(t, "Finance", item.Category.Label)
	assert.NotNil(t, item.Topics)
}

// The catch-all collection is not part of the projection: the value is kept
// unresolved and the load still succeeds.
func TestFixSingleTaxonomyWithoutCatchAll(t *testing.T) {
	ctx := context.Background()
	item := newTaxItem()
	raw := map[string]any{
		"ID":       5,
		"Category": map[string]any{"Label": "12", "TermGuid": "g", "WssId": 12},
	}

	require.NoError(t, New(nil).FromWire(ctx, raw, item, taxView(t, false)))
	assert.Equal(t, "12", item.Category.Label)
}

func TestToSubmitTaxonomy(t *testing.T) {
	ctx := context.Background()
	srv := memremote.New()
	existing := id.New()

	item := newTaxItem()
	item.ID = 5
	item.Category = &entity.MetaTerm{Label: "Finance", TermGUID: existing}
	item.Topics = []entity.MetaTerm{{Label: "New"}, {Label: "Old", TermGUID: existing}}

	out, err := New(srv).ToSubmit(ctx, item, taxView(t, true))
	require.NoError(t, err)

	assert.Equal(t, 5, out["ID"])
	assert.Equal(t, map[string]any{
		"__metadata": map[string]any{"type": "SP.Taxonomy.TaxonomyFieldValue"},
		"Label":      "Finance",
		"TermGuid":   existing,
		"WssId":      -1,
	}, out["Category"])

	created := srv.Calls(memremote.OpCreateTerm)
	require.Len(t, created, 1)
	assert.Equal(t, "New", created[0].Label)
	assert.Equal(t, termSet, created[0].TermSet)
	require.NotEmpty(t, item.Topics[0].TermGUID)

	assert.NotContains(t, out, "Topics")
	assert.Equal(t, "-1;#New|"+item.Topics[0].TermGUID+";#-1;#Old|"+existing+";", out["k1f2"])
	assert.NotContains(t, out, "TaxCatchAll")
	assert.NotContains(t, out, "Author")
}

func TestToSubmitEmptyTaxonomyMultiIsOmitted(t *testing.T) {
	item := newTaxItem()
	out, err := New(nil).ToSubmit(context.Background(), item, taxView(t, true))
	require.NoError(t, err)
	assert.NotContains(t, out, "Topics")
	assert.NotContains(t, out, "k1f2")
	assert.NotContains(t, out, "Category")
}

func refView(t *testing.T) View {
	return viewOf(t,
		memremote.Counter("ID"),
		memremote.Text("Title"),
		memremote.User("Owner", "users"),
		memremote.Lookup("Related", "list-b", memremote.Multi()),
		memremote.Text("Computed", memremote.ReadOnly()),
	)
}

func TestToSubmitLookups(t *testing.T) {
	owner := &entity.UserRef{}
	owner.ID = 11
	a, b := &entity.ItemBase{}, &entity.ItemBase{}
	a.ID, b.ID = 1, 2

	item := &refItem{Owner: entity.One(owner), Related: entity.Many(a, b), Computed: "x"}
	out, err := New(nil).ToSubmit(context.Background(), item, refView(t))
	require.NoError(t, err)

	assert.Equal(t, 11, out["OwnerId"])
	assert.Equal(t, map[string]any{"results": []int{1, 2}}, out["RelatedId"])
	assert.NotContains(t, out, "Owner")
	assert.NotContains(t, out, "Computed")
}

func TestToSubmitSkipsUnloadedLookups(t *testing.T) {
	out, err := New(nil).ToSubmit(context.Background(), &refItem{}, refView(t))
	require.NoError(t, err)
	assert.NotContains(t, out, "OwnerId")
	assert.NotContains(t, out, "RelatedId")
}

func TestToSubmitUnresolvedReference(t *testing.T) {
	item := &refItem{Owner: entity.One(&entity.UserRef{})}
	_, err := New(nil).ToSubmit(context.Background(), item, refView(t))
	assert.True(t, apperror.IsCode(err, apperror.CodeUnresolvedReference))

	item = &refItem{Related: entity.Many(&entity.ItemBase{})}
	_, err = New(nil).ToSubmit(context.Background(), item, refView(t))
	assert.True(t, apperror.IsCode(err, apperror.CodeUnresolvedReference))
}

func TestToSubmitUnknownField(t *testing.T) {
	view := viewOf(t, memremote.Counter("ID"), memremote.Text("Title"))

	_, err := New(nil).ToSubmit(context.Background(), &scalarItem{}, view)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeUnknownField, appErr.Code)
	assert.Equal(t, "Count", appErr.Details["field"])
}

func TestToSubmitOptionalColumnsMissing(t *testing.T) {
	view := viewOf(t, memremote.Counter("ID"), memremote.Text("Title"))
	type withKeywords struct {
		entity.ItemBase
		HasAttachments bool              `json:"Attachments"`
		TaxKeyword     []entity.MetaTerm `json:"TaxKeyword"`
	}

	out, err := New(nil).ToSubmit(context.Background(), &withKeywords{}, view)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Title": ""}, out)
}

func TestTermString(t *testing.T) {
	assert.Equal(t, "", TermString(nil))
	assert.Equal(t, "-1;#A|g1;", TermString([]*entity.MetaTerm{{Label: "A", TermGUID: "g1"}}))
}
