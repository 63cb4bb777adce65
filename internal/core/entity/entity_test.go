package entity

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct{ deleted int }

func (f *fakeHandle) Delete(context.Context) error { f.deleted++; return nil }

type task struct {
	ListItem

	Owner Lookup[*UserRef] `json:"Owner"`
	Tags  []string         `json:"Tags"`
}

func TestRecord_DirtyAndDeleted(t *testing.T) {
	item := &task{}
	assert.False(t, item.Dirty())

	item.Update(func() { item.Title = "changed" })
	assert.True(t, item.Dirty())
	item.Touch()
	assert.True(t, item.Dirty())
	item.ClearDirty()
	assert.False(t, item.Dirty())

	calls := 0
	item.OnDeleted(func() { calls++ })
	item.MarkDeleted()
	item.MarkDeleted()
	assert.True(t, item.Deleted())
	assert.Equal(t, 1, calls)

	// late subscribers run immediately
	item.OnDeleted(func() { calls++ })
	assert.Equal(t, 2, calls)
}

func TestCanBeDeleted(t *testing.T) {
	item := &task{}
	assert.False(t, CanBeDeleted(item), "not persisted")

	item.ID = 4
	assert.False(t, CanBeDeleted(item), "no remote handle")

	item.SetRemote(&fakeHandle{})
	assert.True(t, CanBeDeleted(item))

	user := &UserRef{}
	user.ID = 9
	user.SetRemote(&fakeHandle{})
	assert.False(t, CanBeDeleted(user), "users are read-only records")
}

func TestAs_EmbeddedViewSharesMemory(t *testing.T) {
	full := &UserFull{}
	full.ID = 3

	ref, ok := As[*UserRef](full)
	require.True(t, ok)
	assert.Equal(t, 3, ref.ID)

	full.Title = "Ada"
	assert.Equal(t, "Ada", ref.Title)

	_, ok = As[*TaxCatchAll](full)
	assert.False(t, ok)

	assert.True(t, Convertible(reflect.TypeOf(UserFull{}), reflect.TypeOf(&UserRef{})))
	assert.False(t, Convertible(reflect.TypeOf(UserRef{}), reflect.TypeOf(&UserFull{})))
}

func TestItemTypeAndNew(t *testing.T) {
	typ, err := ItemType((*task)(nil))
	require.NoError(t, err)
	assert.Equal(t, "task", typ.Name())

	_, err = ItemType(struct{ A int }{})
	assert.Error(t, err)

	item := New(typ).(*task)
	assert.NotNil(t, item.TaxKeyword, "Init ran through embedded ListItem")
	assert.True(t, item.LikedBy.IsMulti())
}

func TestLookup_UnmarshalShapes(t *testing.T) {
	var single Lookup[*UserRef]
	require.NoError(t, json.Unmarshal([]byte(`{"ID":5,"Title":"Bob"}`), &single))
	assert.Equal(t, Loaded, single.State())
	assert.False(t, single.IsMulti())
	u, ok := single.Get()
	require.True(t, ok)
	assert.Equal(t, 5, u.ID)
	assert.Equal(t, "Bob", u.Title)

	var multi Lookup[*UserRef]
	require.NoError(t, json.Unmarshal([]byte(`{"results":[{"ID":1},{"ID":2}]}`), &multi))
	assert.True(t, multi.IsMulti())
	assert.Equal(t, 2, multi.RefCount())
	assert.True(t, multi.Contains(2))

	var deferred Lookup[*UserRef]
	require.NoError(t, json.Unmarshal([]byte(`{"__deferred":{"uri":"x"}}`), &deferred))
	assert.Equal(t, Deferred, deferred.State())
	_, ok = deferred.Get()
	assert.False(t, ok)
}

func TestLookup_SetRefAndReset(t *testing.T) {
	l := Many(&UserRef{})
	full := &UserFull{}
	full.ID = 11
	require.NoError(t, l.SetRef(0, full))
	assert.Equal(t, 11, l.All()[0].ID)

	require.Error(t, l.SetRef(0, &TaxCatchAll{}))

	l.Reset()
	assert.Equal(t, Loaded, l.State())
	assert.Equal(t, 0, l.RefCount())

	one := One(&UserRef{})
	one.Reset()
	assert.Equal(t, NotExpanded, one.State())
	assert.Equal(t, reflect.TypeOf(&UserRef{}), one.ElemType())
}

func TestListItem_RatingsAndLikes(t *testing.T) {
	a, b := &UserRef{}, &UserRef{}
	a.ID, b.ID = 10, 20

	item := &ListItem{}
	item.RatedBy.SetAll([]*UserRef{a, b})
	item.Ratings = "4,2,"
	item.LikedBy.SetAll([]*UserRef{b})

	assert.True(t, item.IsRatedByMe(20))
	assert.False(t, item.IsRatedByMe(30))
	r, ok := item.MyRating(20)
	require.True(t, ok)
	assert.Equal(t, 2, r)
	_, ok = item.MyRating(30)
	assert.False(t, ok)

	assert.True(t, item.IsLikedByMe(20))
	assert.False(t, item.IsLikedByMe(10))
}

func TestIsDeferredValue(t *testing.T) {
	assert.True(t, IsDeferredValue(map[string]any{"__deferred": map[string]any{}}))
	assert.False(t, IsDeferredValue(map[string]any{"ID": 1}))
	assert.False(t, IsDeferredValue("x"))
}
