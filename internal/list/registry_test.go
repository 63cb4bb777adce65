package list

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listbind/internal/core/apperror"
	appctx "listbind/internal/core/context"
	"listbind/internal/infrastructure/remote"
	"listbind/internal/infrastructure/remote/memremote"
)

func TestRegistry_GetOrCreateSharesControllers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	byTitle, err := f.reg.GetOrCreate(ctx, site, "Tasks")
	require.NoError(t, err)
	again, err := f.reg.GetOrCreate(ctx, site+"/", "Tasks")
	require.NoError(t, err)
	byID, err := f.reg.GetOrCreate(ctx, site, strings.ToUpper(tasksID))
	require.NoError(t, err)

	assert.Same(t, byTitle, again)
	assert.Same(t, byTitle, byID)
	assert.Len(t, f.srv.Calls(memremote.OpListInfo), 1)

	got, err := f.reg.Get(tasksID, true)
	require.NoError(t, err)
	assert.Same(t, byTitle, got)
	got, err = f.reg.GetByURL(site, "Tasks")
	require.NoError(t, err)
	assert.Same(t, byTitle, got)
}

func TestRegistry_MissingControllers(t *testing.T) {
	f := newFixture(t)

	c, err := f.reg.Get(usersID, false)
	assert.NoError(t, err)
	assert.Nil(t, c)

	_, err = f.reg.Get(usersID, true)
	assert.True(t, apperror.IsCode(err, apperror.CodeControllerNotFound))

	_, err = f.reg.GetByURL(site, "Tasks")
	assert.True(t, apperror.IsCode(err, apperror.CodeControllerNotFound))
}

func TestRegistry_ControllersIncludeLookupTargets(t *testing.T) {
	f := newFixture(t)
	f.taskModel(t)

	var names []string
	for _, c := range f.reg.Controllers() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"Tasks", "User Information List"}, names)
}

func TestRegistry_CreateBeforeInitialise(t *testing.T) {
	f := newFixture(t)

	c := f.reg.Create("", "Tasks")
	assert.False(t, c.Initialized())
	assert.Same(t, c, f.reg.Create("", "Tasks"))
	assert.Nil(t, c.NewRecord())
}

func TestRegistry_CurrentUserID(t *testing.T) {
	f := newFixture(t, WithIdentity(remote.StaticIdentity(11)))
	ctx := context.Background()

	uid, err := f.reg.CurrentUserID(ctx, site)
	require.NoError(t, err)
	assert.Equal(t, 11, uid)

	fromContext := newFixture(t)
	_, err = fromContext.reg.CurrentUserID(ctx, site)
	assert.Error(t, err)

	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: 12})
	uid, err = fromContext.reg.CurrentUserID(ctx, site)
	require.NoError(t, err)
	assert.Equal(t, 12, uid)

	uid, err = fromContext.reg.CurrentUserID(context.Background(), site)
	require.NoError(t, err)
	assert.Equal(t, 12, uid, "resolved once per site")
}

func TestRegistry_TermStoreIsCached(t *testing.T) {
	f := newFixture(t)
	assert.Nil(t, f.reg.Terms())

	withTerms := NewRegistry(DefaultRegistryConfig(), f.srv, nil, WithTermStore(f.srv))
	assert.NotNil(t, withTerms.Terms())
}
