package remote

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "listbind/internal/core/context"
)

func TestNewListRef(t *testing.T) {
	byID := NewListRef("https://x/sites/a/", "{0C5D1B3A-1F5E-4C53-9B0B-3C1E2F6A7B8C}")
	assert.Equal(t, "0c5d1b3a-1f5e-4c53-9b0b-3c1e2f6a7b8c", byID.ID)
	assert.Empty(t, byID.Title)
	assert.Equal(t, "https://x/sites/a/Lists/0c5d1b3a-1f5e-4c53-9b0b-3c1e2f6a7b8c", byID.URL())

	byTitle := NewListRef("https://x/sites/a", "Tasks")
	assert.Equal(t, "Tasks", byTitle.Identity())
	assert.Equal(t, "https://x/sites/a/Lists/Tasks", byTitle.String())
}

func TestParseODataError(t *testing.T) {
	odata, err := ParseODataError([]byte(`{"odata.error":{"code":"-1, Microsoft.SharePoint.SPException","message":{"lang":"en-US","value":"boom"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "-1, Microsoft.SharePoint.SPException", odata.Code)
	assert.Equal(t, "boom", odata.Message)

	plain, err := ParseODataError([]byte(`{"error":{"code":"x","message":{"value":"y"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "y", plain.Message)

	_, err = ParseODataError(nil)
	assert.Error(t, err)
	_, err = ParseODataError([]byte(`{"other":1}`))
	assert.Error(t, err)
	_, err = ParseODataError([]byte(`not json`))
	assert.Error(t, err)
}

func TestError_RoundTrip(t *testing.T) {
	e := NewODataError(500, "c", "m")
	wrapped := fmt.Errorf("fetch: %w", e)

	got, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, 500, got.Status)
	assert.Contains(t, got.Error(), "c: m")

	odata, err := ParseODataError(got.Body)
	require.NoError(t, err)
	assert.Equal(t, "m", odata.Message)
}

func TestContextIdentity(t *testing.T) {
	_, err := ContextIdentity{}.CurrentUserID(context.Background(), "s")
	assert.Error(t, err)

	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: 12})
	uid, err := ContextIdentity{}.CurrentUserID(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 12, uid)
}
