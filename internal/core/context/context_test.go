package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetUser(ctx))
	assert.Equal(t, 0, GetUserID(ctx))

	ctx = WithUser(ctx, &UserContext{UserID: 12, SiteURL: "https://tenant/sites/a"})
	assert.Equal(t, 12, GetUserID(ctx))
	assert.Equal(t, "https://tenant/sites/a", GetSiteURL(ctx))
}

func TestEnsureTrace(t *testing.T) {
	ctx := EnsureTrace(context.Background(), "load")
	id := GetTraceID(ctx)
	assert.NotEmpty(t, id)

	// existing trace is kept
	again := EnsureTrace(ctx, "other")
	assert.Equal(t, id, GetTraceID(again))
	assert.Equal(t, "load", GetTrace(again).Operation)
}
