package remote

import (
	"context"
	"errors"

	appctx "listbind/internal/core/context"
)

// ContextIdentity reads the caller from the request context (appctx.WithUser).
type ContextIdentity struct{}

var _ Identity = ContextIdentity{}

// CurrentUserID implements Identity.
func (ContextIdentity) CurrentUserID(ctx context.Context, _ string) (int, error) {
	if user := appctx.GetUser(ctx); user != nil && user.UserID > 0 {
		return user.UserID, nil
	}
	return 0, errors.New("no site user in context")
}

// StaticIdentity always answers the same user id.
type StaticIdentity int

// CurrentUserID implements Identity.
func (s StaticIdentity) CurrentUserID(context.Context, string) (int, error) {
	return int(s), nil
}
