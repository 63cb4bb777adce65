// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// UserContext describes the caller on a remote site.
type UserContext struct {
	// UserID is the numeric site user id (used for "liked/rated by me").
	UserID    int
	LoginName string
	SiteURL   string
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns the site user id from context or 0.
func GetUserID(ctx context.Context) int {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return 0
}

// GetSiteURL returns the site URL of the caller or empty string.
func GetSiteURL(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.SiteURL
	}
	return ""
}
