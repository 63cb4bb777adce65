// Package remote declares the collaborators the list layer consumes: the
// list transport, the term store and the caller identity. Implementations
// own authentication, timeouts and cancellation.
package remote

import (
	"context"
	"fmt"
	"strings"

	"listbind/internal/core/id"
)

// ListRef identifies a list on a site, by id or by title.
type ListRef struct {
	SiteURL string
	ID      string
	Title   string
}

// NewListRef returns a reference by id when idOrTitle looks like a GUID and
// by title otherwise.
func NewListRef(siteURL, idOrTitle string) ListRef {
	ref := ListRef{SiteURL: NormalizeSiteURL(siteURL)}
	if id.IsGUID(idOrTitle) {
		ref.ID = id.Normalize(idOrTitle)
	} else {
		ref.Title = idOrTitle
	}
	return ref
}

// Identity returns the id or, for lists referenced by title, the title.
func (r ListRef) Identity() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Title
}

// URL returns <site>/Lists/<identity>.
func (r ListRef) URL() string {
	return ListURL(r.SiteURL, r.Identity())
}

func (r ListRef) String() string { return r.URL() }

// NormalizeSiteURL removes a trailing slash.
func NormalizeSiteURL(siteURL string) string {
	return strings.TrimSuffix(siteURL, "/")
}

// ListURL returns the registry key of a list.
func ListURL(siteURL, idOrTitle string) string {
	return fmt.Sprintf("%s/Lists/%s", NormalizeSiteURL(siteURL), idOrTitle)
}

// Query is the projection and filter of a record fetch.
type Query struct {
	Select []string
	Expand []string
	Filter string
}

// ListInfo is the list metadata relevant to this layer.
type ListInfo struct {
	ID                string
	Title             string
	EnableAttachments bool
}

// Transport talks to the remote list service. Records are plain wire maps.
// Failures should be returned as *Error when the service answered.
type Transport interface {
	FetchListInfo(ctx context.Context, list ListRef) (ListInfo, error)
	FetchSchema(ctx context.Context, list ListRef) ([]map[string]any, error)
	FetchRecords(ctx context.Context, list ListRef, q Query) ([]map[string]any, error)
	CreateRecord(ctx context.Context, list ListRef, payload map[string]any) (map[string]any, error)
	UpdateRecord(ctx context.Context, list ListRef, id int, payload map[string]any) (etag string, err error)
	DeleteRecord(ctx context.Context, list ListRef, id int) error
	FetchRootProperties(ctx context.Context, list ListRef) (map[string]any, error)
}

// TermInfo is a term of the term store.
type TermInfo struct {
	ID        string
	Label     string
	TermSetID string
}

// TermStore creates and reads taxonomy terms.
type TermStore interface {
	CreateTerm(ctx context.Context, termSetID, label string) (termGUID string, err error)
	FetchTerm(ctx context.Context, termSetID, termGUID string) (TermInfo, error)
}

// Identity supplies the numeric site user id of the caller.
type Identity interface {
	CurrentUserID(ctx context.Context, siteURL string) (int, error)
}
