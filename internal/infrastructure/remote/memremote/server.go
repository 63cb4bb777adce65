// Package memremote provides an in-memory remote list service implementing
// remote.Transport, remote.TermStore and remote.Identity. Lists, fields and
// items are plain wire maps; queries are projected the way the service does
// it, including deferred markers for relations that are not expanded.
package memremote

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"listbind/internal/core/id"
	"listbind/internal/infrastructure/remote"
	"listbind/internal/metadata"
)

// Op names a remote operation.
type Op string

const (
	OpListInfo       Op = "FetchListInfo"
	OpSchema         Op = "FetchSchema"
	OpRecords        Op = "FetchRecords"
	OpCreate         Op = "CreateRecord"
	OpUpdate         Op = "UpdateRecord"
	OpDelete         Op = "DeleteRecord"
	OpRootProperties Op = "FetchRootProperties"
	OpCreateTerm     Op = "CreateTerm"
	OpFetchTerm      Op = "FetchTerm"
)

// Call records one remote operation.
type Call struct {
	Op      Op
	List    string // list id
	Query   remote.Query
	ID      int
	Payload map[string]any
	TermSet string
	Label   string
}

// Server is the in-memory service. The zero value is not usable, use New.
type Server struct {
	mu          sync.Mutex
	lists       map[string]*List
	calls       []Call
	fail        func(Call) error
	wrapResults bool
	terms       map[string]map[string]string
	users       map[string]int
}

var (
	_ remote.Transport = (*Server)(nil)
	_ remote.TermStore = (*Server)(nil)
	_ remote.Identity  = (*Server)(nil)
)

// New returns an empty server.
func New() *Server {
	return &Server{
		lists: make(map[string]*List),
		terms: make(map[string]map[string]string),
		users: make(map[string]int),
	}
}

// List is a remote list held by the server.
type List struct {
	srv *Server

	ID          string
	Title       string
	attachments bool
	fields      []map[string]any
	root        map[string]any
	items       []map[string]any
	nextID      int
	etags       map[int]int
}

// AddList creates a list with a random id.
func (s *Server) AddList(title string, fields ...map[string]any) *List {
	return s.AddListWithID(id.New(), title, fields...)
}

// AddListWithID creates a list with the given id.
func (s *Server) AddListWithID(listID, title string, fields ...map[string]any) *List {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := &List{
		srv:    s,
		ID:     id.Normalize(listID),
		Title:  title,
		fields: clone(fields).([]map[string]any),
		root:   map[string]any{},
		nextID: 1,
		etags:  map[int]int{},
	}
	s.lists[l.ID] = l
	return l
}

// EnableAttachments toggles the list's attachments setting.
func (l *List) EnableAttachments(enabled bool) *List {
	l.srv.mu.Lock()
	l.attachments = enabled
	l.srv.mu.Unlock()
	return l
}

// SetRootProperty sets a root folder property.
func (l *List) SetRootProperty(key string, value any) *List {
	l.srv.mu.Lock()
	l.root[key] = value
	l.srv.mu.Unlock()
	return l
}

// Add stores an item and returns its id. Lookup values are stored as an id
// or a slice of ids under the field name.
func (l *List) Add(item map[string]any) int {
	l.srv.mu.Lock()
	defer l.srv.mu.Unlock()
	return l.add(clone(item).(map[string]any))
}

func (l *List) add(item map[string]any) int {
	itemID, ok := toInt(item["ID"])
	if !ok || itemID <= 0 {
		itemID = l.nextID
	}
	if itemID >= l.nextID {
		l.nextID = itemID + 1
	}
	item["ID"] = itemID
	l.items = append(l.items, item)
	l.etags[itemID] = 1
	return itemID
}

// Item returns a copy of the stored item.
func (l *List) Item(itemID int) (map[string]any, bool) {
	l.srv.mu.Lock()
	defer l.srv.mu.Unlock()
	if i := l.indexOf(itemID); i >= 0 {
		return clone(l.items[i]).(map[string]any), true
	}
	return nil, false
}

// Len returns the number of items.
func (l *List) Len() int {
	l.srv.mu.Lock()
	defer l.srv.mu.Unlock()
	return len(l.items)
}

func (l *List) indexOf(itemID int) int {
	for i, item := range l.items {
		if v, _ := toInt(item["ID"]); v == itemID {
			return i
		}
	}
	return -1
}

func (l *List) field(name string) (map[string]any, bool) {
	for _, f := range l.fields {
		if f["InternalName"] == name {
			return f, true
		}
	}
	return nil, false
}

func isLookup(f map[string]any) bool {
	kind, _ := toInt(f["FieldTypeKind"])
	return metadata.FieldKind(kind) == metadata.KindLookup || metadata.FieldKind(kind) == metadata.KindUser
}

// FailWith installs a hook consulted before every operation; a non-nil
// result is returned instead of performing the operation.
func (s *Server) FailWith(fn func(Call) error) {
	s.mu.Lock()
	s.fail = fn
	s.mu.Unlock()
}

// WrapMultiValues makes multi-valued values arrive as {"results": [...]}.
func (s *Server) WrapMultiValues(wrap bool) {
	s.mu.Lock()
	s.wrapResults = wrap
	s.mu.Unlock()
}

// SetUser registers the current user id of a site.
func (s *Server) SetUser(siteURL string, userID int) {
	s.mu.Lock()
	s.users[remote.NormalizeSiteURL(siteURL)] = userID
	s.mu.Unlock()
}

// Calls returns the recorded calls of op, all calls when op is empty.
func (s *Server) Calls(op Op) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls forgets recorded calls.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	s.calls = nil
	s.mu.Unlock()
}

// begin records the call and runs the failure hook. Must be called with
// s.mu held.
func (s *Server) begin(c Call) error {
	s.calls = append(s.calls, c)
	if s.fail != nil {
		return s.fail(c)
	}
	return nil
}

func (s *Server) list(ref remote.ListRef) (*List, error) {
	if ref.ID != "" {
		if l, ok := s.lists[id.Normalize(ref.ID)]; ok {
			return l, nil
		}
	} else {
		for _, l := range s.lists {
			if l.Title == ref.Title {
				return l, nil
			}
		}
	}
	return nil, remote.NewODataError(404, "-2130575322, Microsoft.SharePoint.SPException",
		fmt.Sprintf("List '%s' does not exist at site with URL '%s'.", ref.Identity(), ref.SiteURL))
}

func listID(l *List) string {
	if l == nil {
		return ""
	}
	return l.ID
}

///////////////////
// Transport     //
///////////////////

// FetchListInfo implements remote.Transport.
func (s *Server) FetchListInfo(_ context.Context, ref remote.ListRef) (remote.ListInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.list(ref)
	if err := s.begin(Call{Op: OpListInfo, List: listID(l)}); err != nil {
		return remote.ListInfo{}, err
	}
	if err != nil {
		return remote.ListInfo{}, err
	}
	return remote.ListInfo{ID: l.ID, Title: l.Title, EnableAttachments: l.attachments}, nil
}

// FetchSchema implements remote.Transport.
func (s *Server) FetchSchema(_ context.Context, ref remote.ListRef) ([]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.list(ref)
	if err := s.begin(Call{Op: OpSchema, List: listID(l)}); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return clone(l.fields).([]map[string]any), nil
}

// FetchRootProperties implements remote.Transport.
func (s *Server) FetchRootProperties(_ context.Context, ref remote.ListRef) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.list(ref)
	if err := s.begin(Call{Op: OpRootProperties, List: listID(l)}); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return clone(l.root).(map[string]any), nil
}

// FetchRecords implements remote.Transport.
func (s *Server) FetchRecords(_ context.Context, ref remote.ListRef, q remote.Query) ([]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.list(ref)
	if err := s.begin(Call{Op: OpRecords, List: listID(l), Query: cloneQuery(q)}); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	match, err := parseFilter(q.Filter)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0)
	for _, item := range l.items {
		if !match(item) {
			continue
		}
		projected, err := s.project(l, item, q)
		if err != nil {
			return nil, err
		}
		out = append(out, projected)
	}
	return out, nil
}

func (s *Server) project(l *List, item map[string]any, q remote.Query) (map[string]any, error) {
	out := make(map[string]any)
	subs := make(map[string][]string)
	var order []string

	for _, col := range q.Select {
		name, sub, nested := strings.Cut(col, "/")
		f, ok := l.field(name)
		if !ok {
			return nil, remote.NewODataError(400, "-1, Microsoft.SharePoint.SPException",
				fmt.Sprintf("The field or property '%s' does not exist.", name))
		}
		if nested {
			if _, seen := subs[name]; !seen {
				order = append(order, name)
			}
			subs[name] = append(subs[name], sub)
			continue
		}
		if isLookup(f) {
			out[name] = map[string]any{"__deferred": map[string]any{"uri": fmt.Sprintf("Items(%v)/%s", item["ID"], name)}}
			continue
		}
		out[name] = clone(item[name])
	}

	for _, name := range order {
		if !slices.Contains(q.Expand, name) {
			return nil, remote.NewODataError(400, "-1, Microsoft.SharePoint.SPException",
				fmt.Sprintf("The expression \"%s\" is not valid without expanding %s.", name+"/"+subs[name][0], name))
		}
		f, _ := l.field(name)
		target, _ := f["LookupList"].(string)
		tl := s.lists[id.Normalize(target)]
		multi, _ := f["AllowMultipleValues"].(bool)

		var values []any
		for _, refID := range ids(item[name]) {
			if tl == nil {
				break
			}
			i := tl.indexOf(refID)
			if i < 0 {
				continue
			}
			sub := make(map[string]any)
			for _, col := range subs[name] {
				sub[col] = clone(tl.items[i][col])
			}
			values = append(values, sub)
		}

		switch {
		case multi && s.wrapResults:
			out[name] = map[string]any{"results": orEmpty(values)}
		case multi:
			out[name] = orEmpty(values)
		case len(values) > 0:
			out[name] = values[0]
		default:
			out[name] = nil
		}
	}

	if s.wrapResults {
		for key, v := range out {
			if arr, ok := v.([]any); ok {
				if f, ok := l.field(key); ok && (f["AllowMultipleValues"] == true || f["TypeAsString"] == "MultiChoice") {
					out[key] = map[string]any{"results": arr}
				}
			}
		}
	}
	return out, nil
}

// CreateRecord implements remote.Transport.
func (s *Server) CreateRecord(_ context.Context, ref remote.ListRef, payload map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.list(ref)
	if err := s.begin(Call{Op: OpCreate, List: listID(l), Payload: clone(payload).(map[string]any)}); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	item := l.fromPayload(payload)
	delete(item, "ID")
	l.add(item)
	return l.response(item), nil
}

// UpdateRecord implements remote.Transport.
func (s *Server) UpdateRecord(_ context.Context, ref remote.ListRef, itemID int, payload map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.list(ref)
	if err := s.begin(Call{Op: OpUpdate, List: listID(l), ID: itemID, Payload: clone(payload).(map[string]any)}); err != nil {
		return "", err
	}
	if err != nil {
		return "", err
	}
	i := l.indexOf(itemID)
	if i < 0 {
		return "", notFound(itemID)
	}
	for k, v := range l.fromPayload(payload) {
		if k != "ID" {
			l.items[i][k] = v
		}
	}
	l.etags[itemID]++
	return strconv.Quote(strconv.Itoa(l.etags[itemID])), nil
}

// DeleteRecord implements remote.Transport.
func (s *Server) DeleteRecord(_ context.Context, ref remote.ListRef, itemID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.list(ref)
	if err := s.begin(Call{Op: OpDelete, List: listID(l), ID: itemID}); err != nil {
		return err
	}
	if err != nil {
		return err
	}
	i := l.indexOf(itemID)
	if i < 0 {
		return notFound(itemID)
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	delete(l.etags, itemID)
	return nil
}

func notFound(itemID int) error {
	return remote.NewODataError(404, "-2130575338, System.ArgumentException",
		fmt.Sprintf("Item does not exist. It may have been deleted by another user. (%d)", itemID))
}

// fromPayload turns a submit payload into a stored item: <Field>Id keys of
// lookup fields are stored under the field name, {"results": [...]} wrappers
// are unwrapped.
func (l *List) fromPayload(payload map[string]any) map[string]any {
	item := make(map[string]any, len(payload))
	for k, v := range payload {
		v = unwrapResults(clone(v))
		if name, ok := strings.CutSuffix(k, "Id"); ok {
			if f, exists := l.field(name); exists && isLookup(f) {
				item[name] = v
				continue
			}
		}
		item[k] = v
	}
	return item
}

// response renders a stored item the way create answers: lookups as <Field>Id.
func (l *List) response(item map[string]any) map[string]any {
	out := make(map[string]any, len(item))
	for k, v := range item {
		if f, ok := l.field(k); ok && isLookup(f) {
			out[k+"Id"] = clone(v)
			continue
		}
		out[k] = clone(v)
	}
	return out
}

///////////////////
// Term store    //
///////////////////

// CreateTerm implements remote.TermStore.
func (s *Server) CreateTerm(_ context.Context, termSetID, label string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(Call{Op: OpCreateTerm, TermSet: termSetID, Label: label}); err != nil {
		return "", err
	}
	if s.terms[termSetID] == nil {
		s.terms[termSetID] = make(map[string]string)
	}
	guid := id.New()
	s.terms[termSetID][guid] = label
	return guid, nil
}

// FetchTerm implements remote.TermStore.
func (s *Server) FetchTerm(_ context.Context, termSetID, termGUID string) (remote.TermInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(Call{Op: OpFetchTerm, TermSet: termSetID, Label: termGUID}); err != nil {
		return remote.TermInfo{}, err
	}
	label, ok := s.terms[termSetID][termGUID]
	if !ok {
		return remote.TermInfo{}, remote.NewODataError(404, "-1, Microsoft.SharePoint.Taxonomy", "term not found")
	}
	return remote.TermInfo{ID: termGUID, Label: label, TermSetID: termSetID}, nil
}

// AddTerm stores an existing term.
func (s *Server) AddTerm(termSetID, termGUID, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terms[termSetID] == nil {
		s.terms[termSetID] = make(map[string]string)
	}
	s.terms[termSetID][termGUID] = label
}

///////////////////
// Identity      //
///////////////////

// CurrentUserID implements remote.Identity.
func (s *Server) CurrentUserID(_ context.Context, siteURL string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uid, ok := s.users[remote.NormalizeSiteURL(siteURL)]
	if !ok {
		return 0, fmt.Errorf("memremote: no user for site %q", siteURL)
	}
	return uid, nil
}

///////////////////
// helpers       //
///////////////////

var filterExpr = regexp.MustCompile(`^\s*([A-Za-z0-9_]+)\s+eq\s+(.+?)\s*$`)

func parseFilter(filter string) (func(map[string]any) bool, error) {
	if strings.TrimSpace(filter) == "" {
		return func(map[string]any) bool { return true }, nil
	}
	m := filterExpr.FindStringSubmatch(filter)
	if m == nil {
		return nil, remote.NewODataError(400, "-1, Microsoft.SharePoint.SPException",
			fmt.Sprintf("The expression \"%s\" is not supported.", filter))
	}
	field, literal := m[1], strings.Trim(m[2], "'")
	return func(item map[string]any) bool {
		return fmt.Sprint(item[field]) == literal
	}, nil
}

func ids(v any) []int {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]int, 0, len(x))
		for _, e := range x {
			if i, ok := toInt(e); ok {
				out = append(out, i)
			}
		}
		return out
	case []int:
		return x
	default:
		if i, ok := toInt(x); ok {
			return []int{i}
		}
	}
	return nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case interface{ Int64() (int64, error) }:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

func unwrapResults(v any) any {
	if m, ok := v.(map[string]any); ok && len(m) == 1 {
		if results, ok := m["results"]; ok {
			return results
		}
	}
	return v
}

func orEmpty(values []any) []any {
	if values == nil {
		return []any{}
	}
	return values
}

func cloneQuery(q remote.Query) remote.Query {
	return remote.Query{Select: slices.Clone(q.Select), Expand: slices.Clone(q.Expand), Filter: q.Filter}
}

func clone(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = clone(e)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(x))
		for i, e := range x {
			out[i] = clone(e).(map[string]any)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = clone(e)
		}
		return out
	case []int:
		return slices.Clone(x)
	case []string:
		return slices.Clone(x)
	}
	return v
}
