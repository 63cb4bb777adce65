// Package list binds entity types to remote lists.
//
// A Controller owns one remote list: its field catalog, the aggregated
// projection of all entity types registered on it, the records loaded so
// far and a queue of partially known records referenced through lookups.
// Controllers are created and shared through a Registry; lookup columns make
// a controller create (or reuse) the controller of the target list.
package list

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"listbind/internal/core/apperror"
	"listbind/internal/core/entity"
	"listbind/internal/infrastructure/remote"
	"listbind/internal/infrastructure/telemetry"
	"listbind/internal/metadata"
	"listbind/pkg/logger"
)

// VotingExperienceProperty is the root folder property holding the rating mode.
const VotingExperienceProperty = "Ratings_x005f_VotingExperience"

// Voting experiences
const (
	VotingNone    = ""
	VotingRatings = "Ratings"
	VotingLikes   = "Likes"
)

type state int

const (
	stateUninitialized state = iota
	stateInitializing
	stateReady
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateInitializing:
		return "initializing"
	case stateReady:
		return "ready"
	case stateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// lookupMapping binds a lookup column to the controller of its target list.
type lookupMapping struct {
	listID string
	field  string
	// degraded: the column is selected in its minimal shape and referenced
	// records are loaded by the target controller.
	degraded   bool
	controller *Controller
}

// Controller is the data access object of one remote list.
// Safe for concurrent use; the mutex is never held over remote calls.
type Controller struct {
	reg  *Registry
	ref  remote.ListRef
	log  *logger.Logger
	name atomic.Value // string

	ready     chan struct{}
	readyOnce sync.Once

	mu      sync.Mutex
	state   state
	initErr error
	info    remote.ListInfo
	catalog *metadata.Catalog
	root    map[string]any

	models    []*Registration
	modelType map[reflect.Type]*Registration
	base      *Registration
	newRecord entity.Item

	selects       []string
	expands       []string
	selected      map[string]*metadata.FieldInfo
	selectedOrder []string
	mappings      map[string]*lookupMapping
	mappingOrder  []string

	records []entity.Item
	byID    map[int]entity.Item

	partials partialQueue
}

func newController(reg *Registry, ref remote.ListRef) *Controller {
	c := &Controller{
		reg:       reg,
		ref:       ref,
		log:       reg.log.WithComponent("list").With("list", ref.URL()),
		ready:     make(chan struct{}),
		modelType: make(map[reflect.Type]*Registration),
		selected:  make(map[string]*metadata.FieldInfo),
		mappings:  make(map[string]*lookupMapping),
		byID:      make(map[int]entity.Item),
	}
	c.name.Store(ref.Identity())
	c.partials.autoDrain = reg.config.AutoDrainPartials
	return c
}

// Name returns the list title once known, the id or title it was created
// with before.
func (c *Controller) Name() string { return c.name.Load().(string) }

// Ref returns the list reference.
func (c *Controller) Ref() remote.ListRef { return c.ref }

// URL returns the registry key <site>/Lists/<idOrTitle>.
func (c *Controller) URL() string { return c.ref.URL() }

// ListInfo returns the list metadata fetched by Initialise.
func (c *Controller) ListInfo() remote.ListInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// ListID returns the list GUID, empty before initialisation of a list
// created by title.
func (c *Controller) ListID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info.ID != "" {
		return c.info.ID
	}
	return c.ref.ID
}

// Catalog returns the list's field catalog, nil before initialisation.
func (c *Controller) Catalog() *metadata.Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog
}

// VotingExperience returns VotingRatings, VotingLikes or VotingNone.
func (c *Controller) VotingExperience() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, _ := c.root[VotingExperienceProperty].(string)
	return v
}

// RootProperty returns a root folder property.
func (c *Controller) RootProperty(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.root[key]
	return v, ok
}

// Initialized reports whether the list schema is loaded.
func (c *Controller) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateReady
}

// SelectColumns returns the current $select columns.
func (c *Controller) SelectColumns() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.selects)
}

// ExpandColumns returns the current $expand columns.
func (c *Controller) ExpandColumns() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.expands)
}

// SelectedField returns the catalog field of a selected column.
func (c *Controller) SelectedField(name string) (*metadata.FieldInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.selected[name]
	return f, ok
}

// LookupController returns the controller bound to a lookup column and
// whether the column is loaded client-side.
func (c *Controller) LookupController(field string) (target *Controller, degraded bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.mappings[field]
	if !ok {
		return nil, false, false
	}
	return m.controller, m.degraded, true
}

///////////////////////
// Initialisation    //
///////////////////////

// Initialise fetches the list metadata, field catalog and root folder
// properties, folds the registered entity types into the projection and
// creates the controllers of lookup targets. It may be called once.
func (c *Controller) Initialise(ctx context.Context) error {
	c.mu.Lock()
	if c.state != stateUninitialized {
		c.mu.Unlock()
		return apperror.NewAlreadyInitialized(c.Name()).In(c.Name(), "initialise")
	}
	c.state = stateInitializing
	c.mu.Unlock()

	return c.runInitialise(ctx)
}

// ensureInitialised initialises the controller unless that is done, in
// progress further up this call chain or in progress elsewhere; in the last
// case it waits until the projection is ready.
func (c *Controller) ensureInitialised(ctx context.Context) error {
	if initialising(ctx, c) {
		return nil
	}
	c.mu.Lock()
	switch c.state {
	case stateReady:
		c.mu.Unlock()
		return nil
	case stateUninitialized:
		c.state = stateInitializing
		c.mu.Unlock()
		return c.runInitialise(ctx)
	}
	ready := c.ready
	c.mu.Unlock()

	select {
	case <-ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initErr
}

func (c *Controller) runInitialise(ctx context.Context) error {
	ctx = withInitialising(ctx, c)
	ctx, span := telemetry.StartSpan(ctx, "initialise", c.Name())

	err := c.initialise(ctx)
	if err != nil {
		c.fail(err)
		c.reg.forget(c)
	}
	telemetry.EndSpan(span, err)
	return err
}

func (c *Controller) initialise(ctx context.Context) error {
	var (
		info   remote.ListInfo
		fields []map[string]any
		root   map[string]any
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		err = c.call(gctx, "fetchListInfo", func(ctx context.Context) error {
			info, err = c.reg.transport.FetchListInfo(ctx, c.ref)
			return err
		})
		if err != nil {
			return apperror.NewSchemaFetch("list info", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		err = c.call(gctx, "fetchSchema", func(ctx context.Context) error {
			fields, err = c.reg.transport.FetchSchema(ctx, c.ref)
			return err
		})
		if err != nil {
			return apperror.NewSchemaFetch("field catalog", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		err = c.call(gctx, "fetchRootProperties", func(ctx context.Context) error {
			root, err = c.reg.transport.FetchRootProperties(ctx, c.ref)
			return err
		})
		if err != nil {
			return apperror.NewSchemaFetch("root folder properties", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		c.log.Errorw("initialise failed", "error", err)
		return wrap(err, c.Name(), "initialise")
	}

	catalog, err := metadata.ParseCatalog(fields)
	if err != nil {
		return apperror.NewSchemaFetch("field catalog", err).In(c.Name(), "initialise")
	}

	c.mu.Lock()
	c.info = info
	c.catalog = catalog
	c.root = root
	c.mu.Unlock()
	if info.Title != "" {
		c.name.Store(info.Title)
	}
	c.reg.index(c)

	// Types registered while folding (by controllers we reference) are
	// folded too before the projection is published.
	for {
		c.mu.Lock()
		pending := c.unfoldedLocked()
		if len(pending) == 0 {
			c.state = stateReady
			c.mu.Unlock()
			break
		}
		c.mu.Unlock()
		for _, m := range pending {
			if err := c.fold(ctx, m); err != nil {
				return err
			}
		}
	}
	c.readyOnce.Do(func() { close(c.ready) })

	if err := c.buildLookupControllers(ctx); err != nil {
		return err
	}
	c.log.Infow("list initialised",
		"title", info.Title,
		"fields", catalog.Len(),
		"voting", c.VotingExperience(),
		"select", len(c.SelectColumns()),
	)
	return nil
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	if c.state != stateReady {
		c.state = stateFailed
	}
	c.initErr = err
	c.mu.Unlock()
	c.readyOnce.Do(func() { close(c.ready) })
}

// call runs a remote call inside a span and counts it.
func (c *Controller) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := telemetry.StartSpan(ctx, op, c.Name())
	err := fn(ctx)
	c.reg.metrics.Call(ctx, op, c.Name(), err)
	telemetry.EndSpan(span, err)
	return err
}

// wrap annotates a copy of err with list and operation, keeping an
// existing code and existing annotations. Errors are shared between waiters
// of one initialisation and are never modified.
func wrap(err error, list, op string) error {
	if appErr, ok := apperror.AsAppError(err); ok {
		if _, set := appErr.Details["op"]; set {
			return appErr
		}
		return appErr.Clone().In(list, op)
	}
	return apperror.NewInternal(op+" failed", err).In(list, op)
}

///////////////////////
// Init chain        //
///////////////////////

type initChainKey struct{}

// withInitialising records c as being initialised by this call chain. A
// controller reached again further down the chain (a lookup cycle) is used
// as is instead of being waited for.
func withInitialising(ctx context.Context, c *Controller) context.Context {
	chain, _ := ctx.Value(initChainKey{}).([]*Controller)
	return context.WithValue(ctx, initChainKey{}, append(slices.Clone(chain), c))
}

func initialising(ctx context.Context, c *Controller) bool {
	chain, _ := ctx.Value(initChainKey{}).([]*Controller)
	return slices.Contains(chain, c)
}
