package list

import (
	"context"
	"sort"
	"sync"

	"listbind/internal/core/apperror"
	"listbind/internal/core/id"
	"listbind/internal/infrastructure/cache"
	"listbind/internal/infrastructure/remote"
	"listbind/internal/infrastructure/telemetry"
	"listbind/internal/metadata"
	"listbind/internal/transform"
	"listbind/pkg/logger"
)

// RegistryConfig configures Registry behavior.
type RegistryConfig struct {
	// DefaultSiteURL is used when a list is requested without site.
	DefaultSiteURL string
	// AutoDrainPartials makes every controller load partial lookup records
	// in full as soon as they are queued.
	AutoDrainPartials bool
}

// DefaultRegistryConfig returns the defaults: partial records are loaded
// only for lookups that cannot be expanded.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{}
}

// Option customises a Registry.
type Option func(*Registry)

// WithTermStore sets the term store used to create taxonomy terms on submit.
// Terms are cached per registry.
func WithTermStore(store remote.TermStore) Option {
	return func(r *Registry) { r.terms = cache.NewTermCache(store) }
}

// WithIdentity sets the source of the current site user.
func WithIdentity(identity remote.Identity) Option {
	return func(r *Registry) { r.identity = identity }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithSchemas sets the entity schema cache.
func WithSchemas(s *metadata.Registry) Option {
	return func(r *Registry) { r.schemas = s }
}

// Registry creates and shares list controllers. Controllers live as long as
// the registry; there is no eviction.
// Thread-safe for concurrent access.
type Registry struct {
	config    RegistryConfig
	transport remote.Transport
	terms     *cache.TermCache
	identity  remote.Identity
	schemas   *metadata.Registry
	metrics   *telemetry.Metrics
	log       *logger.Logger

	transformer *transform.Transformer

	mu    sync.Mutex
	byURL map[string]*Controller
	byID  map[string]*Controller
	sites map[string]*siteInfo
}

// siteInfo is what the registry remembers per site.
type siteInfo struct {
	url    string
	userID int
}

// NewRegistry creates a registry over transport.
func NewRegistry(cfg RegistryConfig, transport remote.Transport, log *logger.Logger, opts ...Option) *Registry {
	if log == nil {
		log = logger.Default()
	}
	r := &Registry{
		config:    cfg,
		transport: transport,
		identity:  remote.ContextIdentity{},
		schemas:   metadata.NewRegistry(),
		metrics:   telemetry.Default(),
		log:       log.WithComponent("list-registry"),
		byURL:     make(map[string]*Controller),
		byID:      make(map[string]*Controller),
		sites:     make(map[string]*siteInfo),
	}
	for _, opt := range opts {
		opt(r)
	}
	var terms remote.TermStore
	if r.terms != nil {
		terms = r.terms
	}
	r.transformer = transform.New(terms)
	return r
}

// Terms returns the term cache, nil without term store.
func (r *Registry) Terms() *cache.TermCache { return r.terms }

// GetOrCreate returns the initialised controller of a list given by id or
// title, creating and initialising it on first use.
func (r *Registry) GetOrCreate(ctx context.Context, siteURL, idOrTitle string) (*Controller, error) {
	if siteURL == "" {
		siteURL = r.config.DefaultSiteURL
	}
	ref := remote.NewListRef(siteURL, idOrTitle)

	r.mu.Lock()
	c, ok := r.lookupLocked(ref)
	if !ok {
		c = newController(r, ref)
		r.byURL[ref.URL()] = c
		if ref.ID != "" {
			r.byID[ref.ID] = c
		}
		r.log.Debugw("controller created", "url", ref.URL())
	}
	r.mu.Unlock()

	if err := c.ensureInitialised(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Create returns the controller of a list without initialising it, so that
// entity types can be registered before the first Initialise.
func (r *Registry) Create(siteURL, idOrTitle string) *Controller {
	if siteURL == "" {
		siteURL = r.config.DefaultSiteURL
	}
	ref := remote.NewListRef(siteURL, idOrTitle)

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.lookupLocked(ref); ok {
		r.log.Warnw("controller already exists", "url", ref.URL())
		return c
	}
	c := newController(r, ref)
	r.byURL[ref.URL()] = c
	if ref.ID != "" {
		r.byID[ref.ID] = c
	}
	return c
}

func (r *Registry) lookupLocked(ref remote.ListRef) (*Controller, bool) {
	if ref.ID != "" {
		if c, ok := r.byID[ref.ID]; ok {
			return c, true
		}
	}
	c, ok := r.byURL[ref.URL()]
	return c, ok
}

// Get returns the controller of the list with GUID listID. A missing
// controller is an error when required, nil otherwise.
func (r *Registry) Get(listID string, required bool) (*Controller, error) {
	r.mu.Lock()
	c, ok := r.byID[id.Normalize(listID)]
	known := len(r.byURL)
	r.mu.Unlock()

	if !ok {
		if required {
			return nil, apperror.NewControllerNotFound(listID, known)
		}
		return nil, nil
	}
	return c, nil
}

// GetByURL returns the controller created for idOrTitle on siteURL.
func (r *Registry) GetByURL(siteURL, idOrTitle string) (*Controller, error) {
	if siteURL == "" {
		siteURL = r.config.DefaultSiteURL
	}
	url := remote.ListURL(siteURL, idOrTitle)

	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byURL[url]
	if !ok {
		return nil, apperror.NewControllerNotFound(url, len(r.byURL))
	}
	return c, nil
}

// Controllers returns all controllers ordered by URL.
func (r *Registry) Controllers() []*Controller {
	r.mu.Lock()
	out := make([]*Controller, 0, len(r.byURL))
	for _, c := range r.byURL {
		out = append(out, c)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].URL() < out[j].URL() })
	return out
}

// getOrCreateByID returns the controller of a lookup target list.
func (r *Registry) getOrCreateByID(ctx context.Context, siteURL, listID string) (*Controller, error) {
	c, err := r.Get(listID, false)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return r.GetOrCreate(ctx, siteURL, listID)
	}
	if err := c.ensureInitialised(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// index makes c reachable by its list GUID once known.
func (r *Registry) index(c *Controller) {
	listID := id.Normalize(c.ListID())
	if listID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[listID]; !ok {
		r.byID[listID] = c
	}
}

// forget drops a controller whose initialisation failed.
func (r *Registry) forget(c *Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range r.byURL {
		if v == c {
			delete(r.byURL, k)
		}
	}
	for k, v := range r.byID {
		if v == c {
			delete(r.byID, k)
		}
	}
}

// CurrentUserID returns the site user id of the caller, resolved once per
// site.
func (r *Registry) CurrentUserID(ctx context.Context, siteURL string) (int, error) {
	if siteURL == "" {
		siteURL = r.config.DefaultSiteURL
	}
	siteURL = remote.NormalizeSiteURL(siteURL)

	r.mu.Lock()
	if site, ok := r.sites[siteURL]; ok {
		r.mu.Unlock()
		return site.userID, nil
	}
	r.mu.Unlock()

	userID, err := r.identity.CurrentUserID(ctx, siteURL)
	if err != nil {
		return 0, apperror.NewInternal("resolving current user failed", err).WithDetail("site", siteURL)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sites[siteURL] = &siteInfo{url: siteURL, userID: userID}
	return userID, nil
}
