package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/contentsync/internal/listing"
	"github.com/roach88/contentsync/internal/metrics"
	"github.com/roach88/contentsync/internal/registry"
	"github.com/roach88/contentsync/internal/resource"
	"github.com/roach88/contentsync/internal/service"
)

// Well known top-level containers.
const (
	ContainerPlaces = "places"
	ContainerMedia  = "media"
)

// Manager coordinates access to the content service.
//
// Thread-safety: all methods are safe for concurrent use.
type Manager struct {
	svc      service.Service
	fetcher  service.Fetcher
	registry *registry.Registry
	lister   *listing.Orchestrator
	places   *placesQueue
	urls     service.URLBuilder
	base     *slog.Logger
	logger   *slog.Logger
	metrics  *metrics.Collector

	keyMu   sync.Mutex
	httpKey string
}

// Options configures a Manager.
type Options struct {
	// URLs renders readable variant URLs. The key part comes from the service.
	URLs service.URLBuilder
	// Concurrency bounds parallel content fetches within a listing page.
	Concurrency int
	Logger      *slog.Logger
	Metrics     *metrics.Collector
}

// NewManager returns a Manager over svc. fetcher retrieves icons and
// posters referenced by URL.
//
// ctx bounds the lifetime of background places drains; Close stops them.
func NewManager(ctx context.Context, svc service.Service, fetcher service.Fetcher, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		svc:     svc,
		fetcher: fetcher,
		urls:    opts.URLs,
		base:    logger,
		logger:  logger.With("component", "content"),
		metrics: opts.Metrics,
	}
	m.registry = registry.New(svc,
		registry.WithLogger(logger),
		registry.WithMetrics(opts.Metrics),
	)
	m.lister = listing.New(svc, m.variantURL,
		listing.WithConcurrency(opts.Concurrency),
		listing.WithLogger(logger),
		listing.WithMetrics(opts.Metrics),
	)
	m.places = newPlacesQueue(ctx, m)
	return m
}

// Service returns the underlying content service.
func (m *Manager) Service() service.Service {
	return m.svc
}

// Fetcher returns the binary fetcher.
func (m *Manager) Fetcher() service.Fetcher {
	return m.fetcher
}

// Registry returns the shared container registry.
func (m *Manager) Registry() *registry.Registry {
	return m.registry
}

// Lister returns the shared listing orchestrator.
func (m *Manager) Lister() *listing.Orchestrator {
	return m.lister
}

// Logger returns the logger the Manager was built with, before the
// manager's own component attribute. Components layered on the Manager
// derive their loggers from it.
func (m *Manager) Logger() *slog.Logger {
	return m.base
}

// Metrics returns the metrics collector, which may be nil.
func (m *Manager) Metrics() *metrics.Collector {
	return m.metrics
}

// Close stops background places drains.
func (m *Manager) Close() {
	m.places.Close()
}

// Flush waits until every pending places upsert has been persisted.
func (m *Manager) Flush(ctx context.Context) error {
	return m.places.Wait(ctx)
}

// HasTopLevelContainer reports whether the named top-level container exists.
func (m *Manager) HasTopLevelContainer(ctx context.Context, name string) bool {
	return m.registry.Has(ctx, name)
}

// EnsureTopLevelContainer returns the id of the named top-level container,
// creating it if needed.
func (m *Manager) EnsureTopLevelContainer(ctx context.Context, name string) (resource.ID, error) {
	return m.registry.Ensure(ctx, name)
}

// HTTPKey returns the service's per-process http key. It is fetched once;
// a failure is logged and retried on the next call.
func (m *Manager) HTTPKey(ctx context.Context) string {
	m.keyMu.Lock()
	defer m.keyMu.Unlock()

	if m.httpKey == "" {
		key, err := m.svc.HTTPKey(ctx)
		if err != nil {
			m.logger.Error("failed to retrieve http key", "error", err)
			return ""
		}
		m.httpKey = key
	}
	return m.httpKey
}

// cachedKey returns the http key if it was already fetched.
func (m *Manager) cachedKey() string {
	m.keyMu.Lock()
	defer m.keyMu.Unlock()
	return m.httpKey
}

func (m *Manager) variantURL(id resource.ID, variant string) string {
	return m.urls.VariantURL(m.cachedKey(), id, variant)
}

// ChildByName returns the child named name of parent with variant loaded.
// The error wraps service.ErrNotFound when there is no such child.
func (m *Manager) ChildByName(ctx context.Context, parent resource.ID, name, variant string) (*Resource, error) {
	if variant == "" {
		variant = resource.DefaultVariant
	}
	meta, err := m.svc.ChildByName(ctx, parent, resource.NormalizeName(name))
	if err != nil {
		return nil, fmt.Errorf("child %q: %w", name, err)
	}
	blob, err := m.svc.Variant(ctx, meta.ID, variant)
	if err != nil && !errors.Is(err, service.ErrNotFound) {
		return nil, fmt.Errorf("child %q: variant %q: %w", name, variant, err)
	}

	r := m.wrap(ctx, meta)
	if err == nil {
		r.variants[variant] = blob
	}
	return r, nil
}

// Create adds a leaf named name under parent and writes blob as its
// default variant.
func (m *Manager) Create(ctx context.Context, parent resource.ID, name string, blob resource.Blob, tags []string) (*Resource, error) {
	if tags == nil {
		tags = []string{}
	}
	meta, err := m.svc.Create(ctx, resource.CreateRequest{
		Parent: parent,
		Name:   resource.NormalizeName(name),
		Kind:   resource.KindLeaf,
		Tags:   tags,
	}, "", nil)
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", name, err)
	}

	r := m.wrap(ctx, meta)
	if err := r.Update(ctx, blob, resource.DefaultVariant); err != nil {
		return r, fmt.Errorf("create %q: %w", name, err)
	}
	return r, nil
}

// ResourceFromID wraps the resource with the given id.
func (m *Manager) ResourceFromID(ctx context.Context, id resource.ID) (*Resource, error) {
	meta, err := m.svc.Metadata(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resource %s: %w", id, err)
	}
	return m.wrap(ctx, meta), nil
}

// Wrap returns a Resource for meta whose variant cache starts with loaded.
func (m *Manager) Wrap(ctx context.Context, meta resource.Meta, loaded map[string]resource.Blob) *Resource {
	r := m.wrap(ctx, meta)
	for name, blob := range loaded {
		r.variants[name] = blob
	}
	return r
}

func (m *Manager) wrap(ctx context.Context, meta resource.Meta) *Resource {
	m.HTTPKey(ctx)
	return newResource(m, meta)
}
