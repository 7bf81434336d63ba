// Package registry resolves named top-level containers (direct children of
// the root such as "homescreen", "places" or "media") to stable
// identifiers, creating them on first use.
//
// Bindings are cached for the lifetime of the Registry, which is normally
// the process. There is no invalidation: correctness relies on top-level
// containers never being renamed or deleted behind the cache.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/contentsync/internal/cursor"
	"github.com/roach88/contentsync/internal/metrics"
	"github.com/roach88/contentsync/internal/resource"
	"github.com/roach88/contentsync/internal/service"
)

// ErrUnresolvable is returned when a container can neither be found nor
// created. Callers must stop any operation depending on that container.
var ErrUnresolvable = errors.New("unresolvable container")

// Backend is the slice of the content service the registry needs.
type Backend interface {
	Root(ctx context.Context) (resource.Meta, error)
	ChildByName(ctx context.Context, parent resource.ID, name string) (resource.Meta, error)
	ChildrenOf(ctx context.Context, parent resource.ID) (cursor.Cursor, error)
	Create(ctx context.Context, req resource.CreateRequest, variant string, initial *resource.Blob) (resource.Meta, error)
}

// Registry caches name -> id bindings for top-level containers.
//
// Thread-safety: all methods are safe for concurrent use. Concurrent
// resolutions of the same name share a single traversal and creation.
type Registry struct {
	svc     Backend
	logger  *slog.Logger
	metrics *metrics.Collector

	mu       sync.RWMutex
	bindings map[string]resource.ID

	group singleflight.Group
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Registry) {
		r.metrics = c
	}
}

// New returns an empty Registry backed by svc.
func New(svc Backend, opts ...Option) *Registry {
	r := &Registry{
		svc:      svc,
		logger:   slog.Default(),
		bindings: make(map[string]resource.ID),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "registry")
	return r
}

// Lookup returns the cached binding for name without touching the service.
func (r *Registry) Lookup(name string) (resource.ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bindings[resource.NormalizeName(name)]
	return id, ok
}

// Has reports whether a top-level container named name exists. It never
// creates one. Service failures are logged and reported as false.
func (r *Registry) Has(ctx context.Context, name string) bool {
	name = resource.NormalizeName(name)
	if _, ok := r.Lookup(name); ok {
		return true
	}

	root, err := r.svc.Root(ctx)
	if err != nil {
		r.logger.Error("failed to get root", "error", err)
		return false
	}
	if _, err := r.svc.ChildByName(ctx, root.ID, name); err != nil {
		if !errors.Is(err, service.ErrNotFound) {
			r.logger.Warn("failed to look up container", "name", name, "error", err)
		}
		return false
	}
	return true
}

// Ensure returns the id of the top-level container named name, creating it
// if it does not exist yet.
//
// The error wraps ErrUnresolvable when no id could be obtained.
func (r *Registry) Ensure(ctx context.Context, name string) (resource.ID, error) {
	name = resource.NormalizeName(name)
	if id, ok := r.Lookup(name); ok {
		r.metrics.ContainerResolution("cached")
		return id, nil
	}

	// The flight is shared, so it runs detached from this caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(name, func() (any, error) {
		// A previous flight may have bound the name while we were waiting.
		if id, ok := r.Lookup(name); ok {
			return id, nil
		}
		return r.resolve(flightCtx, name)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			r.metrics.ContainerResolution("failed")
			return "", res.Err
		}
		return res.Val.(resource.ID), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// resolve looks for name among the root's children and creates it when the
// traversal comes up empty.
func (r *Registry) resolve(ctx context.Context, name string) (resource.ID, error) {
	root, err := r.svc.Root(ctx)
	if err != nil {
		return "", fmt.Errorf("%w %q: get root: %w", ErrUnresolvable, name, err)
	}

	id, found, err := r.find(ctx, root.ID, name)
	if err != nil {
		return "", fmt.Errorf("%w %q: %w", ErrUnresolvable, name, err)
	}
	if found {
		r.logger.Debug("found container", "name", name, "id", id)
		r.metrics.ContainerResolution("found")
		return r.bind(name, id), nil
	}

	r.logger.Info("no container found, creating one", "name", name)
	meta, err := r.svc.Create(ctx, resource.CreateRequest{
		Parent: root.ID,
		Name:   name,
		Kind:   resource.KindContainer,
		Tags:   []string{},
	}, "", nil)
	if err == nil {
		r.logger.Info("created container", "name", name, "id", meta.ID)
		r.metrics.ContainerResolution("created")
		return r.bind(name, meta.ID), nil
	}
	r.logger.Error("failed to create container", "name", name, "error", err)

	// Creation most likely lost a race. Prefer a winner that already
	// populated the cache, then one that only exists on the service.
	if id, ok := r.Lookup(name); ok {
		return id, nil
	}
	if meta, probeErr := r.svc.ChildByName(ctx, root.ID, name); probeErr == nil && meta.IsContainer() {
		r.logger.Info("container created concurrently", "name", name, "id", meta.ID)
		return r.bind(name, meta.ID), nil
	}
	return "", fmt.Errorf("%w %q: %w", ErrUnresolvable, name, err)
}

// find traverses the root's children looking for a container named name.
// A failing cursor ends the traversal; it does not fail the lookup.
func (r *Registry) find(ctx context.Context, root resource.ID, name string) (resource.ID, bool, error) {
	cur, err := r.svc.ChildrenOf(ctx, root)
	if err != nil {
		return "", false, fmt.Errorf("list root children: %w", err)
	}

	var id resource.ID
	found := false
	err = cursor.NewPager(cur).ForEach(ctx, func(children []resource.Meta) bool {
		for _, child := range children {
			if child.IsContainer() && resource.NormalizeName(child.Name) == name {
				id = child.ID
				found = true
				return false
			}
		}
		return true
	})
	if err != nil {
		r.logger.Warn("cursor ended with error", "name", name, "error", err)
	}
	return id, found, nil
}

// bind caches id for name unless a binding already exists, and returns the
// authoritative binding.
func (r *Registry) bind(name string, id resource.ID) resource.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.bindings[name]; ok {
		return existing
	}
	r.bindings[name] = id
	return id
}
