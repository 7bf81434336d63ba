// Package plugins keeps an up-to-date list of the wasm plugins stored in
// the content service.
package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/contentsync/internal/coalesce"
	"github.com/roach88/contentsync/internal/content"
	"github.com/roach88/contentsync/internal/cursor"
	"github.com/roach88/contentsync/internal/resource"
	"github.com/roach88/contentsync/internal/service"
)

// Container is the top-level container holding plugins.
const Container = "wasm-plugins"

// WasmVariant holds the plugin binary. The default variant holds its JSON
// manifest.
const WasmVariant = "wasm"

// ErrNotWasm is returned by Add when the fetched binary is not wasm.
var ErrNotWasm = errors.New("plugin is not application/wasm")

// UpdatedFunc receives the plugin list after every rebuild.
type UpdatedFunc func(plugins []*content.Resource)

// Manager tracks the plugins container.
//
// Thread-safety: all methods are safe for concurrent use.
type Manager struct {
	cm        *content.Manager
	onUpdated UpdatedFunc
	logger    *slog.Logger
	rebuild   *coalesce.Queue[resource.ID, service.Change]

	mu        sync.Mutex
	container resource.ID
	sub       service.Subscription
	observing bool
	list      []*content.Resource
}

// New returns a Manager over cm. onUpdated may be nil.
//
// Change notifications are coalesced per container so at most one rebuild
// runs at a time; ctx bounds those rebuilds.
func New(ctx context.Context, cm *content.Manager, onUpdated UpdatedFunc) *Manager {
	m := &Manager{
		cm:        cm,
		onUpdated: onUpdated,
		logger:    cm.Logger().With("component", "plugins"),
	}
	m.rebuild = coalesce.New[resource.ID, service.Change](ctx, "plugins", coalesce.Funcs[resource.ID, service.Change]{
		ApplyFunc: func(ctx context.Context, _ resource.ID, change service.Change) error {
			m.logger.Debug("plugin list modified", "kind", change.Kind, "target", change.Target)
			return m.Update(ctx)
		},
	}, coalesce.WithLogger(cm.Logger()), coalesce.WithMetrics(cm.Metrics()))
	return m
}

// Ready resolves the plugins container and returns its id.
func (m *Manager) Ready(ctx context.Context) (resource.ID, error) {
	m.mu.Lock()
	id := m.container
	m.mu.Unlock()
	if id != "" {
		return id, nil
	}

	id, err := m.cm.EnsureTopLevelContainer(ctx, Container)
	if err != nil {
		return "", fmt.Errorf("plugins container: %w", err)
	}
	m.cm.HTTPKey(ctx)

	m.mu.Lock()
	m.container = id
	m.mu.Unlock()
	return id, nil
}

// Init subscribes to changes of the plugins container and loads the list.
func (m *Manager) Init(ctx context.Context) error {
	id, err := m.Ready(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	observing := m.observing
	m.mu.Unlock()
	if !observing {
		sub, err := m.cm.Service().Observe(ctx, id, func(change service.Change) {
			m.rebuild.Enqueue(id, change)
		})
		if err != nil {
			return fmt.Errorf("observe plugins: %w", err)
		}
		m.mu.Lock()
		m.sub, m.observing = sub, true
		m.mu.Unlock()
	}

	return m.Update(ctx)
}

// Update reloads the plugin list from the service.
func (m *Manager) Update(ctx context.Context) error {
	id, err := m.Ready(ctx)
	if err != nil {
		return err
	}
	svc := m.cm.Service()

	cur, err := svc.ChildrenOf(ctx, id)
	if err != nil {
		return fmt.Errorf("list plugins: %w", err)
	}

	var list []*content.Resource
	err = cursor.NewPager(cur).ForEach(ctx, func(entries []resource.Meta) bool {
		for _, meta := range entries {
			if meta.IsContainer() {
				continue
			}
			blob, err := svc.Variant(ctx, meta.ID, resource.DefaultVariant)
			if err != nil {
				m.logger.Warn("failed to load plugin manifest", "name", meta.Name, "error", err)
				continue
			}
			list = append(list, m.cm.Wrap(ctx, meta, map[string]resource.Blob{resource.DefaultVariant: blob}))
		}
		return true
	})
	if err != nil {
		m.logger.Debug("plugin cursor ended with error", "error", err)
	}

	m.mu.Lock()
	m.list = list
	m.mu.Unlock()

	m.logger.Debug("list updated", "count", len(list))
	if m.onUpdated != nil {
		m.onUpdated(slices.Clone(list))
	}
	return nil
}

// List returns the plugins loaded by the last update.
func (m *Manager) List() []*content.Resource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.list)
}

// Add fetches the plugin binary at url and stores it with manifest as its
// default variant.
func (m *Manager) Add(ctx context.Context, manifest any, url string) (*content.Resource, error) {
	id, err := m.Ready(ctx)
	if err != nil {
		return nil, err
	}

	bin, err := m.cm.Fetcher().Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("add plugin: %w", err)
	}
	if bin.MimeType != resource.MimeWasm {
		return nil, fmt.Errorf("add plugin %s: got %q: %w", url, bin.MimeType, ErrNotWasm)
	}

	data, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("add plugin: encode manifest: %w", err)
	}
	initial := resource.Blob{MimeType: resource.MimeJSON, Data: data}
	meta, err := m.cm.Service().Create(ctx, resource.CreateRequest{
		Parent: id,
		Name:   resource.NormalizeName(url),
		Kind:   resource.KindLeaf,
		Tags:   []string{},
	}, resource.DefaultVariant, &initial)
	if err != nil {
		return nil, fmt.Errorf("add plugin %s: %w", url, err)
	}

	r := m.cm.Wrap(ctx, meta, map[string]resource.Blob{resource.DefaultVariant: initial})
	if err := r.Update(ctx, bin, WasmVariant); err != nil {
		return r, fmt.Errorf("add plugin %s: %w", url, err)
	}
	return r, m.Update(ctx)
}

// Flush waits for pending rebuilds triggered by change notifications.
func (m *Manager) Flush(ctx context.Context) error {
	return m.rebuild.Wait(ctx)
}

// Close removes the change subscription and stops pending rebuilds.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	sub, observing := m.sub, m.observing
	m.observing = false
	m.mu.Unlock()

	var err error
	if observing {
		err = m.cm.Service().Unobserve(ctx, sub)
	}
	m.rebuild.Close()
	return err
}
