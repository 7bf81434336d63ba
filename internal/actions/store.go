// Package actions persists the shortcuts shown on the homescreen in the
// "homescreen" container of the content service.
//
// The Store moves from Uninitialized through Initializing to Ready. On
// first run the container is seeded from a bundled default list; later runs
// load the stored actions. Mutations update the in-memory list and persist
// only the affected leaf.
package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/contentsync/internal/content"
	"github.com/roach88/contentsync/internal/listing"
	"github.com/roach88/contentsync/internal/resource"
	"github.com/roach88/contentsync/internal/service"
)

// Container is the top-level container holding actions.
const Container = "homescreen"

// IconVariant holds an action's icon.
const IconVariant = "icon"

var (
	// ErrNotReady is returned by mutations issued before Init completed.
	ErrNotReady = errors.New("action store not ready")
	// ErrUnknownAction is returned when no action has the given id.
	ErrUnknownAction = errors.New("unknown action")
	// ErrDuplicateAction is returned by Add when the id is taken.
	ErrDuplicateAction = errors.New("duplicate action")
)

// State is the lifecycle state of a Store.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures a Store.
type Options struct {
	// Port replaces the local port placeholder in default urls.
	Port int
	// Defaults holds actions.json, schema.cue and bundled icons. Nil means
	// DefaultBundle().
	Defaults fs.FS
}

// Store holds the homescreen actions.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	cm       *content.Manager
	port     int
	defaults fs.FS
	logger   *slog.Logger

	mu        sync.RWMutex
	state     State
	container resource.ID
	actions   []*Action
	ready     chan struct{}
	pending   *initAttempt
}

// initAttempt is one run of Init that concurrent callers wait on.
type initAttempt struct {
	done chan struct{}
	err  error
}

// New returns an uninitialized Store.
func New(cm *content.Manager, opts Options) *Store {
	defaults := opts.Defaults
	if defaults == nil {
		defaults = DefaultBundle()
	}
	return &Store{
		cm:       cm,
		port:     opts.Port,
		defaults: defaults,
		logger:   cm.Logger().With("component", "actions"),
		ready:    make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Ready returns a channel closed once the initial load completed.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Init resolves the container and loads or seeds the actions. Concurrent
// calls wait for the attempt in flight and share its result. A failed Init
// may be retried.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateReady:
		s.mu.Unlock()
		return nil
	case StateInitializing:
		a := s.pending
		s.mu.Unlock()
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	a := &initAttempt{done: make(chan struct{})}
	s.pending = a
	s.state = StateInitializing
	s.mu.Unlock()

	actions, container, err := s.load(ctx)

	s.mu.Lock()
	a.err = err
	s.pending = nil
	if err != nil {
		s.state = StateUninitialized
	} else {
		s.container = container
		s.actions = actions
		s.state = StateReady
		close(s.ready)
		s.logger.Info("store ready", "actions", len(actions))
	}
	s.mu.Unlock()
	close(a.done)
	return err
}

func (s *Store) load(ctx context.Context) ([]*Action, resource.ID, error) {
	existed := s.cm.HasTopLevelContainer(ctx, Container)
	container, err := s.cm.EnsureTopLevelContainer(ctx, Container)
	if err != nil {
		return nil, "", fmt.Errorf("homescreen container: %w", err)
	}

	if existed {
		return s.loadStored(ctx, container), container, nil
	}

	s.logger.Info("no actions in container, loading defaults")
	defaults, err := readBundle(s.defaults, s.port)
	if err != nil {
		return nil, "", err
	}
	actions := s.loadIcons(ctx, s.defaults, s.cm.Fetcher(), defaults)
	for _, a := range actions {
		if err := s.persist(ctx, container, a); err != nil {
			s.logger.Error("failed to save default action", "action", a.ID, "error", err)
		}
	}
	return actions, container, nil
}

func (s *Store) loadStored(ctx context.Context, container resource.ID) []*Action {
	cur, err := s.cm.Service().ChildrenOf(ctx, container)
	if err != nil {
		s.logger.Error("failed to list actions", "error", err)
		return nil
	}

	var out []*Action
	s.cm.HTTPKey(ctx)
	s.cm.Lister().Content(ctx, cur, []string{IconVariant}, func(e *listing.Entry) bool {
		if e == nil {
			return false
		}
		var a Action
		if err := json.Unmarshal(e.Content, &a); err != nil {
			s.logger.Warn("skipping malformed action", "name", e.Meta.Name, "error", err)
			return true
		}
		a.IconURL = e.Variants[IconVariant]
		out = append(out, &a)
		return true
	})
	return out
}

// persist creates or updates the leaf of a. The action id is the resource
// name.
func (s *Store) persist(ctx context.Context, container resource.ID, a *Action) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode action %s: %w", a.ID, err)
	}
	blob := resource.Blob{MimeType: resource.MimeJSON, Data: data}

	entry, err := s.cm.ChildByName(ctx, container, a.ID, resource.DefaultVariant)
	switch {
	case err == nil:
		if err := entry.Update(ctx, blob, resource.DefaultVariant); err != nil {
			return err
		}
	case errors.Is(err, service.ErrNotFound):
		entry, err = s.cm.Create(ctx, container, a.ID, blob, []string{})
		if err != nil {
			return err
		}
	default:
		return err
	}

	if a.Icon != nil {
		if err := entry.Update(ctx, *a.Icon, IconVariant); err != nil {
			return err
		}
		a.IconURL = entry.VariantURL(IconVariant)
	}
	return nil
}

// readyContainer returns the container id, or ErrNotReady.
func (s *Store) readyContainer() (resource.ID, error) {
	if s.state != StateReady {
		return "", ErrNotReady
	}
	return s.container, nil
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.actions, func(a *Action) bool { return a.ID == id })
}

// Add appends a new action and persists it.
func (s *Store) Add(ctx context.Context, a Action) error {
	s.mu.Lock()
	container, err := s.readyContainer()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.indexLocked(a.ID) >= 0 {
		s.mu.Unlock()
		return fmt.Errorf("add %s: %w", a.ID, ErrDuplicateAction)
	}
	stored := a.Clone()
	s.actions = append(s.actions, &stored)
	s.mu.Unlock()

	return s.save(ctx, container, stored)
}

// Update replaces the action with the same id and persists it.
func (s *Store) Update(ctx context.Context, a Action) error {
	s.mu.Lock()
	container, err := s.readyContainer()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	i := s.indexLocked(a.ID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("update %s: %w", a.ID, ErrUnknownAction)
	}
	stored := a.Clone()
	if stored.Icon == nil {
		stored.IconURL = s.actions[i].IconURL
	}
	s.actions[i] = &stored
	s.mu.Unlock()

	return s.save(ctx, container, stored)
}

// UpdatePosition moves the action to position and persists it.
func (s *Store) UpdatePosition(ctx context.Context, id, position string) error {
	s.mu.Lock()
	container, err := s.readyContainer()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("move %s: %w", id, ErrUnknownAction)
	}
	moved := s.actions[i].Clone()
	moved.Position = position
	moved.Icon = nil
	s.actions[i] = &moved
	s.mu.Unlock()

	return s.save(ctx, container, moved)
}

func (s *Store) save(ctx context.Context, container resource.ID, a Action) error {
	if err := s.persist(ctx, container, &a); err != nil {
		return err
	}

	// Record the icon url persist derived.
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(a.ID); i >= 0 && a.IconURL != "" {
		s.actions[i].IconURL = a.IconURL
	}
	return nil
}

// Remove deletes the action from the list and the service.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	container, err := s.readyContainer()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		s.logger.Error("no action to remove", "action", id)
		return fmt.Errorf("remove %s: %w", id, ErrUnknownAction)
	}
	s.actions = slices.Delete(s.actions, i, i+1)
	s.mu.Unlock()

	entry, err := s.cm.ChildByName(ctx, container, id, resource.DefaultVariant)
	if errors.Is(err, service.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	return entry.Delete(ctx)
}

// Get returns the action with the given id.
func (s *Store) Get(id string) (Action, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.actions[i].Clone(), true
	}
	return Action{}, false
}

// GetByApp returns the action launching the app with the given manifest url.
func (s *Store) GetByApp(manifestURL string) (Action, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.actions {
		if a.App == manifestURL {
			return a.Clone(), true
		}
	}
	return Action{}, false
}

// List returns copies of all actions in order.
func (s *Store) List() []Action {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Action, 0, len(s.actions))
	for _, a := range s.actions {
		out = append(out, a.Clone())
	}
	return out
}

// Icon returns the stored icon of the action.
func (s *Store) Icon(ctx context.Context, id string) (resource.Blob, error) {
	s.mu.RLock()
	container, err := s.readyContainer()
	i := s.indexLocked(id)
	var cached *resource.Blob
	if i >= 0 {
		cached = s.actions[i].Icon
	}
	s.mu.RUnlock()
	if err != nil {
		return resource.Blob{}, err
	}
	if i < 0 {
		return resource.Blob{}, fmt.Errorf("icon %s: %w", id, ErrUnknownAction)
	}
	if cached != nil {
		return *cached, nil
	}

	entry, err := s.cm.ChildByName(ctx, container, id, IconVariant)
	if err != nil {
		return resource.Blob{}, fmt.Errorf("icon %s: %w", id, err)
	}
	blob, ok := entry.Variant(IconVariant)
	if !ok {
		return resource.Blob{}, fmt.Errorf("icon %s: %w", id, service.ErrNotFound)
	}
	return blob, nil
}

// EmptySlots returns the free grid cells for a grid width cells wide, in
// row-major order.
func (s *Store) EmptySlots(width int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return emptySlots(s.actions, width)
}
