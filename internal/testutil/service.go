package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/contentsync/internal/cursor"
	"github.com/roach88/contentsync/internal/resource"
	"github.com/roach88/contentsync/internal/service"
)

// Write records one variant write issued against the fake service.
type Write struct {
	ID      resource.ID
	Name    string // resource name, for readable assertions
	Variant string
	Blob    resource.Blob
}

type fakeResource struct {
	meta     resource.Meta
	children []resource.ID
	variants map[string]resource.Blob
	visits   int
	modified int64
}

// FakeService is an in-memory service.Service for tests.
//
// It records every variant write and create, supports blocking Root calls
// behind a gate to hold drains and resolutions open, and can inject
// failures.
//
// Thread-safety: all methods are safe for concurrent use.
type FakeService struct {
	mu        sync.Mutex
	resources map[resource.ID]*fakeResource
	nextID    int
	seq       int64
	writes    []Write
	creates   []resource.CreateRequest
	calls     map[string]int
	observers map[service.Subscription]observer
	nextSub   service.Subscription

	// PageSize is the batch size of returned cursors (default 2).
	PageSize int
	// Key is returned by HTTPKey.
	Key string

	rootGate chan struct{}

	// CreateErr, when set, is consulted before every Create.
	CreateErr func(req resource.CreateRequest) error
	// VariantErr, when set, is consulted before every Variant/VariantJSON read.
	VariantErr func(id resource.ID, variant string) error
	// UpdateErr, when set, is consulted before every UpdateVariant.
	UpdateErr func(id resource.ID, variant string) error
	// ChildByNameErr, when set, is consulted before every ChildByName.
	ChildByNameErr func(parent resource.ID, name string) error
}

type observer struct {
	id resource.ID
	fn service.ChangeFunc
}

var _ service.Service = (*FakeService)(nil)

// NewFakeService returns a fake holding only the root container.
func NewFakeService() *FakeService {
	f := &FakeService{
		resources: make(map[resource.ID]*fakeResource),
		calls:     make(map[string]int),
		observers: make(map[service.Subscription]observer),
		PageSize:  2,
		Key:       "test-key",
	}
	f.resources[resource.RootID] = &fakeResource{
		meta:     resource.Meta{ID: resource.RootID, Name: "", Kind: resource.KindContainer},
		variants: make(map[string]resource.Blob),
	}
	return f
}

// HoldRoot makes Root block until the returned release func is called.
func (f *FakeService) HoldRoot() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.rootGate = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.rootGate = nil
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns how many times method was invoked.
func (f *FakeService) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Writes returns all variant writes, in order.
func (f *FakeService) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.writes)
}

// WritesFor returns the writes of one variant of the resource named name.
func (f *FakeService) WritesFor(name, variant string) []Write {
	var out []Write
	for _, w := range f.Writes() {
		if w.Name == name && w.Variant == variant {
			out = append(out, w)
		}
	}
	return out
}

// Creates returns every create request, in order.
func (f *FakeService) Creates() []resource.CreateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.creates)
}

// MustAdd inserts a resource directly, bypassing call recording, and
// returns its metadata. variants maps variant name to blob.
func (f *FakeService) MustAdd(parent resource.ID, name string, kind resource.Kind, variants map[string]resource.Blob) resource.Meta {
	f.mu.Lock()
	defer f.mu.Unlock()

	meta, err := f.insertLocked(resource.CreateRequest{Parent: parent, Name: name, Kind: kind})
	if err != nil {
		panic(err)
	}
	r := f.resources[meta.ID]
	for v, blob := range variants {
		f.setVariantLocked(r, v, blob)
	}
	return r.meta
}

func (f *FakeService) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
}

// Root implements service.Service.
func (f *FakeService) Root(ctx context.Context) (resource.Meta, error) {
	f.mu.Lock()
	f.calls["Root"]++
	gate := f.rootGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return resource.Meta{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resources[resource.RootID].meta, nil
}

// Metadata implements service.Service.
func (f *FakeService) Metadata(ctx context.Context, id resource.ID) (resource.Meta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Metadata"]++
	r, ok := f.resources[id]
	if !ok {
		return resource.Meta{}, fmt.Errorf("metadata %s: %w", id, service.ErrNotFound)
	}
	return r.meta, nil
}

// ChildByName implements service.Service.
func (f *FakeService) ChildByName(ctx context.Context, parent resource.ID, name string) (resource.Meta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ChildByName"]++
	if f.ChildByNameErr != nil {
		if err := f.ChildByNameErr(parent, name); err != nil {
			return resource.Meta{}, err
		}
	}
	if r := f.childLocked(parent, name); r != nil {
		return r.meta, nil
	}
	return resource.Meta{}, fmt.Errorf("child %q of %s: %w", name, parent, service.ErrNotFound)
}

// ChildrenOf implements service.Service.
func (f *FakeService) ChildrenOf(ctx context.Context, parent resource.ID) (cursor.Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ChildrenOf"]++
	p, ok := f.resources[parent]
	if !ok {
		return nil, fmt.Errorf("children of %s: %w", parent, service.ErrNotFound)
	}
	entries := make([]resource.Meta, 0, len(p.children))
	for _, id := range p.children {
		entries = append(entries, f.resources[id].meta)
	}
	return cursor.FromSlice(entries, f.PageSize), nil
}

// Create implements service.Service.
func (f *FakeService) Create(ctx context.Context, req resource.CreateRequest, variant string, initial *resource.Blob) (resource.Meta, error) {
	f.mu.Lock()
	f.calls["Create"]++
	f.creates = append(f.creates, req)
	hook := f.CreateErr
	f.mu.Unlock()

	if hook != nil {
		if err := hook(req); err != nil {
			return resource.Meta{}, err
		}
	}

	f.mu.Lock()
	meta, err := f.insertLocked(req)
	if err != nil {
		f.mu.Unlock()
		return resource.Meta{}, err
	}
	if initial != nil {
		if variant == "" {
			variant = resource.DefaultVariant
		}
		r := f.resources[meta.ID]
		f.setVariantLocked(r, variant, *initial)
		f.writes = append(f.writes, Write{ID: meta.ID, Name: req.Name, Variant: variant, Blob: *initial})
		meta = r.meta
	}
	f.mu.Unlock()

	f.notify(req.Parent, service.Change{Kind: service.ChangeChildCreated, ID: req.Parent, Target: meta.ID})
	return meta, nil
}

// UpdateVariant implements service.Service.
func (f *FakeService) UpdateVariant(ctx context.Context, id resource.ID, variant string, blob resource.Blob) error {
	f.mu.Lock()
	f.calls["UpdateVariant"]++
	hook := f.UpdateErr
	f.mu.Unlock()

	if hook != nil {
		if err := hook(id, variant); err != nil {
			return err
		}
	}

	f.mu.Lock()
	r, ok := f.resources[id]
	if !ok {
		f.mu.Unlock()
		return fmt.Errorf("update %s: %w", id, service.ErrNotFound)
	}
	f.setVariantLocked(r, variant, blob)
	f.writes = append(f.writes, Write{ID: id, Name: r.meta.Name, Variant: variant, Blob: blob})
	parent := r.meta.Parent
	f.mu.Unlock()

	f.notify(id, service.Change{Kind: service.ChangeUpdated, ID: id, Target: id})
	f.notify(parent, service.Change{Kind: service.ChangeChildUpdated, ID: parent, Target: id})
	return nil
}

// Delete implements service.Service.
func (f *FakeService) Delete(ctx context.Context, id resource.ID) error {
	f.mu.Lock()
	f.calls["Delete"]++
	r, ok := f.resources[id]
	if !ok || id == resource.RootID {
		f.mu.Unlock()
		return fmt.Errorf("delete %s: %w", id, service.ErrNotFound)
	}
	parent := r.meta.Parent
	f.deleteLocked(id)
	f.mu.Unlock()

	f.notify(id, service.Change{Kind: service.ChangeDeleted, ID: id, Target: id})
	f.notify(parent, service.Change{Kind: service.ChangeChildDeleted, ID: parent, Target: id})
	return nil
}

// Variant implements service.Service.
func (f *FakeService) Variant(ctx context.Context, id resource.ID, variant string) (resource.Blob, error) {
	f.mu.Lock()
	f.calls["Variant"]++
	hook := f.VariantErr
	f.mu.Unlock()

	if hook != nil {
		if err := hook(id, variant); err != nil {
			return resource.Blob{}, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resources[id]
	if !ok {
		return resource.Blob{}, fmt.Errorf("variant %s/%s: %w", id, variant, service.ErrNotFound)
	}
	blob, ok := r.variants[variant]
	if !ok {
		return resource.Blob{}, fmt.Errorf("variant %s/%s: %w", id, variant, service.ErrNotFound)
	}
	return resource.Blob{MimeType: blob.MimeType, Data: slices.Clone(blob.Data)}, nil
}

// VariantJSON implements service.Service.
func (f *FakeService) VariantJSON(ctx context.Context, id resource.ID, variant string) (json.RawMessage, error) {
	blob, err := f.Variant(ctx, id, variant)
	if err != nil {
		return nil, err
	}
	if !json.Valid(blob.Data) {
		return nil, fmt.Errorf("variant %s/%s is not valid json", id, variant)
	}
	return json.RawMessage(blob.Data), nil
}

// Search implements service.Service with a case-insensitive substring match
// on names and default content.
func (f *FakeService) Search(ctx context.Context, query string, maxCount int, tag string) (cursor.Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Search"]++

	q := strings.ToLower(query)
	var out []resource.Meta
	for _, r := range f.orderedLocked() {
		if tag != "" && !slices.Contains(r.meta.Tags, tag) {
			continue
		}
		content := strings.ToLower(string(r.variants[resource.DefaultVariant].Data))
		if strings.Contains(strings.ToLower(r.meta.Name), q) || strings.Contains(content, q) {
			out = append(out, r.meta)
		}
	}
	return cursor.FromSlice(limit(out, maxCount), f.PageSize), nil
}

// TopByFrecency implements service.Service ordering by visit count.
func (f *FakeService) TopByFrecency(ctx context.Context, maxCount int) (cursor.Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["TopByFrecency"]++

	rs := f.orderedLocked()
	slices.SortStableFunc(rs, func(a, b *fakeResource) int { return b.visits - a.visits })
	var out []resource.Meta
	for _, r := range rs {
		if r.visits > 0 {
			out = append(out, r.meta)
		}
	}
	return cursor.FromSlice(limit(out, maxCount), f.PageSize), nil
}

// LastModified implements service.Service.
func (f *FakeService) LastModified(ctx context.Context, maxCount int) (cursor.Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["LastModified"]++

	rs := f.orderedLocked()
	slices.SortStableFunc(rs, func(a, b *fakeResource) int {
		switch {
		case a.modified > b.modified:
			return -1
		case a.modified < b.modified:
			return 1
		}
		return 0
	})
	var out []resource.Meta
	for _, r := range rs {
		if r.meta.Kind == resource.KindLeaf {
			out = append(out, r.meta)
		}
	}
	return cursor.FromSlice(limit(out, maxCount), f.PageSize), nil
}

// VisitByName implements service.Service.
func (f *FakeService) VisitByName(ctx context.Context, parent resource.ID, name string, priority service.VisitPriority) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["VisitByName"]++
	r := f.childLocked(parent, name)
	if r == nil {
		return fmt.Errorf("visit %q: %w", name, service.ErrNotFound)
	}
	if priority == service.VisitHigh {
		r.visits += 5
	} else {
		r.visits++
	}
	return nil
}

// Observe implements service.Service. Handlers run synchronously after the
// mutation that triggered them.
func (f *FakeService) Observe(ctx context.Context, id resource.ID, fn service.ChangeFunc) (service.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Observe"]++
	if _, ok := f.resources[id]; !ok {
		return 0, fmt.Errorf("observe %s: %w", id, service.ErrNotFound)
	}
	f.nextSub++
	f.observers[f.nextSub] = observer{id: id, fn: fn}
	return f.nextSub, nil
}

// Unobserve implements service.Service.
func (f *FakeService) Unobserve(ctx context.Context, sub service.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Unobserve"]++
	delete(f.observers, sub)
	return nil
}

// Observers returns the number of active subscriptions.
func (f *FakeService) Observers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.observers)
}

// HTTPKey implements service.Service.
func (f *FakeService) HTTPKey(ctx context.Context) (string, error) {
	f.record("HTTPKey")
	return f.Key, nil
}

func (f *FakeService) notify(id resource.ID, change service.Change) {
	if id == "" {
		return
	}
	f.mu.Lock()
	var fns []service.ChangeFunc
	for _, o := range f.observers {
		if o.id == id {
			fns = append(fns, o.fn)
		}
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

func (f *FakeService) insertLocked(req resource.CreateRequest) (resource.Meta, error) {
	parent, ok := f.resources[req.Parent]
	if !ok {
		return resource.Meta{}, fmt.Errorf("create %q: parent %s: %w", req.Name, req.Parent, service.ErrNotFound)
	}
	if parent.meta.Kind != resource.KindContainer {
		return resource.Meta{}, fmt.Errorf("create %q: parent %s is not a container", req.Name, req.Parent)
	}
	if f.childLocked(req.Parent, req.Name) != nil {
		return resource.Meta{}, fmt.Errorf("create %q: %w", req.Name, service.ErrExists)
	}

	f.nextID++
	f.seq++
	id := resource.ID(fmt.Sprintf("r%d", f.nextID))
	f.resources[id] = &fakeResource{
		meta: resource.Meta{
			ID:     id,
			Parent: req.Parent,
			Name:   req.Name,
			Kind:   req.Kind,
			Tags:   slices.Clone(req.Tags),
		},
		variants: make(map[string]resource.Blob),
		modified: f.seq,
	}
	parent.children = append(parent.children, id)
	return f.resources[id].meta, nil
}

func (f *FakeService) setVariantLocked(r *fakeResource, variant string, blob resource.Blob) {
	r.variants[variant] = resource.Blob{MimeType: blob.MimeType, Data: slices.Clone(blob.Data)}
	f.seq++
	r.modified = f.seq

	// Copy on write: metadata handed out earlier must not change underneath
	// its holder.
	r.meta.Variants = slices.Clone(r.meta.Variants)
	desc := resource.VariantDesc{Name: variant, MimeType: blob.MimeType, Size: int64(len(blob.Data))}
	for i, v := range r.meta.Variants {
		if v.Name == variant {
			r.meta.Variants[i] = desc
			return
		}
	}
	r.meta.Variants = append(r.meta.Variants, desc)
}

func (f *FakeService) deleteLocked(id resource.ID) {
	r := f.resources[id]
	for _, child := range r.children {
		f.deleteLocked(child)
	}
	if p, ok := f.resources[r.meta.Parent]; ok {
		p.children = slices.DeleteFunc(p.children, func(c resource.ID) bool { return c == id })
	}
	delete(f.resources, id)
}

func (f *FakeService) childLocked(parent resource.ID, name string) *fakeResource {
	p, ok := f.resources[parent]
	if !ok {
		return nil
	}
	for _, id := range p.children {
		if f.resources[id].meta.Name == name {
			return f.resources[id]
		}
	}
	return nil
}

// orderedLocked returns all non-root resources in creation order.
func (f *FakeService) orderedLocked() []*fakeResource {
	out := make([]*fakeResource, 0, len(f.resources))
	for i := 1; i <= f.nextID; i++ {
		if r, ok := f.resources[resource.ID(fmt.Sprintf("r%d", i))]; ok {
			out = append(out, r)
		}
	}
	return out
}

func limit(entries []resource.Meta, maxCount int) []resource.Meta {
	if maxCount > 0 && len(entries) > maxCount {
		return entries[:maxCount]
	}
	return entries
}
