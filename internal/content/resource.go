package content

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/contentsync/internal/resource"
	"github.com/roach88/contentsync/internal/service"
)

// Resource wraps a service resource with a cache of the variants read or
// written through it.
type Resource struct {
	m *Manager

	mu       sync.Mutex
	meta     resource.Meta
	variants map[string]resource.Blob
}

func newResource(m *Manager, meta resource.Meta) *Resource {
	meta.Variants = slices.Clone(meta.Variants)
	return &Resource{m: m, meta: meta, variants: make(map[string]resource.Blob)}
}

// Meta returns the resource metadata.
func (r *Resource) Meta() resource.Meta {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meta
}

// ID returns the resource id.
func (r *Resource) ID() resource.ID {
	return r.Meta().ID
}

// Variant returns the cached content of a variant, if it was loaded or
// written through this wrapper.
func (r *Resource) Variant(name string) (resource.Blob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.variants[name]
	return b, ok
}

// Update writes blob as the named variant.
func (r *Resource) Update(ctx context.Context, blob resource.Blob, variant string) error {
	if variant == "" {
		variant = resource.DefaultVariant
	}
	id := r.ID()
	if err := r.m.svc.UpdateVariant(ctx, id, variant, blob); err != nil {
		return fmt.Errorf("update %s/%s: %w", id, variant, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.variants[variant] = blob
	desc := resource.VariantDesc{Name: variant, MimeType: blob.MimeType, Size: int64(len(blob.Data))}
	for i, v := range r.meta.Variants {
		if v.Name == variant {
			r.meta.Variants[i] = desc
			return nil
		}
	}
	r.meta.Variants = append(r.meta.Variants, desc)
	return nil
}

// UpdateVariantFromURL fetches url and stores the result as the named
// variant. Failures are logged and swallowed; it reports whether a write
// happened.
func (r *Resource) UpdateVariantFromURL(ctx context.Context, url, variant string) bool {
	logger := r.m.logger.With("id", r.ID(), "variant", variant)
	if url == "" {
		logger.Error("mandatory url parameter missing")
		return false
	}
	if variant == "" {
		logger.Error("mandatory variant parameter missing")
		return false
	}

	blob, err := r.m.fetcher.Fetch(ctx, url)
	if err != nil {
		logger.Error("failed to fetch variant", "url", url, "error", err)
		return false
	}
	if err := r.Update(ctx, blob, variant); err != nil {
		logger.Error("failed to update variant", "url", url, "error", err)
		return false
	}
	return true
}

// Delete removes the resource from the service.
func (r *Resource) Delete(ctx context.Context) error {
	id := r.ID()
	if err := r.m.svc.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variants = make(map[string]resource.Blob)
	return nil
}

// Observe subscribes fn to changes of the resource.
func (r *Resource) Observe(ctx context.Context, fn service.ChangeFunc) (service.Subscription, error) {
	id := r.ID()
	sub, err := r.m.svc.Observe(ctx, id, fn)
	if err != nil {
		r.m.logger.Error("failed to add observer", "id", id, "error", err)
		return 0, fmt.Errorf("observe %s: %w", id, err)
	}
	return sub, nil
}

// VariantURL returns the readable URL of a variant.
func (r *Resource) VariantURL(variant string) string {
	if variant == "" {
		variant = resource.DefaultVariant
	}
	return r.m.variantURL(r.ID(), variant)
}
