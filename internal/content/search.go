package content

import (
	"context"
	"fmt"

	"github.com/roach88/contentsync/internal/cursor"
	"github.com/roach88/contentsync/internal/listing"
	"github.com/roach88/contentsync/internal/resource"
)

var (
	placesVariants = []string{IconVariant}
	mediaVariants  = []string{IconVariant, PosterVariant}
)

// Search runs a service search restricted to tag (empty for any) and
// passes content-resolved results to fn, then nil once at the end.
func (m *Manager) Search(ctx context.Context, query string, maxCount int, tag string, variantNames []string, fn func(*listing.Entry) bool) error {
	cur, err := m.svc.Search(ctx, query, maxCount, tag)
	if err != nil {
		return fmt.Errorf("search %q: %w", query, err)
	}
	m.listContent(ctx, cur, variantNames, fn)
	return nil
}

// SearchMetadata is Search without content resolution.
func (m *Manager) SearchMetadata(ctx context.Context, query string, maxCount int, tag string, fn func(*resource.Meta) bool) error {
	cur, err := m.svc.Search(ctx, query, maxCount, tag)
	if err != nil {
		return fmt.Errorf("search %q: %w", query, err)
	}
	m.lister.Metadata(ctx, cur, fn)
	return nil
}

// SearchPlaces searches the places entries.
func (m *Manager) SearchPlaces(ctx context.Context, query string, maxCount int, fn func(*listing.Entry) bool) error {
	return m.Search(ctx, query, maxCount, ContainerPlaces, placesVariants, fn)
}

// SearchMedia searches the media entries.
func (m *Manager) SearchMedia(ctx context.Context, query string, maxCount int, fn func(*listing.Entry) bool) error {
	return m.Search(ctx, query, maxCount, ContainerMedia, mediaVariants, fn)
}

// TopByFrecency lists the most frequently and recently visited entries.
func (m *Manager) TopByFrecency(ctx context.Context, maxCount int, fn func(*listing.Entry) bool) error {
	cur, err := m.svc.TopByFrecency(ctx, maxCount)
	if err != nil {
		return fmt.Errorf("top by frecency: %w", err)
	}
	m.listContent(ctx, cur, mediaVariants, fn)
	return nil
}

// LastModified lists the most recently modified entries.
func (m *Manager) LastModified(ctx context.Context, maxCount int, fn func(*listing.Entry) bool) error {
	cur, err := m.svc.LastModified(ctx, maxCount)
	if err != nil {
		return fmt.Errorf("last modified: %w", err)
	}
	m.listContent(ctx, cur, mediaVariants, fn)
	return nil
}

// Children lists the children of a container as bare metadata.
func (m *Manager) Children(ctx context.Context, parent resource.ID, fn func(*resource.Meta) bool) error {
	cur, err := m.svc.ChildrenOf(ctx, parent)
	if err != nil {
		return fmt.Errorf("children of %s: %w", parent, err)
	}
	m.lister.Metadata(ctx, cur, fn)
	return nil
}

func (m *Manager) listContent(ctx context.Context, cur cursor.Cursor, variantNames []string, fn func(*listing.Entry) bool) {
	// Variant URLs embed the http key.
	m.HTTPKey(ctx)
	m.lister.Content(ctx, cur, variantNames, fn)
}
