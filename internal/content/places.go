package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/contentsync/internal/coalesce"
	"github.com/roach88/contentsync/internal/resource"
	"github.com/roach88/contentsync/internal/service"
)

// IconVariant and PosterVariant name the secondary variants of places and
// media entries.
const (
	IconVariant   = "icon"
	PosterVariant = "poster"
)

// Place is the JSON content of a places entry.
type Place struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Icon  string `json:"icon"`
}

// CleanURL trims url and drops its fragment.
func CleanURL(url string) string {
	url = strings.TrimSpace(url)
	if i := strings.IndexByte(url, '#'); i >= 0 {
		url = url[:i]
	}
	return url
}

// ValidURL reports whether url may be recorded in places or media.
//
// Extension urls don't survive reinstallation and reader urls are not
// meant to be navigated to directly.
func ValidURL(url string) bool {
	switch {
	case url == "", url == "about:blank":
		return false
	case strings.HasPrefix(url, "moz-extension:"), strings.HasPrefix(url, "about:reader?url="):
		return false
	}
	return true
}

// UpsertPlace records a visit-worthy page in the places container.
//
// Writes for the same url are coalesced: while a write is in flight, later
// calls only replace the pending value, so intermediate states may never
// reach the service. It reports whether the place was accepted.
func (m *Manager) UpsertPlace(url, title, icon string) bool {
	url = CleanURL(url)
	if !ValidURL(url) {
		m.logger.Debug("ignoring place", "url", url)
		return false
	}
	m.logger.Debug("upsert place", "url", url, "title", title, "icon", icon)
	return m.places.Enqueue(url, Place{URL: url, Title: title, Icon: icon})
}

// placesQueue persists places through a coalescing queue keyed by url.
type placesQueue struct {
	*coalesce.Queue[string, Place]
	m *Manager
}

func newPlacesQueue(ctx context.Context, m *Manager) *placesQueue {
	p := &placesQueue{m: m}
	p.Queue = coalesce.New[string, Place](ctx, ContainerPlaces, coalesce.Funcs[string, Place]{
		PrepareFunc: p.prepare,
		ApplyFunc:   p.apply,
	}, coalesce.WithLogger(m.base), coalesce.WithMetrics(m.metrics))
	return p
}

func (p *placesQueue) prepare(ctx context.Context, _ string) error {
	_, err := p.m.registry.Ensure(ctx, ContainerPlaces)
	return err
}

func (p *placesQueue) apply(ctx context.Context, url string, place Place) error {
	parent, ok := p.m.registry.Lookup(ContainerPlaces)
	if !ok {
		return fmt.Errorf("places container not bound")
	}

	data, err := json.Marshal(place)
	if err != nil {
		return fmt.Errorf("encode place: %w", err)
	}
	blob := resource.Blob{MimeType: resource.MimePlaces, Data: data}

	updateIcon := true
	entry, err := p.m.ChildByName(ctx, parent, url, resource.DefaultVariant)
	switch {
	case err == nil:
		if current, ok := entry.Variant(resource.DefaultVariant); ok && len(current.Data) > 0 {
			var stored Place
			if err := json.Unmarshal(current.Data, &stored); err == nil {
				updateIcon = stored.Icon != place.Icon
			}
		}
		if err := entry.Update(ctx, blob, resource.DefaultVariant); err != nil {
			return err
		}
	case errors.Is(err, service.ErrNotFound):
		entry, err = p.m.Create(ctx, parent, url, blob, []string{ContainerPlaces})
		if err != nil {
			return err
		}
	default:
		return err
	}

	if updateIcon && place.Icon != "" {
		entry.UpdateVariantFromURL(ctx, place.Icon, IconVariant)
	}
	return nil
}

// VisitPlace records a visit of url in the places container.
func (m *Manager) VisitPlace(ctx context.Context, url string, priority service.VisitPriority) error {
	return m.visit(ctx, url, ContainerPlaces, priority)
}

// VisitMedia records a visit of url in the media container.
func (m *Manager) VisitMedia(ctx context.Context, url string, priority service.VisitPriority) error {
	return m.visit(ctx, url, ContainerMedia, priority)
}

func (m *Manager) visit(ctx context.Context, url, container string, priority service.VisitPriority) error {
	url = CleanURL(url)
	if !ValidURL(url) {
		return nil
	}
	m.logger.Debug("visit", "container", container, "url", url)

	parent, err := m.registry.Ensure(ctx, container)
	if err != nil {
		return err
	}
	if err := m.svc.VisitByName(ctx, parent, resource.NormalizeName(url), priority); err != nil {
		return fmt.Errorf("visit %s: %w", url, err)
	}
	return nil
}
