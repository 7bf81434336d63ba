package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/contentsync/internal/resource"
	"github.com/roach88/contentsync/internal/service"
)

// Artwork is one image of a media session.
type Artwork struct {
	Src   string `json:"src"`
	Sizes string `json:"sizes,omitempty"`
	Type  string `json:"type,omitempty"`
}

// MediaInfo describes what is playing on a page.
type MediaInfo struct {
	Title           string    `json:"title,omitempty"`
	Album           string    `json:"album,omitempty"`
	Artist          string    `json:"artist,omitempty"`
	Artwork         []Artwork `json:"artwork,omitempty"`
	OGImage         string    `json:"ogImage,omitempty"`
	BackgroundColor string    `json:"backgroundColor,omitempty"`
}

// Media is the JSON content of a media entry.
type Media struct {
	URL  string `json:"url"`
	Icon string `json:"icon"`
	MediaInfo
}

// PosterURL returns the first artwork source, or the og:image when there
// is no artwork.
func (i MediaInfo) PosterURL() string {
	if len(i.Artwork) > 0 && i.Artwork[0].Src != "" {
		return i.Artwork[0].Src
	}
	return i.OGImage
}

// UpsertMedia creates or updates the media entry for url, then refreshes
// its icon and poster variants.
func (m *Manager) UpsertMedia(ctx context.Context, url, icon string, info MediaInfo) (*Resource, error) {
	url = CleanURL(url)
	if !ValidURL(url) {
		return nil, fmt.Errorf("upsert media: invalid url %q", url)
	}
	m.logger.Debug("upsert media", "url", url)

	parent, err := m.registry.Ensure(ctx, ContainerMedia)
	if err != nil {
		return nil, fmt.Errorf("upsert media: %w", err)
	}

	data, err := json.Marshal(Media{URL: url, Icon: icon, MediaInfo: info})
	if err != nil {
		return nil, fmt.Errorf("encode media: %w", err)
	}
	blob := resource.Blob{MimeType: resource.MimeMedia, Data: data}

	entry, err := m.ChildByName(ctx, parent, url, resource.DefaultVariant)
	switch {
	case err == nil:
		if err := entry.Update(ctx, blob, resource.DefaultVariant); err != nil {
			return nil, err
		}
	case errors.Is(err, service.ErrNotFound):
		entry, err = m.Create(ctx, parent, url, blob, []string{ContainerMedia})
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if icon != "" {
		entry.UpdateVariantFromURL(ctx, icon, IconVariant)
	}
	if poster := info.PosterURL(); poster != "" {
		entry.UpdateVariantFromURL(ctx, poster, PosterVariant)
	}
	return entry, nil
}
