package service

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/contentsync/internal/resource"
)

// Fetcher retrieves binary content referenced by URL (icons, posters,
// plugin binaries).
type Fetcher interface {
	Fetch(ctx context.Context, url string) (resource.Blob, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (resource.Blob, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, url string) (resource.Blob, error) {
	return f(ctx, url)
}

// DefaultMaxFetchSize bounds the body size accepted by HTTPFetcher.
const DefaultMaxFetchSize = 32 << 20

// HTTPFetcher fetches URLs over HTTP.
type HTTPFetcher struct {
	Client  *http.Client
	MaxSize int64
}

// NewHTTPFetcher returns a fetcher whose requests time out after timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		Client:  &http.Client{Timeout: timeout},
		MaxSize: DefaultMaxFetchSize,
	}
}

// Fetch implements Fetcher. Non-2xx responses are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (resource.Blob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return resource.Blob{}, fmt.Errorf("fetch %s: %w", url, err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return resource.Blob{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resource.Blob{}, fmt.Errorf("fetch %s: %s", url, resp.Status)
	}

	limit := f.MaxSize
	if limit <= 0 {
		limit = DefaultMaxFetchSize
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return resource.Blob{}, fmt.Errorf("fetch %s: read body: %w", url, err)
	}
	if int64(len(data)) > limit {
		return resource.Blob{}, fmt.Errorf("fetch %s: body exceeds %d bytes", url, limit)
	}

	return resource.Blob{MimeType: mediaType(resp.Header.Get("Content-Type")), Data: data}, nil
}

// mediaType strips parameters such as charset from a Content-Type header.
func mediaType(contentType string) string {
	if contentType == "" {
		return "application/octet-stream"
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mt
}

// FileFetcher reads local paths and file:// URLs from disk and hands
// everything else to Remote.
type FileFetcher struct {
	Remote Fetcher
}

// Fetch implements Fetcher.
func (f FileFetcher) Fetch(ctx context.Context, url string) (resource.Blob, error) {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		if f.Remote == nil {
			return resource.Blob{}, fmt.Errorf("fetch %s: no remote fetcher", url)
		}
		return f.Remote.Fetch(ctx, url)
	}

	path := strings.TrimPrefix(url, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return resource.Blob{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return resource.Blob{MimeType: mediaType(mimeType), Data: data}, nil
}
