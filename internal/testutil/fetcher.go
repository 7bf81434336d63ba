package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/contentsync/internal/resource"
)

// FakeFetcher serves canned blobs by URL and records every request.
type FakeFetcher struct {
	mu       sync.Mutex
	blobs    map[string]resource.Blob
	requests []string
}

// NewFakeFetcher returns a fetcher serving blobs.
func NewFakeFetcher(blobs map[string]resource.Blob) *FakeFetcher {
	if blobs == nil {
		blobs = make(map[string]resource.Blob)
	}
	return &FakeFetcher{blobs: blobs}
}

// Set registers a blob for url.
func (f *FakeFetcher) Set(url string, blob resource.Blob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[url] = blob
}

// Fetch implements service.Fetcher. Unknown URLs fail.
func (f *FakeFetcher) Fetch(ctx context.Context, url string) (resource.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, url)
	blob, ok := f.blobs[url]
	if !ok {
		return resource.Blob{}, fmt.Errorf("fetch %s: 404 Not Found", url)
	}
	return blob, nil
}

// Requests returns every requested URL, in order.
func (f *FakeFetcher) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}
