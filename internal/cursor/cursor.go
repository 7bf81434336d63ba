package cursor

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/contentsync/internal/resource"
)

// ErrEnd is returned by Cursor.Next when no more entries are available.
var ErrEnd = errors.New("cursor: no more entries")

// Cursor is a raw, service-provided handle over a paginated result.
//
// Next returns the next non-empty batch, or an error once the result is
// exhausted. Calling Next after Release is undefined.
type Cursor interface {
	Next(ctx context.Context) ([]resource.Meta, error)
	Release()
}

// sliceCursor serves an in-memory result in fixed-size pages.
type sliceCursor struct {
	mu       sync.Mutex
	entries  []resource.Meta
	pageSize int
	released bool
}

// FromSlice returns a Cursor yielding entries in pages of pageSize.
// A pageSize below 1 yields everything in a single page.
func FromSlice(entries []resource.Meta, pageSize int) Cursor {
	if pageSize < 1 {
		pageSize = len(entries)
	}
	return &sliceCursor{entries: entries, pageSize: pageSize}
}

// FromPages returns a Cursor yielding the given batches in order.
// Empty batches are skipped.
func FromPages(pages ...[]resource.Meta) Cursor {
	return &pageCursor{pages: pages}
}

// Next implements Cursor.
func (c *sliceCursor) Next(ctx context.Context) ([]resource.Meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released || len(c.entries) == 0 {
		return nil, ErrEnd
	}

	n := min(c.pageSize, len(c.entries))
	page := c.entries[:n:n]
	c.entries = c.entries[n:]
	return page, nil
}

// Release implements Cursor.
func (c *sliceCursor) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	c.entries = nil
}

type pageCursor struct {
	mu       sync.Mutex
	pages    [][]resource.Meta
	released bool
}

// Next implements Cursor.
func (c *pageCursor) Next(ctx context.Context) ([]resource.Meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for !c.released && len(c.pages) > 0 {
		page := c.pages[0]
		c.pages[0] = nil
		c.pages = c.pages[1:]
		if len(page) > 0 {
			return page, nil
		}
	}
	return nil, ErrEnd
}

// Release implements Cursor.
func (c *pageCursor) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	c.pages = nil
}
