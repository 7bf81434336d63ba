package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contentsync/internal/cursor"
	"github.com/roach88/contentsync/internal/resource"
)

// stubBackend serves default variants from a map and counts requests.
type stubBackend struct {
	mu      sync.Mutex
	content map[resource.ID]json.RawMessage
	fail    map[resource.ID]bool
	reads   int
}

func (b *stubBackend) VariantJSON(ctx context.Context, id resource.ID, variant string) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads++
	if b.fail[id] {
		return nil, errors.New("read failed")
	}
	c, ok := b.content[id]
	if !ok {
		return nil, fmt.Errorf("no content for %s", id)
	}
	return c, nil
}

// trackingCursor wraps a cursor and counts Next and Release calls.
type trackingCursor struct {
	cursor.Cursor
	nexts    int
	released int
}

func (c *trackingCursor) Next(ctx context.Context) ([]resource.Meta, error) {
	c.nexts++
	return c.Cursor.Next(ctx)
}

func (c *trackingCursor) Release() {
	c.released++
	c.Cursor.Release()
}

func leaf(id, mime string, variants ...string) resource.Meta {
	m := resource.Meta{ID: resource.ID(id), Name: id, Kind: resource.KindLeaf}
	if mime != "" {
		m.Variants = append(m.Variants, resource.VariantDesc{Name: resource.DefaultVariant, MimeType: mime})
	}
	for _, v := range variants {
		m.Variants = append(m.Variants, resource.VariantDesc{Name: v, MimeType: "image/png"})
	}
	return m
}

func container(id string) resource.Meta {
	return resource.Meta{ID: resource.ID(id), Name: id, Kind: resource.KindContainer}
}

func urlFor(id resource.ID, variant string) string {
	return fmt.Sprintf("http://test/%s/%s", id, variant)
}

func TestMetadata_DeliversAllEntriesInOrderThenNil(t *testing.T) {
	pages := [][]resource.Meta{
		{leaf("a", ""), container("b")},
		{leaf("c", "")},
		{leaf("d", ""), leaf("e", ""), leaf("f", "")},
	}
	cur := &trackingCursor{Cursor: cursor.FromPages(pages...)}
	o := New(&stubBackend{}, urlFor)

	var seen []string
	nils := 0
	o.Metadata(context.Background(), cur, func(meta *resource.Meta) bool {
		if meta == nil {
			nils++
			return false
		}
		require.Zero(t, nils, "no entry may follow the end sentinel")
		seen = append(seen, meta.Name)
		return true
	})

	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, seen)
	assert.Equal(t, 1, nils)
	assert.Equal(t, 1, cur.released)
}

func TestMetadata_EarlyStopReleasesAndSkipsRemainingPages(t *testing.T) {
	cur := &trackingCursor{Cursor: cursor.FromPages(
		[]resource.Meta{leaf("a", ""), leaf("b", "")},
		[]resource.Meta{leaf("c", "")},
	)}
	o := New(&stubBackend{}, urlFor)

	var seen []string
	nils := 0
	o.Metadata(context.Background(), cur, func(meta *resource.Meta) bool {
		if meta == nil {
			nils++
			return false
		}
		seen = append(seen, meta.Name)
		return meta.Name != "a"
	})

	assert.Equal(t, []string{"a"}, seen)
	assert.Equal(t, 1, nils)
	assert.Equal(t, 1, cur.nexts, "second page must not be requested")
	assert.Equal(t, 1, cur.released)
}

func TestMetadata_EmptyCursorOnlySendsNil(t *testing.T) {
	o := New(&stubBackend{}, urlFor)
	var calls []*resource.Meta
	o.Metadata(context.Background(), cursor.FromPages(), func(meta *resource.Meta) bool {
		calls = append(calls, meta)
		return true
	})
	require.Len(t, calls, 1)
	assert.Nil(t, calls[0])
}

func TestContent_SkipsContainersAndNonJSONLeaves(t *testing.T) {
	backend := &stubBackend{content: map[resource.ID]json.RawMessage{
		"a": json.RawMessage(`{"url":"a"}`),
		"d": json.RawMessage(`{"url":"d"}`),
		"e": json.RawMessage(`{"url":"e"}`),
	}}
	cur := cursor.FromPages(
		[]resource.Meta{leaf("a", resource.MimePlaces, "icon"), container("b"), leaf("c", "text/plain")},
		[]resource.Meta{leaf("d", resource.MimeJSON, "icon", "poster"), leaf("x", "")},
		[]resource.Meta{leaf("e", resource.MimeMedia)},
	)
	o := New(backend, urlFor)

	var got []*Entry
	nils := 0
	o.Content(context.Background(), cur, []string{"icon", "poster"}, func(e *Entry) bool {
		if e == nil {
			nils++
			return true
		}
		got = append(got, e)
		return true
	})

	require.Len(t, got, 3)
	assert.Equal(t, 1, nils)
	assert.Equal(t, "a", got[0].Meta.Name)
	assert.Equal(t, "d", got[1].Meta.Name)
	assert.Equal(t, "e", got[2].Meta.Name)
	assert.JSONEq(t, `{"url":"a"}`, string(got[0].Content))

	assert.Equal(t, map[string]string{"icon": "http://test/a/icon"}, got[0].Variants)
	assert.Equal(t, map[string]string{
		"icon":   "http://test/d/icon",
		"poster": "http://test/d/poster",
	}, got[1].Variants)
	assert.Empty(t, got[2].Variants, "undeclared variants are not listed")

	assert.Equal(t, 3, backend.reads, "containers and non-json leaves are never fetched")
}

func TestContent_PreservesPageOrderUnderParallelism(t *testing.T) {
	const n = 40
	backend := &stubBackend{content: make(map[resource.ID]json.RawMessage)}
	page := make([]resource.Meta, n)
	for i := range n {
		id := fmt.Sprintf("e%02d", i)
		page[i] = leaf(id, resource.MimeJSON)
		backend.content[resource.ID(id)] = json.RawMessage(fmt.Sprintf(`{"i":%d}`, i))
	}
	o := New(backend, urlFor, WithConcurrency(7))

	var names []string
	o.Content(context.Background(), cursor.FromPages(page), nil, func(e *Entry) bool {
		if e != nil {
			names = append(names, e.Meta.Name)
		}
		return true
	})

	require.Len(t, names, n)
	for i := range n {
		assert.Equal(t, fmt.Sprintf("e%02d", i), names[i])
	}
}

func TestContent_FetchFailureSkipsEntryOnly(t *testing.T) {
	backend := &stubBackend{
		content: map[resource.ID]json.RawMessage{
			"a": json.RawMessage(`1`),
			"c": json.RawMessage(`3`),
		},
		fail: map[resource.ID]bool{"b": true},
	}
	cur := cursor.FromPages([]resource.Meta{
		leaf("a", resource.MimeJSON), leaf("b", resource.MimeJSON), leaf("c", resource.MimeJSON),
	})
	o := New(backend, urlFor)

	var names []string
	o.Content(context.Background(), cur, nil, func(e *Entry) bool {
		if e != nil {
			names = append(names, e.Meta.Name)
		}
		return true
	})
	assert.Equal(t, []string{"a", "c"}, names)
}

func TestContent_EarlyStopReleasesCursor(t *testing.T) {
	backend := &stubBackend{content: map[resource.ID]json.RawMessage{
		"a": json.RawMessage(`1`), "b": json.RawMessage(`2`), "c": json.RawMessage(`3`),
	}}
	cur := &trackingCursor{Cursor: cursor.FromPages(
		[]resource.Meta{leaf("a", resource.MimeJSON), leaf("b", resource.MimeJSON)},
		[]resource.Meta{leaf("c", resource.MimeJSON)},
	)}
	o := New(backend, urlFor)

	var names []string
	nils := 0
	o.Content(context.Background(), cur, nil, func(e *Entry) bool {
		if e == nil {
			nils++
			return false
		}
		names = append(names, e.Meta.Name)
		return false
	})

	assert.Equal(t, []string{"a"}, names)
	assert.Equal(t, 1, nils)
	assert.Equal(t, 1, cur.nexts)
	assert.Equal(t, 1, cur.released)
}

func TestContent_CursorErrorEndsTraversalQuietly(t *testing.T) {
	backend := &stubBackend{content: map[resource.ID]json.RawMessage{"a": json.RawMessage(`1`)}}
	cur := &erroringCursor{page: []resource.Meta{leaf("a", resource.MimeJSON)}}
	o := New(backend, urlFor)

	var calls int
	o.Content(context.Background(), cur, nil, func(e *Entry) bool {
		calls++
		return true
	})
	assert.Equal(t, 2, calls, "one entry plus the end sentinel")
	assert.True(t, cur.released)
}

type erroringCursor struct {
	page     []resource.Meta
	served   bool
	released bool
}

func (c *erroringCursor) Next(ctx context.Context) ([]resource.Meta, error) {
	if c.served {
		return nil, errors.New("cursor invalidated")
	}
	c.served = true
	return c.page, nil
}

func (c *erroringCursor) Release() { c.released = true }
