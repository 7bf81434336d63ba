package cursor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contentsync/internal/resource"
)

func metas(names ...string) []resource.Meta {
	out := make([]resource.Meta, len(names))
	for i, n := range names {
		out[i] = resource.Meta{ID: resource.ID("id-" + n), Name: n, Kind: resource.KindLeaf}
	}
	return out
}

// failingCursor yields its pages and then fails with err.
type failingCursor struct {
	pages    [][]resource.Meta
	err      error
	released int
}

func (c *failingCursor) Next(ctx context.Context) ([]resource.Meta, error) {
	if len(c.pages) == 0 {
		return nil, c.err
	}
	p := c.pages[0]
	c.pages = c.pages[1:]
	return p, nil
}

func (c *failingCursor) Release() { c.released++ }

func TestPager_EntriesThenExhausted(t *testing.T) {
	p := NewPager(FromSlice(metas("a", "b", "c"), 2))
	ctx := context.Background()

	page := p.Next(ctx)
	require.Equal(t, StateEntries, page.State)
	assert.Equal(t, "a", page.Entries[0].Name)
	assert.Equal(t, "b", page.Entries[1].Name)

	page = p.Next(ctx)
	require.Equal(t, StateEntries, page.State)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "c", page.Entries[0].Name)

	page = p.Next(ctx)
	assert.Equal(t, StateExhausted, page.State)
	assert.True(t, page.Done())
	assert.NoError(t, page.Err)
}

func TestPager_ErrorIsTerminalAndReleases(t *testing.T) {
	boom := errors.New("boom")
	c := &failingCursor{pages: [][]resource.Meta{metas("a")}, err: boom}
	p := NewPager(c)
	ctx := context.Background()

	assert.Equal(t, StateEntries, p.Next(ctx).State)

	page := p.Next(ctx)
	assert.Equal(t, StateError, page.State)
	assert.ErrorIs(t, page.Err, boom)
	assert.Equal(t, 1, c.released, "cursor should be released on terminal page")

	// Further calls are defined: exhausted, no second release.
	assert.Equal(t, StateExhausted, p.Next(ctx).State)
	p.Release()
	assert.Equal(t, 1, c.released)
}

func TestPager_EndErrorIsExhaustion(t *testing.T) {
	c := &failingCursor{err: ErrEnd}
	page := NewPager(c).Next(context.Background())
	assert.Equal(t, StateExhausted, page.State)
	assert.Equal(t, 1, c.released)
}

func TestPager_EmptyBatchIsExhaustion(t *testing.T) {
	c := &failingCursor{pages: [][]resource.Meta{{}}, err: ErrEnd}
	page := NewPager(c).Next(context.Background())
	assert.Equal(t, StateExhausted, page.State)
}

func TestPager_ForEachStopsEarlyAndReleases(t *testing.T) {
	c := &failingCursor{pages: [][]resource.Meta{metas("a"), metas("b"), metas("c")}, err: ErrEnd}
	var seen []string

	err := NewPager(c).ForEach(context.Background(), func(entries []resource.Meta) bool {
		seen = append(seen, entries[0].Name)
		return len(seen) < 2
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Equal(t, 1, c.released, "early stop must release the cursor")
}

func TestPager_ForEachReturnsCursorError(t *testing.T) {
	boom := errors.New("service went away")
	c := &failingCursor{pages: [][]resource.Meta{metas("a")}, err: boom}

	err := NewPager(c).ForEach(context.Background(), func([]resource.Meta) bool { return true })
	assert.ErrorIs(t, err, boom)
}

func TestFromPages_SkipsEmptyBatches(t *testing.T) {
	c := FromPages(metas("a"), nil, metas("b"))
	ctx := context.Background()

	first, err := c.Next(ctx)
	require.NoError(t, err)
	second, err := c.Next(ctx)
	require.NoError(t, err)
	_, err = c.Next(ctx)

	assert.Equal(t, "a", first[0].Name)
	assert.Equal(t, "b", second[0].Name)
	assert.ErrorIs(t, err, ErrEnd)
}

func TestFromSlice_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page := NewPager(FromSlice(metas("a"), 1)).Next(ctx)
	assert.Equal(t, StateError, page.State)
	assert.ErrorIs(t, page.Err, context.Canceled)
}

func TestFromSlice_ReleaseStopsIteration(t *testing.T) {
	c := FromSlice(metas("a", "b"), 1)
	c.Release()
	_, err := c.Next(context.Background())
	assert.ErrorIs(t, err, ErrEnd)
}
