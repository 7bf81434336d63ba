package cursor

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/contentsync/internal/resource"
)

// State is the outcome of a single page request.
type State int

const (
	// StateEntries means the page holds a non-empty batch.
	StateEntries State = iota + 1
	// StateExhausted means the cursor has no more entries.
	StateExhausted
	// StateError means the page request failed.
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateEntries:
		return "entries"
	case StateExhausted:
		return "exhausted"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Page is the tri-state result of Pager.Next.
type Page struct {
	State   State
	Entries []resource.Meta
	Err     error // set when State == StateError
}

// Done reports whether the page is terminal.
func (p Page) Done() bool {
	return p.State != StateEntries
}

// Pager drives a raw Cursor one page at a time.
//
// Pager is not safe for concurrent use; pages are consumed strictly in the
// order the service returns them.
type Pager struct {
	cur      Cursor
	done     bool
	released bool
}

// NewPager wraps a raw cursor.
func NewPager(c Cursor) *Pager {
	return &Pager{cur: c}
}

// Next requests the next page.
//
// Once a terminal page (StateExhausted or StateError) has been returned the
// cursor is released and every further call returns StateExhausted.
func (p *Pager) Next(ctx context.Context) Page {
	if p.done {
		return Page{State: StateExhausted}
	}

	entries, err := p.cur.Next(ctx)
	switch {
	case errors.Is(err, ErrEnd):
		p.Release()
		return Page{State: StateExhausted}
	case err != nil:
		p.Release()
		return Page{State: StateError, Err: err}
	case len(entries) == 0:
		p.Release()
		return Page{State: StateExhausted}
	}
	return Page{State: StateEntries, Entries: entries}
}

// Release frees the underlying cursor. Safe to call more than once and
// after the pager reached a terminal state.
func (p *Pager) Release() {
	p.done = true
	if p.released {
		return
	}
	p.released = true
	p.cur.Release()
}

// ForEach drives the pager until fn returns false or a terminal page is
// reached, then releases the cursor.
//
// It returns the error carried by a StateError page, if any. Callers of
// this protocol log that error; it signals the end of data, not a failure.
func (p *Pager) ForEach(ctx context.Context, fn func(entries []resource.Meta) bool) error {
	defer p.Release()

	for {
		page := p.Next(ctx)
		switch page.State {
		case StateEntries:
			if !fn(page.Entries) {
				return nil
			}
		case StateError:
			return page.Err
		default:
			return nil
		}
	}
}
