// Package cursor implements the paginated traversal protocol used to
// enumerate the children of a container or a search result set.
//
// The service hands out raw cursors whose Next either yields a batch of
// entries or fails. The service has no explicit "end" value: a failing Next
// is how a cursor says it has nothing more to give. Pager turns that
// convention into an explicit tri-state per page request:
//
//   - StateEntries: a non-empty batch, in the order the service supplied it
//   - StateExhausted: the cursor reported ErrEnd (or an empty batch)
//   - StateError: any other failure
//
// Both terminal states end the traversal and release the cursor. Callers
// treat StateError as end-of-data and log it; it is never surfaced as a
// failure of the enclosing operation.
//
// There is no rewind. Request a fresh cursor to traverse again.
package cursor
