// Package coalesce serialises and merges bursts of upserts per key.
//
// ARCHITECTURE:
//
// Each key owns at most one pending payload and at most one drain
// goroutine. Enqueue overwrites the pending payload (last write wins) and
// starts a drain if none is active for the key. The drain:
//  1. runs Handler.Prepare once (e.g. resolve the parent container)
//  2. takes and clears the pending payload
//  3. runs Handler.Apply with it
//  4. repeats from 2 until nothing is pending
//
// Enqueues that arrive while a drain is running never start a second
// drain; the running one picks up the latest payload on its next loop.
//
// The "nothing pending" check and the idle mark happen under the same lock,
// so a payload enqueued at that instant either is taken by the running
// drain or starts a new one. No payload is left behind.
//
// Different keys drain independently with no ordering between them.
package coalesce
