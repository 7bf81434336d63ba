// Package store is a SQLite-backed local implementation of the content
// service.
//
// Resources form a tree rooted at the "root" container. Each resource has
// a kind, tags and named variants holding binary content.
//
// # Invariants
//
//   - Sibling names are unique: UNIQUE(parent_id, name). Creating a
//     duplicate fails with service.ErrExists.
//   - Ordering uses a logical clock (modified_seq, visit seq), never wall
//     time. The clock resumes from the highest stored value on Open.
//   - Frecency is the sum of visit weights: 1 for a normal visit, 5 for a
//     high priority one.
//   - Observers are notified asynchronously, in mutation order, from a
//     single dispatcher goroutine.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity (deletes cascade)
//
// The schema is managed by golang-migrate from embedded migrations.
package store
