// Package content is the application-facing surface over the content
// service: named top-level containers, resource wrappers, places and media
// upserts, visits and the search/listing entry points.
//
// A Manager owns one container Registry, one listing Orchestrator and one
// coalescing queue for places entries. Create one per process and share it.
package content
