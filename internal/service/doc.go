// Package service defines the contract of the external content service this
// module synchronises against, along with the other external collaborators
// it consumes: a binary fetcher for URLs and the variant URL scheme.
//
// The service is authoritative. Nothing in this module keeps its own copy of
// resources beyond process-lifetime caches.
package service
