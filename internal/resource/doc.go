// Package resource provides the value types shared by every other package:
// resource metadata, variant descriptors and binary payloads.
//
// This package contains type definitions and small pure helpers only. All
// other internal packages import resource; resource imports nothing internal.
//
// Key constraints:
//   - Names are unique among siblings (enforced by the service); compare them
//     in NFC form via NormalizeName
//   - An ID is opaque and immutable once assigned by the service
//   - "default" is the canonical content variant
package resource
