package resource

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName returns the NFC form of a trimmed resource name.
//
// Sibling names are compared byte-wise by the service, so two visually
// identical URLs or titles in different normal forms would otherwise bind
// to different resources.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
