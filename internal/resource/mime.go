package resource

import (
	"strings"

	"github.com/dustin/go-humanize"
)

// Well known MIME types.
const (
	MimeJSON   = "application/json"
	MimePlaces = "application/x-places+json"
	MimeMedia  = "application/x-media+json"
	MimeWasm   = "application/wasm"
)

// IsJSON reports whether the MIME type carries JSON content.
func IsJSON(mimeType string) bool {
	return strings.Contains(mimeType, "json")
}

// Icon kinds returned by IconFor.
const (
	IconFolder = "folder"
	IconFile   = "file"
	IconLink   = "link"
	IconVideo  = "video"
	IconText   = "file-text"
	IconImage  = "image"
	IconMusic  = "music"
)

// IconFor picks the icon kind to display for a resource.
// The MIME type is the one of the default variant.
func IconFor(isContainer bool, mimeType string) string {
	if isContainer {
		return IconFolder
	}
	switch {
	case mimeType == MimePlaces:
		return IconLink
	case mimeType == MimeMedia:
		return IconVideo
	case strings.HasPrefix(mimeType, "text/"):
		return IconText
	case strings.HasPrefix(mimeType, "image/"):
		return IconImage
	case strings.HasPrefix(mimeType, "audio/"):
		return IconMusic
	case strings.HasPrefix(mimeType, "video/"):
		return IconVideo
	}
	return IconFile
}

// IconForMeta is IconFor applied to a resource's metadata.
func IconForMeta(m Meta) string {
	return IconFor(m.IsContainer(), m.DefaultMimeType())
}

// FormatSize formats a byte count with a binary unit, e.g. "1.5 KiB".
func FormatSize(size int64) string {
	if size < 0 {
		size = 0
	}
	return humanize.IBytes(uint64(size))
}
