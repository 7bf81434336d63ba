package resource

import (
	"fmt"
	"strings"
)

// ID identifies a resource. Assigned by the service, opaque to this layer.
type ID string

// RootID is the conventional identifier of the root container.
const RootID ID = "root"

// DefaultVariant is the canonical content variant of a resource.
const DefaultVariant = "default"

// Kind distinguishes containers from leaves.
type Kind int

const (
	// KindContainer is a resource that holds children.
	KindContainer Kind = iota + 1
	// KindLeaf is a resource that holds content and no children.
	KindLeaf
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindLeaf:
		return "leaf"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case KindContainer, KindLeaf:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("invalid kind %d", int(k))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	kind, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseKind parses "container" or "leaf".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "container":
		return KindContainer, nil
	case "leaf":
		return KindLeaf, nil
	default:
		return 0, fmt.Errorf("unknown resource kind %q", s)
	}
}

// VariantDesc declares a named variant and its MIME type.
type VariantDesc struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// Meta is the metadata of a container or leaf.
type Meta struct {
	ID       ID            `json:"id"`
	Parent   ID            `json:"parent,omitempty"` // empty for the root
	Name     string        `json:"name"`
	Kind     Kind          `json:"kind"`
	Tags     []string      `json:"tags,omitempty"`
	Variants []VariantDesc `json:"variants,omitempty"`
}

// IsContainer reports whether the resource can hold children.
func (m Meta) IsContainer() bool {
	return m.Kind == KindContainer
}

// Variant returns the declared variant with the given name.
func (m Meta) Variant(name string) (VariantDesc, bool) {
	for _, v := range m.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return VariantDesc{}, false
}

// HasVariant reports whether a variant with the given name is declared.
func (m Meta) HasVariant(name string) bool {
	_, ok := m.Variant(name)
	return ok
}

// DefaultMimeType returns the MIME type of the default variant, or "".
func (m Meta) DefaultMimeType() string {
	v, _ := m.Variant(DefaultVariant)
	return v.MimeType
}

// HasJSONDefault reports whether the default variant is declared with a
// JSON-compatible MIME type.
func (m Meta) HasJSONDefault() bool {
	v, ok := m.Variant(DefaultVariant)
	return ok && IsJSON(v.MimeType)
}

// Blob is a binary variant payload.
type Blob struct {
	MimeType string
	Data     []byte
}

// CreateRequest describes a resource to create.
type CreateRequest struct {
	Parent ID
	Name   string
	Kind   Kind
	Tags   []string
}
