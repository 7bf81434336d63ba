package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/roach88/contentsync/internal/cursor"
	"github.com/roach88/contentsync/internal/resource"
)

var (
	// ErrNotFound is returned when a resource or variant does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrExists is returned when a sibling with the same name already exists.
	ErrExists = errors.New("resource already exists")
)

// VisitPriority weighs a visit in frecency ranking.
type VisitPriority int

const (
	// VisitNormal is a regular visit.
	VisitNormal VisitPriority = iota
	// VisitHigh is a visit the user explicitly asked for.
	VisitHigh
)

// ChangeKind describes what happened to an observed resource.
type ChangeKind string

const (
	ChangeChildCreated ChangeKind = "child_created"
	ChangeChildUpdated ChangeKind = "child_updated"
	ChangeChildDeleted ChangeKind = "child_deleted"
	ChangeUpdated      ChangeKind = "updated"
	ChangeDeleted      ChangeKind = "deleted"
)

// Change is delivered to observers.
type Change struct {
	Kind   ChangeKind  `json:"kind"`
	ID     resource.ID `json:"id"`     // the observed resource
	Target resource.ID `json:"target"` // the resource that changed
}

// ChangeFunc receives change notifications. It may be called from any
// goroutine and must not block.
type ChangeFunc func(Change)

// Subscription identifies an observer registration.
type Subscription int64

// Service is the remote content service.
//
// Every method crosses into the service and may block until it responds.
// Cursors returned by ChildrenOf, Search, TopByFrecency and LastModified
// follow the cursor package protocol.
type Service interface {
	Root(ctx context.Context) (resource.Meta, error)
	Metadata(ctx context.Context, id resource.ID) (resource.Meta, error)
	ChildByName(ctx context.Context, parent resource.ID, name string) (resource.Meta, error)
	ChildrenOf(ctx context.Context, parent resource.ID) (cursor.Cursor, error)

	// Create adds a resource. When initial is non-nil it is stored as the
	// variant named variant in the same call.
	Create(ctx context.Context, req resource.CreateRequest, variant string, initial *resource.Blob) (resource.Meta, error)
	UpdateVariant(ctx context.Context, id resource.ID, variant string, blob resource.Blob) error
	Delete(ctx context.Context, id resource.ID) error

	Variant(ctx context.Context, id resource.ID, variant string) (resource.Blob, error)
	VariantJSON(ctx context.Context, id resource.ID, variant string) (json.RawMessage, error)

	Search(ctx context.Context, query string, maxCount int, tag string) (cursor.Cursor, error)
	TopByFrecency(ctx context.Context, maxCount int) (cursor.Cursor, error)
	LastModified(ctx context.Context, maxCount int) (cursor.Cursor, error)
	VisitByName(ctx context.Context, parent resource.ID, name string, priority VisitPriority) error

	Observe(ctx context.Context, id resource.ID, fn ChangeFunc) (Subscription, error)
	Unobserve(ctx context.Context, sub Subscription) error

	// HTTPKey returns the per-process secret used in variant URLs.
	HTTPKey(ctx context.Context) (string, error)
}
