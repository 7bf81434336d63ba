// Package listing drives a cursor to exhaustion and delivers its entries to
// a consumer callback, either as bare metadata or with their content
// resolved.
//
// Pages are consumed strictly in order. Within one page, content is fetched
// in parallel but delivered in page order. After the last
// entry (or an early stop) the callback receives nil exactly once. The
// cursor is always released, including on early stop.
package listing

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/contentsync/internal/cursor"
	"github.com/roach88/contentsync/internal/metrics"
	"github.com/roach88/contentsync/internal/resource"
)

// DefaultConcurrency bounds parallel content fetches within a page.
const DefaultConcurrency = 8

// Entry is a content-resolved leaf.
type Entry struct {
	Meta resource.Meta `json:"meta"`

	// Content is the parsed default variant.
	Content json.RawMessage `json:"content"`

	// Variants maps requested secondary variant names to readable URLs.
	// Only variants declared on the resource are present.
	Variants map[string]string `json:"variants,omitempty"`
}

// Backend is the slice of the content service the orchestrator needs.
type Backend interface {
	VariantJSON(ctx context.Context, id resource.ID, variant string) (json.RawMessage, error)
}

// URLFunc returns the readable URL of a variant.
type URLFunc func(id resource.ID, variant string) string

// Orchestrator drives cursors for consumers.
type Orchestrator struct {
	svc         Backend
	urls        URLFunc
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Collector
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency bounds parallel content fetches within a page.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) {
		o.metrics = c
	}
}

// New returns an orchestrator reading content from svc and rendering
// variant URLs with urls.
func New(svc Backend, urls URLFunc, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		svc:         svc,
		urls:        urls,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "listing")
	return o
}

// Metadata calls fn for every entry of cur in traversal order until fn
// returns false, then calls fn(nil) once.
func (o *Orchestrator) Metadata(ctx context.Context, cur cursor.Cursor, fn func(meta *resource.Meta) bool) {
	start := time.Now()
	defer func() { o.metrics.ListingDone(time.Since(start).Seconds()) }()

	err := cursor.NewPager(cur).ForEach(ctx, func(entries []resource.Meta) bool {
		for i := range entries {
			o.metrics.ListingEntry("delivered")
			if !fn(&entries[i]) {
				return false
			}
		}
		return true
	})
	if err != nil {
		o.logger.Debug("cursor ended with error", "error", err)
	}
	fn(nil)
}

// Content resolves the default JSON content of every leaf of cur and calls
// fn with it, in traversal order, until fn returns false. Then it calls
// fn(nil) once.
//
// Containers are skipped. Leaves without a JSON-typed default variant, or
// whose content cannot be fetched, are skipped with a log line.
// variantNames lists the secondary variants whose URLs to include.
func (o *Orchestrator) Content(ctx context.Context, cur cursor.Cursor, variantNames []string, fn func(entry *Entry) bool) {
	start := time.Now()
	defer func() {
		o.metrics.ListingDone(time.Since(start).Seconds())
		o.logger.Debug("content listing done", "elapsed", time.Since(start))
	}()

	err := cursor.NewPager(cur).ForEach(ctx, func(entries []resource.Meta) bool {
		for _, entry := range o.resolvePage(ctx, entries, variantNames) {
			if entry == nil {
				o.metrics.ListingEntry("skipped")
				continue
			}
			o.metrics.ListingEntry("delivered")
			if !fn(entry) {
				return false
			}
		}
		return true
	})
	if err != nil {
		o.logger.Debug("cursor ended with error", "error", err)
	}
	fn(nil)
}

// resolvePage fetches the content of every eligible entry of one page in
// parallel. The result is index-aligned with entries; skipped entries are nil.
func (o *Orchestrator) resolvePage(ctx context.Context, entries []resource.Meta, variantNames []string) []*Entry {
	results := make([]*Entry, len(entries))

	// Fetch failures are per entry and never cancel siblings, so the group
	// runs on the caller's context and its goroutines always return nil.
	var g errgroup.Group
	g.SetLimit(o.concurrency)

	for i, meta := range entries {
		if meta.IsContainer() {
			continue
		}
		if !meta.HasJSONDefault() {
			o.logger.Warn("default variant is not json, skipping",
				"name", meta.Name, "id", meta.ID, "mime_type", meta.DefaultMimeType())
			continue
		}

		g.Go(func() error {
			content, err := o.svc.VariantJSON(ctx, meta.ID, resource.DefaultVariant)
			if err != nil {
				o.logger.Warn("failed to fetch content, skipping", "name", meta.Name, "id", meta.ID, "error", err)
				return nil
			}
			results[i] = &Entry{
				Meta:     meta,
				Content:  content,
				Variants: o.variantURLs(meta, variantNames),
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (o *Orchestrator) variantURLs(meta resource.Meta, names []string) map[string]string {
	out := make(map[string]string, len(names))
	for _, name := range names {
		if meta.HasVariant(name) && o.urls != nil {
			out[name] = o.urls(meta.ID, name)
		}
	}
	return out
}
