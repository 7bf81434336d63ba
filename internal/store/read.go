package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/contentsync/internal/cursor"
	"github.com/roach88/contentsync/internal/resource"
	"github.com/roach88/contentsync/internal/service"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Root implements service.Service.
func (s *Store) Root(ctx context.Context) (resource.Meta, error) {
	return s.Metadata(ctx, resource.RootID)
}

// Metadata implements service.Service.
func (s *Store) Metadata(ctx context.Context, id resource.ID) (resource.Meta, error) {
	meta, err := loadMeta(ctx, s.db, id)
	if err != nil {
		return resource.Meta{}, fmt.Errorf("metadata %s: %w", id, err)
	}
	return meta, nil
}

// ChildByName implements service.Service.
func (s *Store) ChildByName(ctx context.Context, parent resource.ID, name string) (resource.Meta, error) {
	var id resource.ID
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM resources WHERE parent_id = ? AND name = ?",
		parent, name,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return resource.Meta{}, fmt.Errorf("child %q of %s: %w", name, parent, service.ErrNotFound)
	}
	if err != nil {
		return resource.Meta{}, fmt.Errorf("child %q of %s: %w", name, parent, err)
	}
	return s.Metadata(ctx, id)
}

// ChildrenOf implements service.Service. Children are returned in creation
// order.
func (s *Store) ChildrenOf(ctx context.Context, parent resource.ID) (cursor.Cursor, error) {
	if _, err := loadMeta(ctx, s.db, parent); err != nil {
		return nil, fmt.Errorf("children of %s: %w", parent, err)
	}
	return s.cursorFor(ctx, "children", `
		SELECT id FROM resources
		WHERE parent_id = ?
		ORDER BY rowid ASC
	`, parent)
}

// Variant implements service.Service.
func (s *Store) Variant(ctx context.Context, id resource.ID, variant string) (resource.Blob, error) {
	var blob resource.Blob
	err := s.db.QueryRowContext(ctx,
		"SELECT mime_type, data FROM variants WHERE resource_id = ? AND name = ?",
		id, variant,
	).Scan(&blob.MimeType, &blob.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return resource.Blob{}, fmt.Errorf("variant %s/%s: %w", id, variant, service.ErrNotFound)
	}
	if err != nil {
		return resource.Blob{}, fmt.Errorf("variant %s/%s: %w", id, variant, err)
	}
	return blob, nil
}

// VariantJSON implements service.Service.
func (s *Store) VariantJSON(ctx context.Context, id resource.ID, variant string) (json.RawMessage, error) {
	blob, err := s.Variant(ctx, id, variant)
	if err != nil {
		return nil, err
	}
	if !json.Valid(blob.Data) {
		return nil, fmt.Errorf("variant %s/%s is not valid json", id, variant)
	}
	return json.RawMessage(blob.Data), nil
}

// Search implements service.Service: a case-insensitive substring match on
// names and default variant content, optionally restricted to tag. Results
// are ordered most recently modified first.
func (s *Store) Search(ctx context.Context, query string, maxCount int, tag string) (cursor.Cursor, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	return s.cursorFor(ctx, "search", `
		SELECT r.id FROM resources r
		WHERE r.parent_id IS NOT NULL
		  AND (? = '' OR EXISTS (
		      SELECT 1 FROM resource_tags t WHERE t.resource_id = r.id AND t.tag = ?))
		  AND (LOWER(r.name) LIKE ? ESCAPE '\' OR EXISTS (
		      SELECT 1 FROM variants v
		      WHERE v.resource_id = r.id AND v.name = 'default'
		        AND LOWER(CAST(v.data AS TEXT)) LIKE ? ESCAPE '\'))
		ORDER BY r.modified_seq DESC, r.id ASC
		LIMIT ?
	`, tag, tag, pattern, pattern, limit(maxCount))
}

// TopByFrecency implements service.Service. Only visited resources are
// returned, highest score first; ties go to the most recent visit.
func (s *Store) TopByFrecency(ctx context.Context, maxCount int) (cursor.Cursor, error) {
	return s.cursorFor(ctx, "frecency", `
		SELECT v.resource_id FROM visits v
		GROUP BY v.resource_id
		ORDER BY SUM(v.weight) DESC, MAX(v.seq) DESC, v.resource_id ASC
		LIMIT ?
	`, limit(maxCount))
}

// LastModified implements service.Service. Only leaves are returned.
func (s *Store) LastModified(ctx context.Context, maxCount int) (cursor.Cursor, error) {
	return s.cursorFor(ctx, "last modified", `
		SELECT id FROM resources
		WHERE kind = ?
		ORDER BY modified_seq DESC, id ASC
		LIMIT ?
	`, int(resource.KindLeaf), limit(maxCount))
}

// Frecency returns the visit score of a resource.
func (s *Store) Frecency(ctx context.Context, id resource.ID) (int, error) {
	var score int
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(weight), 0) FROM visits WHERE resource_id = ?", id,
	).Scan(&score)
	if err != nil {
		return 0, fmt.Errorf("frecency %s: %w", id, err)
	}
	return score, nil
}

// cursorFor runs an id query and returns a cursor over the resolved
// metadata.
func (s *Store) cursorFor(ctx context.Context, what, query string, args ...any) (cursor.Cursor, error) {
	ids, err := queryIDs(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}

	metas := make([]resource.Meta, 0, len(ids))
	for _, id := range ids {
		meta, err := loadMeta(ctx, s.db, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", what, err)
		}
		metas = append(metas, meta)
	}
	return cursor.FromSlice(metas, s.pageSize), nil
}

// queryIDs reads a single id column. Rows are closed before returning so
// the single connection is free for follow-up queries.
func queryIDs(ctx context.Context, q querier, query string, args ...any) ([]resource.ID, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []resource.ID
	for rows.Next() {
		var id resource.ID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// loadMeta reads a resource with its tags and variant descriptions.
// Returns an error wrapping service.ErrNotFound if id does not exist.
func loadMeta(ctx context.Context, q querier, id resource.ID) (resource.Meta, error) {
	var (
		meta   resource.Meta
		parent sql.NullString
		kind   int
	)
	err := q.QueryRowContext(ctx,
		"SELECT id, parent_id, name, kind FROM resources WHERE id = ?", id,
	).Scan(&meta.ID, &parent, &meta.Name, &kind)
	if errors.Is(err, sql.ErrNoRows) {
		return resource.Meta{}, service.ErrNotFound
	}
	if err != nil {
		return resource.Meta{}, err
	}
	meta.Parent = resource.ID(parent.String)
	meta.Kind = resource.Kind(kind)

	meta.Tags, err = loadTags(ctx, q, id)
	if err != nil {
		return resource.Meta{}, err
	}
	meta.Variants, err = loadVariantDescs(ctx, q, id)
	if err != nil {
		return resource.Meta{}, err
	}
	return meta, nil
}

func loadTags(ctx context.Context, q querier, id resource.ID) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT tag FROM resource_tags WHERE resource_id = ? ORDER BY tag ASC", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func loadVariantDescs(ctx context.Context, q querier, id resource.ID) ([]resource.VariantDesc, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT name, mime_type, LENGTH(data) FROM variants
		WHERE resource_id = ?
		ORDER BY rowid ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var descs []resource.VariantDesc
	for rows.Next() {
		var d resource.VariantDesc
		if err := rows.Scan(&d.Name, &d.MimeType, &d.Size); err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	return descs, rows.Err()
}

// limit maps a non-positive max count to SQLite's "no limit".
func limit(maxCount int) int {
	if maxCount <= 0 {
		return -1
	}
	return maxCount
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
