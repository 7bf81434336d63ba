package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/contentsync/internal/resource"
	"github.com/roach88/contentsync/internal/service"
)

// Visit weights added to a resource's frecency score.
const (
	WeightNormal = 1
	WeightHigh   = 5
)

// Create implements service.Service.
//
// The parent must be an existing container. A sibling with the same name
// fails with service.ErrExists. When initial is non-nil it is stored as
// variant (default when empty) in the same transaction.
func (s *Store) Create(ctx context.Context, req resource.CreateRequest, variant string, initial *resource.Blob) (resource.Meta, error) {
	if req.Kind != resource.KindContainer && req.Kind != resource.KindLeaf {
		return resource.Meta{}, fmt.Errorf("create %q: invalid kind %d", req.Name, req.Kind)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return resource.Meta{}, fmt.Errorf("create %q: begin tx: %w", req.Name, err)
	}
	defer tx.Rollback() // No-op if committed

	var parentKind int
	err = tx.QueryRowContext(ctx, "SELECT kind FROM resources WHERE id = ?", req.Parent).Scan(&parentKind)
	if errors.Is(err, sql.ErrNoRows) {
		return resource.Meta{}, fmt.Errorf("create %q: parent %s: %w", req.Name, req.Parent, service.ErrNotFound)
	}
	if err != nil {
		return resource.Meta{}, fmt.Errorf("create %q: %w", req.Name, err)
	}
	if resource.Kind(parentKind) != resource.KindContainer {
		return resource.Meta{}, fmt.Errorf("create %q: parent %s is not a container", req.Name, req.Parent)
	}

	id := resource.ID(s.ids.Generate())
	_, err = tx.ExecContext(ctx, `
		INSERT INTO resources (id, parent_id, name, kind, modified_seq)
		VALUES (?, ?, ?, ?, ?)
	`, id, req.Parent, req.Name, int(req.Kind), s.clock.Next())
	if err != nil {
		if isUniqueViolation(err) {
			return resource.Meta{}, fmt.Errorf("create %q: %w", req.Name, service.ErrExists)
		}
		return resource.Meta{}, fmt.Errorf("create %q: %w", req.Name, err)
	}

	for _, tag := range req.Tags {
		_, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO resource_tags (resource_id, tag) VALUES (?, ?)", id, tag)
		if err != nil {
			return resource.Meta{}, fmt.Errorf("create %q: tag %q: %w", req.Name, tag, err)
		}
	}

	if initial != nil {
		if variant == "" {
			variant = resource.DefaultVariant
		}
		if err := s.putVariant(ctx, tx, id, variant, *initial); err != nil {
			return resource.Meta{}, fmt.Errorf("create %q: %w", req.Name, err)
		}
	}

	meta, err := loadMeta(ctx, tx, id)
	if err != nil {
		return resource.Meta{}, fmt.Errorf("create %q: %w", req.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return resource.Meta{}, fmt.Errorf("create %q: commit: %w", req.Name, err)
	}

	s.logger.Debug("created", "id", id, "name", req.Name, "kind", req.Kind)
	s.notify(req.Parent, service.ChangeChildCreated, id)
	return meta, nil
}

// UpdateVariant implements service.Service.
func (s *Store) UpdateVariant(ctx context.Context, id resource.ID, variant string, blob resource.Blob) error {
	if variant == "" {
		variant = resource.DefaultVariant
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update %s/%s: begin tx: %w", id, variant, err)
	}
	defer tx.Rollback() // No-op if committed

	var parent sql.NullString
	err = tx.QueryRowContext(ctx, "SELECT parent_id FROM resources WHERE id = ?", id).Scan(&parent)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update %s/%s: %w", id, variant, service.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", id, variant, err)
	}

	if err := s.putVariant(ctx, tx, id, variant, blob); err != nil {
		return fmt.Errorf("update %s/%s: %w", id, variant, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update %s/%s: commit: %w", id, variant, err)
	}

	s.notify(id, service.ChangeUpdated, id)
	s.notify(resource.ID(parent.String), service.ChangeChildUpdated, id)
	return nil
}

// putVariant upserts a variant and stamps the resource as modified.
func (s *Store) putVariant(ctx context.Context, tx *sql.Tx, id resource.ID, variant string, blob resource.Blob) error {
	data := blob.Data
	if data == nil {
		data = []byte{}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO variants (resource_id, name, mime_type, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(resource_id, name) DO UPDATE SET
			mime_type = excluded.mime_type,
			data = excluded.data
	`, id, variant, blob.MimeType, data)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, "UPDATE resources SET modified_seq = ? WHERE id = ?", s.clock.Next(), id)
	return err
}

// Delete implements service.Service. Descendants, variants and visits are
// removed with the resource. The root cannot be deleted.
func (s *Store) Delete(ctx context.Context, id resource.ID) error {
	if id == resource.RootID {
		return fmt.Errorf("delete %s: root cannot be deleted", id)
	}

	var parent sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT parent_id FROM resources WHERE id = ?", id).Scan(&parent)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("delete %s: %w", id, service.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM resources WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}

	s.logger.Debug("deleted", "id", id)
	s.notify(id, service.ChangeDeleted, id)
	s.notify(resource.ID(parent.String), service.ChangeChildDeleted, id)
	return nil
}

// VisitByName implements service.Service.
func (s *Store) VisitByName(ctx context.Context, parent resource.ID, name string, priority service.VisitPriority) error {
	var id resource.ID
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM resources WHERE parent_id = ? AND name = ?", parent, name,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("visit %q: %w", name, service.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("visit %q: %w", name, err)
	}

	weight := WeightNormal
	if priority == service.VisitHigh {
		weight = WeightHigh
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO visits (resource_id, seq, weight) VALUES (?, ?, ?)",
		id, s.clock.Next(), weight,
	)
	if err != nil {
		return fmt.Errorf("visit %q: %w", name, err)
	}
	return nil
}

// Observe implements service.Service. fn is called from the store's
// dispatcher goroutine and must not block.
func (s *Store) Observe(ctx context.Context, id resource.ID, fn service.ChangeFunc) (service.Subscription, error) {
	if _, err := loadMeta(ctx, s.db, id); err != nil {
		return 0, fmt.Errorf("observe %s: %w", id, err)
	}

	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.nextSub++
	s.observers[s.nextSub] = observer{id: id, fn: fn}
	s.subOrder = append(s.subOrder, s.nextSub)
	return s.nextSub, nil
}

// Unobserve implements service.Service.
func (s *Store) Unobserve(ctx context.Context, sub service.Subscription) error {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	delete(s.observers, sub)
	s.subOrder = slices.DeleteFunc(s.subOrder, func(x service.Subscription) bool { return x == sub })
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
