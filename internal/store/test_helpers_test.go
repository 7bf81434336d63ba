package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/roach88/contentsync/internal/cursor"
	"github.com/roach88/contentsync/internal/resource"
	"github.com/roach88/contentsync/internal/testutil"
)

// createTestStore opens a fresh store with predictable ids and http key.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithIDGenerator(testutil.NewSequenceIDs("res")), WithHTTPKey("key"), WithPageSize(2))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreate(t *testing.T, s *Store, parent resource.ID, name string, kind resource.Kind, tags ...string) resource.Meta {
	t.Helper()
	meta, err := s.Create(context.Background(), resource.CreateRequest{
		Parent: parent,
		Name:   name,
		Kind:   kind,
		Tags:   tags,
	}, "", nil)
	if err != nil {
		t.Fatalf("Create(%q) failed: %v", name, err)
	}
	return meta
}

func mustPut(t *testing.T, s *Store, id resource.ID, variant, mimeType, data string) {
	t.Helper()
	err := s.UpdateVariant(context.Background(), id, variant, resource.Blob{MimeType: mimeType, Data: []byte(data)})
	if err != nil {
		t.Fatalf("UpdateVariant(%s, %s) failed: %v", id, variant, err)
	}
}

// drain collects every entry of cur.
func drain(t *testing.T, cur cursor.Cursor) []resource.Meta {
	t.Helper()
	var out []resource.Meta
	for {
		batch, err := cur.Next(context.Background())
		if errors.Is(err, cursor.ErrEnd) {
			return out
		}
		if err != nil {
			t.Fatalf("Next() failed: %v", err)
		}
		if len(batch) == 0 {
			return out
		}
		out = append(out, batch...)
	}
}

func names(metas []resource.Meta) []string {
	out := make([]string, 0, len(metas))
	for _, m := range metas {
		out = append(out, m.Name)
	}
	return out
}
