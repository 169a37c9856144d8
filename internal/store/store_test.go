package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

type testDoc struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version int64  `json:"version"`
}

// backends returns every Store implementation under test.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "doorstep.db"), nil)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestCreateGetDelete(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			doc := testDoc{ID: "n1", Name: "Tower Hamlets", Version: 1}
			if err := s.Create(ctx, CollectionNeighborhoods, doc.ID, doc); err != nil {
				t.Fatalf("Create: %v", err)
			}

			var got testDoc
			if err := s.Get(ctx, CollectionNeighborhoods, "n1", &got); err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Name != "Tower Hamlets" {
				t.Errorf("got name %q, want %q", got.Name, "Tower Hamlets")
			}

			if err := s.Create(ctx, CollectionNeighborhoods, "n1", doc); !errors.Is(err, ErrExists) {
				t.Errorf("duplicate Create = %v, want ErrExists", err)
			}

			if err := s.Delete(ctx, CollectionNeighborhoods, "n1"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := s.Get(ctx, CollectionNeighborhoods, "n1", &got); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after delete = %v, want ErrNotFound", err)
			}
			if err := s.Delete(ctx, CollectionNeighborhoods, "n1"); !errors.Is(err, ErrNotFound) {
				t.Errorf("second Delete = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestPutRequiresExistingDocument(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			doc := testDoc{ID: "c1", Name: "chat"}
			if err := s.Put(ctx, CollectionConversations, "c1", doc); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Put on missing doc = %v, want ErrNotFound", err)
			}

			if err := s.Create(ctx, CollectionConversations, "c1", doc); err != nil {
				t.Fatalf("Create: %v", err)
			}
			doc.Name = "renamed"
			if err := s.Put(ctx, CollectionConversations, "c1", doc); err != nil {
				t.Fatalf("Put: %v", err)
			}

			var got testDoc
			if err := s.Get(ctx, CollectionConversations, "c1", &got); err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Name != "renamed" {
				t.Errorf("got name %q, want renamed", got.Name)
			}
		})
	}
}

func TestCompareAndSwap(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			doc := testDoc{ID: "nl1", Name: "v1", Version: 1}
			if err := s.Create(ctx, CollectionNewsletters, "nl1", doc); err != nil {
				t.Fatalf("Create: %v", err)
			}

			doc.Name = "v2"
			doc.Version = 2
			if err := s.CompareAndSwap(ctx, CollectionNewsletters, "nl1", 1, doc); err != nil {
				t.Fatalf("CAS with matching version: %v", err)
			}

			// Stale writer still holds version 1.
			stale := testDoc{ID: "nl1", Name: "stale", Version: 2}
			err := s.CompareAndSwap(ctx, CollectionNewsletters, "nl1", 1, stale)
			if !errors.Is(err, ErrVersionMismatch) {
				t.Fatalf("stale CAS = %v, want ErrVersionMismatch", err)
			}

			var got testDoc
			if err := s.Get(ctx, CollectionNewsletters, "nl1", &got); err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Name != "v2" {
				t.Errorf("stale CAS overwrote document: got %q", got.Name)
			}

			err = s.CompareAndSwap(ctx, CollectionNewsletters, "missing", 1, doc)
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("CAS on missing doc = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"a", "b", "c"} {
				if err := s.Create(ctx, CollectionNewsletters, id, testDoc{ID: id}); err != nil {
					t.Fatalf("Create %s: %v", id, err)
				}
			}

			raw, err := s.List(ctx, CollectionNewsletters)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(raw) != 3 {
				t.Errorf("got %d documents, want 3", len(raw))
			}

			empty, err := s.List(ctx, "nothing_here")
			if err != nil {
				t.Fatalf("List empty: %v", err)
			}
			if len(empty) != 0 {
				t.Errorf("got %d documents in empty collection", len(empty))
			}
		})
	}
}
