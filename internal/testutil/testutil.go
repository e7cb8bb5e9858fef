// Package testutil provides shared test helpers for setting up stores and note services.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/localnative/localnative/internal/models"
	"github.com/localnative/localnative/internal/notes"
	"github.com/localnative/localnative/internal/store"
)

// TestStore opens a migrated store in a temporary directory that is cleaned up with the test.
func TestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), store.DefaultFileName))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// TestNotes creates a note service over a fresh TestStore.
func TestNotes(t *testing.T, opts ...notes.Option) *notes.Service {
	t.Helper()
	return notes.New(TestStore(t), opts...)
}

// SeedNotes inserts one note per title and returns them in insertion order.
func SeedNotes(t *testing.T, svc *notes.Service, titles ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(titles))
	for _, title := range titles {
		n, err := svc.Insert(context.Background(), models.Note{Title: title, URL: "https://example.com/" + title})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, n.UUID4)
	}
	return ids
}
