package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *RecordStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "whistles.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := Record{ID: "a1", Genre: "Jazz", Comments: "", ObjectKey: "whistles/a1.m4a", CreatedAt: created}

	if err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("Expected insert, got: %v", err)
	}

	got, err := s.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Expected record, got: %v", err)
	}
	if got.Genre != rec.Genre || got.Comments != rec.Comments || got.ObjectKey != rec.ObjectKey {
		t.Errorf("Expected %+v, got %+v", rec, got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("Expected created at %s, got %s", created, got.CreatedAt)
	}
}

func TestInsert_Duplicate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rec := Record{ID: "dup", Genre: "Rock", ObjectKey: "whistles/dup.m4a", CreatedAt: time.Now()}

	if err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("Expected first insert, got: %v", err)
	}
	if err := s.Insert(ctx, rec); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got: %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestList_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, genre := range []string{"Blues", "Pop", "Soul"} {
		rec := Record{
			ID:        genre,
			Genre:     genre,
			ObjectKey: "whistles/" + genre + ".m4a",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := s.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert %s failed: %v", genre, err)
		}
	}

	all, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("Expected list, got: %v", err)
	}
	if len(all) != 3 || all[0].Genre != "Soul" || all[2].Genre != "Blues" {
		t.Errorf("Expected newest first, got %+v", all)
	}

	limited, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("Expected limited list, got: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("Expected 2 records, got %d", len(limited))
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whistles.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	s.Insert(ctx, Record{ID: "keep", Genre: "Metal", ObjectKey: "whistles/keep.m4a", CreatedAt: time.Now()})
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	defer s.Close()

	if _, err := s.Get(ctx, "keep"); err != nil {
		t.Errorf("Expected record to survive reopen, got: %v", err)
	}
}
